// Package audio handles sample buffering, resampling, and format conversion.
// It accumulates float32 mono samples during capture, converts between sample
// rates, and encodes/decodes the PCM WAV container used for submission.
package audio
