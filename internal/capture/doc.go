// Package capture owns the record/stop state machine for answering a spoken
// prompt. A Controller produces a finished WAV asset either from microphone
// frames delivered by a FrameSource or from a user-supplied file, keeping
// recording and file selection mutually exclusive.
package capture
