// Package pipeline orchestrates the three-stage submission of a finished
// audio asset: score, store audio, persist record. Stages run strictly in
// order, results from completed stages are never discarded by a later
// failure, and at most one submission is in flight per pipeline instance.
package pipeline
