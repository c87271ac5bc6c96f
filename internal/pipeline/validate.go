package pipeline

// Verdict is the result of the advisory pre-submit duration check.
type Verdict int

const (
	// VerdictOK means the duration is known and inside the configured bounds.
	VerdictOK Verdict = iota

	// VerdictUnknownDuration means the duration could not be verified;
	// submission proceeds but the caller should disclose this.
	VerdictUnknownDuration

	// VerdictOutOfRange means the duration is known and outside the bounds;
	// the pipeline must not be invoked.
	VerdictOutOfRange
)

// DurationCheck reports the outcome of validating an asset's duration
type DurationCheck struct {
	Verdict  Verdict
	Duration float64 // offending or verified value; zero when unknown
	Min      float64
	Max      float64
}

// Rejected reports whether the check forbids submission
func (d DurationCheck) Rejected() bool {
	return d.Verdict == VerdictOutOfRange
}

// ValidateDuration checks a known duration against the configured bounds.
// An unknown duration (nil) passes with a warning rather than rejecting:
// out-of-band duration detection is best-effort and its absence must not
// block submission.
func ValidateDuration(durationSeconds *float64, minSeconds, maxSeconds float64) DurationCheck {
	check := DurationCheck{Min: minSeconds, Max: maxSeconds}

	if durationSeconds == nil {
		check.Verdict = VerdictUnknownDuration
		return check
	}

	check.Duration = *durationSeconds
	if *durationSeconds < minSeconds || *durationSeconds > maxSeconds {
		check.Verdict = VerdictOutOfRange
		return check
	}

	check.Verdict = VerdictOK
	return check
}

// CheckDuration applies the advisory duration gate ahead of a submission,
// recording reject and unknown-duration verdicts as metrics.
func (p *Pipeline) CheckDuration(durationSeconds *float64, minSeconds, maxSeconds float64) DurationCheck {
	check := ValidateDuration(durationSeconds, minSeconds, maxSeconds)

	if p.metrics != nil {
		switch check.Verdict {
		case VerdictOutOfRange:
			p.metrics.RecordDurationReject()
		case VerdictUnknownDuration:
			p.metrics.RecordDurationUnknown()
		}
	}
	return check
}
