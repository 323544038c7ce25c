package pangraph

import "fmt"

// InputValidationError reports a malformed or contradictory external
// input: a duplicate FASTA record name, malformed JSON, an unknown
// export format. The caller should abort the current command and emit
// no partial output.
type InputValidationError struct {
	Reason string
	Cause  error
}

func (e *InputValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("input validation: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("input validation: %s", e.Reason)
}

func (e *InputValidationError) Unwrap() error { return e.Cause }

// InvariantViolationError reports a checked invariant (B1-B5, G1-G3)
// failing during or after a mutation. It is a defect, not a recoverable
// condition; callers should treat it as fatal.
type InvariantViolationError struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Invariant, e.Detail)
}

// ExternalToolError reports a subprocess (aligner, MSA tool) that is
// missing, exits non-zero, or emits output the parser can't understand.
// Only the operation that invoked the tool aborts; other blocks'
// results are preserved.
type ExternalToolError struct {
	Tool  string
	Cause error
}

func (e *ExternalToolError) Error() string {
	return fmt.Sprintf("external tool %q failed: %v", e.Tool, e.Cause)
}

func (e *ExternalToolError) Unwrap() error { return e.Cause }

// UnsupportedError reports a CIGAR op outside {M,I,D}, a soft/hard clip,
// or a state the partition/re-reference walk cannot reach in this
// implementation. Fatal.
type UnsupportedError struct {
	Feature string
	Detail  string
}

func (e *UnsupportedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unsupported: %s (%s)", e.Feature, e.Detail)
	}
	return fmt.Sprintf("unsupported: %s", e.Feature)
}
