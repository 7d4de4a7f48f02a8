package synth

import "fmt"

// UnresolvedGapError indicates the context resolver ran before every
// gap was answered. This is an ordering bug in the caller, fatal to
// the call but not the session.
type UnresolvedGapError struct {
	SectionID string
}

func (e *UnresolvedGapError) Error() string {
	return fmt.Sprintf("gap for section %q is not resolved", e.SectionID)
}

// ParentNotFoundError indicates the supplied parent CR number does not
// exist in the knowledge base. Non-fatal: synthesis proceeds without
// inherited context and the condition is reported as a warning.
type ParentNotFoundError struct {
	CRNumber string
}

func (e *ParentNotFoundError) Error() string {
	return fmt.Sprintf("parent CR %q not found in knowledge base", e.CRNumber)
}

// SynthesisError indicates document generation failed after retries.
// Fatal to the attempt; the user may re-trigger.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize document: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// RefinementError indicates a revision attempt failed. The prior
// document is left unchanged.
type RefinementError struct {
	Msg string
	Err error
}

func (e *RefinementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refine document: %s: %v", e.Msg, e.Err)
	}
	return "refine document: " + e.Msg
}

func (e *RefinementError) Unwrap() error { return e.Err }
