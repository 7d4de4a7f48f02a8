package synth

import (
	"context"
	"strings"
	"time"

	"github.com/Strikezor/SDMaker/internal/llm"
	"github.com/Strikezor/SDMaker/internal/schema"
)

// Document is a generated solution document. The markdown and revision
// counter are replaced together by each successful refinement pass.
type Document struct {
	Markdown      string `json:"markdown"`
	SchemaVersion string `json:"schema_version"`
	RevisionCount int    `json:"revision_count"`
}

// Synthesizer generates the schema-conformant document on the heavy
// tier. A transient inference failure is retried once; a second
// failure is a SynthesisError.
type Synthesizer struct {
	llm llm.Inferencer
}

func NewSynthesizer(inf llm.Inferencer) *Synthesizer {
	return &Synthesizer{llm: inf}
}

func (s *Synthesizer) Synthesize(ctx context.Context, tpl *schema.Template, sctx *Context) (*Document, error) {
	prompt := llm.Prompt{
		System: SynthesisSystemPrompt,
		User:   BuildSynthesisPrompt(tpl, sctx),
	}

	text, err := s.llm.Infer(ctx, llm.TierHeavy, prompt)
	if err != nil && llm.IsRetryable(err) {
		select {
		case <-time.After(llm.Backoff(0)):
		case <-ctx.Done():
			return nil, &SynthesisError{Err: ctx.Err()}
		}
		text, err = s.llm.Infer(ctx, llm.TierHeavy, prompt)
	}
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}

	return &Document{
		Markdown:      strings.TrimSpace(text),
		SchemaVersion: tpl.Version,
		RevisionCount: 0,
	}, nil
}

// Refiner applies a free-text edit instruction to an existing document
// on the heavy tier. The model returns a complete revised document,
// not a diff; re-issuing the same instruction is not deterministic.
type Refiner struct {
	llm llm.Inferencer
}

func NewRefiner(inf llm.Inferencer) *Refiner {
	return &Refiner{llm: inf}
}

// Refine replaces the document's markdown and increments its revision
// counter. On any failure the document is left unchanged.
func (r *Refiner) Refine(ctx context.Context, doc *Document, instruction string) error {
	if strings.TrimSpace(instruction) == "" {
		return &RefinementError{Msg: "empty edit instruction"}
	}

	text, err := r.llm.Infer(ctx, llm.TierHeavy, llm.Prompt{
		System: RefinementSystemPrompt,
		User:   BuildRefinementPrompt(doc.Markdown, instruction),
	})
	if err != nil {
		return &RefinementError{Msg: "inference failed", Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return &RefinementError{Msg: "model returned an empty document"}
	}

	doc.Markdown = text
	doc.RevisionCount++
	return nil
}
