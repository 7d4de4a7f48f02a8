package synth

import (
	"context"
	"strings"

	"github.com/Strikezor/SDMaker/internal/intake"
	"github.com/Strikezor/SDMaker/internal/llm"
)

// ValidationResult is the per-category outcome of relevance checking.
type ValidationResult struct {
	Category intake.Category `json:"category"`
	Valid    bool            `json:"valid"`
	Reason   string          `json:"reason,omitempty"`
}

// Validator checks that intake text plausibly belongs to its declared
// category using one fast-tier inference call per category.
type Validator struct {
	llm          llm.Inferencer
	snippetLimit int // max chars of category text sent to the fast tier
}

func NewValidator(inf llm.Inferencer, snippetLimit int) *Validator {
	if snippetLimit <= 0 {
		snippetLimit = 4000
	}
	return &Validator{llm: inf, snippetLimit: snippetLimit}
}

// ValidateAll checks every category that has documents, plus every
// required category whether or not it has documents. It returns the
// documents with their Validated flags applied and the per-category
// results. Empty required categories fail locally without an
// inference call. Anything the model's answer cannot be parsed into
// is treated as not validated: fail closed, never fail open.
func (v *Validator) ValidateAll(ctx context.Context, docs []intake.Document) ([]intake.Document, []ValidationResult) {
	out := make([]intake.Document, len(docs))
	copy(out, docs)

	var results []ValidationResult
	for _, cat := range intake.Categories {
		text := intake.CombinedText(out, cat)
		if strings.TrimSpace(text) == "" {
			if cat.Required() {
				results = append(results, ValidationResult{
					Category: cat,
					Valid:    false,
					Reason:   "no readable document supplied for this category",
				})
			}
			continue
		}

		res := v.validateCategory(ctx, cat, text)
		results = append(results, res)
		for i := range out {
			if out[i].Category == cat {
				out[i].Validated = res.Valid
				if !res.Valid {
					out[i].Reason = res.Reason
				}
			}
		}
	}
	return out, results
}

func (v *Validator) validateCategory(ctx context.Context, cat intake.Category, text string) ValidationResult {
	if len(text) > v.snippetLimit {
		text = text[:v.snippetLimit]
	}

	answer, err := v.llm.Infer(ctx, llm.TierFast, llm.Prompt{
		System: ValidationPrompt(cat),
		User:   "Document Text:\n" + text,
	})
	if err != nil {
		return ValidationResult{Category: cat, Valid: false, Reason: "validation call failed: " + err.Error()}
	}

	answer = strings.TrimSpace(answer)
	switch {
	case strings.EqualFold(answer, "VALID"):
		return ValidationResult{Category: cat, Valid: true}
	case strings.HasPrefix(strings.ToUpper(answer), "INVALID"):
		reason := strings.TrimSpace(strings.TrimPrefix(answer[len("INVALID"):], ":"))
		if reason == "" {
			reason = "document judged irrelevant to its category"
		}
		return ValidationResult{Category: cat, Valid: false, Reason: reason}
	default:
		return ValidationResult{Category: cat, Valid: false, Reason: "unparseable validation answer: " + truncate(answer, 120)}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
