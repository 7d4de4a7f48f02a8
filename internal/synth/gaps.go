package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Strikezor/SDMaker/internal/intake"
	"github.com/Strikezor/SDMaker/internal/llm"
	"github.com/Strikezor/SDMaker/internal/schema"
)

// GapItem is one template section the detector judged unfillable from
// the supplied inputs. Items are never deleted, only marked resolved.
type GapItem struct {
	SectionID string `json:"section_id"`
	Question  string `json:"question"`
	Resolved  bool   `json:"resolved"`
	Answer    string `json:"answer,omitempty"`
}

// GapDetector cross-references the template against validated intake
// text with one fast-tier inference call.
type GapDetector struct {
	llm          llm.Inferencer
	snippetLimit int // max chars per category sent to the fast tier
}

func NewGapDetector(inf llm.Inferencer, snippetLimit int) *GapDetector {
	if snippetLimit <= 0 {
		snippetLimit = 3000
	}
	return &GapDetector{llm: inf, snippetLimit: snippetLimit}
}

// Detect returns the sections the model reports as missing, each with
// a clarifying question. The detector is a best-effort heuristic: a
// response that cannot be parsed yields no gaps rather than blocking
// the run, and reported section ids that do not exist in the template
// are dropped.
func (d *GapDetector) Detect(ctx context.Context, tpl *schema.Template, docs []intake.Document) ([]GapItem, error) {
	reg := clip(intake.CombinedText(docs, intake.CategoryRegulatory), d.snippetLimit)
	brd := clip(intake.CombinedText(docs, intake.CategoryBusinessRequirement), d.snippetLimit)

	answer, err := d.llm.Infer(ctx, llm.TierFast, llm.Prompt{
		User: BuildGapPrompt(tpl, reg, brd),
	})
	if err != nil {
		return nil, fmt.Errorf("gap detection call: %w", err)
	}

	return parseGapResponse(tpl, answer), nil
}

type reportedGap struct {
	SectionID string `json:"section_id"`
	Question  string `json:"question"`
}

func parseGapResponse(tpl *schema.Template, answer string) []GapItem {
	answer = stripCodeBlock(answer)
	if strings.EqualFold(answer, "NONE") || answer == "" {
		return nil
	}

	var reported []reportedGap
	if err := json.Unmarshal([]byte(answer), &reported); err != nil {
		return nil
	}

	var gaps []GapItem
	seen := map[string]bool{}
	for _, r := range reported {
		sec := tpl.ByID(strings.TrimSpace(r.SectionID))
		if sec == nil || seen[sec.ID] {
			continue
		}
		seen[sec.ID] = true

		question := strings.TrimSpace(r.Question)
		if question == "" {
			question = fmt.Sprintf("Please provide the %s (%s).", sec.Title, sec.PlaceholderHint)
		}
		gaps = append(gaps, GapItem{SectionID: sec.ID, Question: question})
	}
	return gaps
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
