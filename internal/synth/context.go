package synth

import (
	"fmt"
	"strings"

	"github.com/Strikezor/SDMaker/internal/intake"
	"github.com/Strikezor/SDMaker/internal/kb"
	"github.com/Strikezor/SDMaker/internal/schema"
)

// Context is the merged synthesis context: validated intake text,
// resolved gap answers and optional inherited parent content.
// Immutable once built; rebuilt if intake or answers change.
type Context struct {
	Text     string
	Warnings []string
}

// Resolve deterministically concatenates, in a fixed order, the
// validated intake text per category, the resolved gap answers in
// template section order, and the parent document when a parent CR is
// supplied and found. An unresolved gap is an ordering error and
// fails the call; an unknown parent CR degrades to no inheritance
// with a warning.
func Resolve(tpl *schema.Template, docs []intake.Document, gaps []GapItem, store *kb.Store, parentCR string) (*Context, error) {
	for _, g := range gaps {
		if !g.Resolved {
			return nil, &UnresolvedGapError{SectionID: g.SectionID}
		}
	}

	var sb strings.Builder

	sb.WriteString("**1. Regulatory Document Content:**\n")
	sb.WriteString(validatedText(docs, intake.CategoryRegulatory))
	sb.WriteString("\n\n**2. Business Requirement Document (BRD/URF) Content:**\n")
	sb.WriteString(validatedText(docs, intake.CategoryBusinessRequirement))

	if supporting := validatedText(docs, intake.CategorySupporting); strings.TrimSpace(supporting) != "" {
		sb.WriteString("\n\n**3. Additional Supporting Document Content:**\n")
		sb.WriteString(supporting)
	}

	if answers := answersInSchemaOrder(tpl, gaps); answers != "" {
		sb.WriteString("\n\n**4. User Provided Supplemental Information:**\n")
		sb.WriteString(answers)
	}

	sctx := &Context{}
	if parentCR != "" {
		parent, found := store.Find(parentCR)
		if !found {
			warn := &ParentNotFoundError{CRNumber: parentCR}
			sctx.Warnings = append(sctx.Warnings, warn.Error())
		} else {
			sb.WriteString(fmt.Sprintf("\n\n**5. Parent Solution Document %s (Reference):**\n", parent.CRNumber))
			sb.WriteString(parent.Document.Markdown)
			sb.WriteString("\n\n*Instruction: Use this older Parent SD to pre-fill or carry over common project details, architecture patterns, and standard constraints applicable to the current CR.*")
		}
	}

	sctx.Text = sb.String()
	return sctx, nil
}

func validatedText(docs []intake.Document, cat intake.Category) string {
	var validated []intake.Document
	for _, d := range docs {
		if d.Validated {
			validated = append(validated, d)
		}
	}
	return intake.CombinedText(validated, cat)
}

// answersInSchemaOrder emits resolved answers following the template's
// section order so the context is deterministic.
func answersInSchemaOrder(tpl *schema.Template, gaps []GapItem) string {
	byID := map[string]GapItem{}
	for _, g := range gaps {
		byID[g.SectionID] = g
	}

	var sb strings.Builder
	for _, sec := range tpl.Sections {
		g, ok := byID[sec.ID]
		if !ok || strings.TrimSpace(g.Answer) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "- %s: %s", sec.Title, g.Answer)
	}
	return sb.String()
}
