package synth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Strikezor/SDMaker/internal/kb"
	"github.com/Strikezor/SDMaker/internal/llm"
	"github.com/Strikezor/SDMaker/internal/schema"
)

// stubInferencer returns canned text per tier.
type stubInferencer struct {
	fast  func(prompt llm.Prompt) (string, error)
	heavy func(prompt llm.Prompt) (string, error)

	fastCalls  int
	heavyCalls int
}

func (s *stubInferencer) Infer(_ context.Context, tier llm.Tier, prompt llm.Prompt) (string, error) {
	if tier == llm.TierFast {
		s.fastCalls++
		if s.fast == nil {
			return "VALID", nil
		}
		return s.fast(prompt)
	}
	s.heavyCalls++
	if s.heavy == nil {
		return "# Generated Document", nil
	}
	return s.heavy(prompt)
}

const testTemplate = `<solution_document>
  <header title="Header">Project name and date.</header>
  <summary title="Summary">Executive summary of the change.</summary>
</solution_document>`

func testSchema(t *testing.T) *schema.Template {
	t.Helper()
	tpl, err := schema.Parse([]byte(testTemplate))
	if err != nil {
		t.Fatalf("parse test template: %v", err)
	}
	return tpl
}

func testKB(t *testing.T) *kb.Store {
	t.Helper()
	store, err := kb.Open(filepath.Join(t.TempDir(), "knowledge_base.json"))
	if err != nil {
		t.Fatalf("open kb: %v", err)
	}
	return store
}
