package schema

import (
	"errors"
	"testing"
)

const sampleTemplate = `<solution_document>
  <header title="Document Header">Project name, CR number and date.</header>
  <summary>One paragraph executive summary.</summary>
  <solution title="Proposed Solution">
    <architecture>High level architecture description.</architecture>
    <constraints>Regulatory and technical constraints.</constraints>
  </solution>
</solution_document>`

func TestParse_SectionOrderAndParents(t *testing.T) {
	tpl, err := Parse([]byte(sampleTemplate))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantIDs := []string{"header", "summary", "solution", "architecture", "constraints"}
	if len(tpl.Sections) != len(wantIDs) {
		t.Fatalf("expected %d sections, got %d", len(wantIDs), len(tpl.Sections))
	}
	for i, id := range wantIDs {
		if tpl.Sections[i].ID != id {
			t.Errorf("section[%d]: expected id %q, got %q", i, id, tpl.Sections[i].ID)
		}
	}

	wantParents := map[string]string{
		"header":       "",
		"summary":      "",
		"solution":     "",
		"architecture": "solution",
		"constraints":  "solution",
	}
	for _, sec := range tpl.Sections {
		if sec.ParentID != wantParents[sec.ID] {
			t.Errorf("section %q: expected parent %q, got %q", sec.ID, wantParents[sec.ID], sec.ParentID)
		}
	}
}

func TestParse_TitlesAndHints(t *testing.T) {
	tpl, err := Parse([]byte(sampleTemplate))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header := tpl.ByID("header")
	if header == nil {
		t.Fatal("header section not found")
	}
	if header.Title != "Document Header" {
		t.Errorf("expected title attribute to win, got %q", header.Title)
	}
	if header.PlaceholderHint != "Project name, CR number and date." {
		t.Errorf("unexpected hint: %q", header.PlaceholderHint)
	}

	summary := tpl.ByID("summary")
	if summary.Title != "summary" {
		t.Errorf("expected derived title %q, got %q", "summary", summary.Title)
	}
}

func TestParse_WellFormedTree(t *testing.T) {
	tpl, err := Parse([]byte(sampleTemplate))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Every non-empty parent id must resolve to a declared section.
	for _, sec := range tpl.Sections {
		if sec.ParentID == "" {
			continue
		}
		if !tpl.HasSection(sec.ParentID) {
			t.Errorf("section %q has dangling parent %q", sec.ID, sec.ParentID)
		}
	}
}

func TestParse_DuplicateSectionID(t *testing.T) {
	markup := `<doc><summary>a</summary><summary>b</summary></doc>`
	_, err := Parse([]byte(markup))
	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestParse_MalformedMarkup(t *testing.T) {
	_, err := Parse([]byte(`<doc><summary>unclosed`))
	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestParse_EmptyTemplate(t *testing.T) {
	_, err := Parse([]byte(`<doc></doc>`))
	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SchemaError for template with no sections, got %v", err)
	}
}

func TestParse_VersionStableForSameBytes(t *testing.T) {
	a, err := Parse([]byte(sampleTemplate))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Parse([]byte(sampleTemplate))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Version == "" || a.Version != b.Version {
		t.Errorf("expected stable version tag, got %q and %q", a.Version, b.Version)
	}
}
