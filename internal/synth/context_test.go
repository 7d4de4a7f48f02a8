package synth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Strikezor/SDMaker/internal/intake"
	"github.com/Strikezor/SDMaker/internal/kb"
)

func validatedDocs() []intake.Document {
	return []intake.Document{
		{Category: intake.CategoryRegulatory, Filename: "reg.txt", RawText: "retention rule", Validated: true},
		{Category: intake.CategoryBusinessRequirement, Filename: "brd.txt", RawText: "batch change", Validated: true},
	}
}

func TestResolve_RefusesUnresolvedGap(t *testing.T) {
	gaps := []GapItem{
		{SectionID: "header", Question: "?", Resolved: true, Answer: "Project X"},
		{SectionID: "summary", Question: "?", Resolved: false},
	}
	_, err := Resolve(testSchema(t), validatedDocs(), gaps, testKB(t), "")
	var uge *UnresolvedGapError
	if !errors.As(err, &uge) {
		t.Fatalf("expected UnresolvedGapError, got %v", err)
	}
	if uge.SectionID != "summary" {
		t.Errorf("expected the unresolved section id, got %q", uge.SectionID)
	}
}

func TestResolve_NotApplicableCountsAsResolved(t *testing.T) {
	gaps := []GapItem{
		{SectionID: "header", Question: "?", Resolved: true, Answer: "not applicable"},
	}
	sctx, err := Resolve(testSchema(t), validatedDocs(), gaps, testKB(t), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sctx.Text, "not applicable") {
		t.Errorf("expected answer in context, got %q", sctx.Text)
	}
}

func TestResolve_CategoryOrderIsDeterministic(t *testing.T) {
	docs := append(validatedDocs(), intake.Document{
		Category: intake.CategorySupporting, Filename: "notes.txt", RawText: "extra notes", Validated: true,
	})
	sctx, err := Resolve(testSchema(t), docs, nil, testKB(t), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg := strings.Index(sctx.Text, "retention rule")
	brd := strings.Index(sctx.Text, "batch change")
	sup := strings.Index(sctx.Text, "extra notes")
	if reg == -1 || brd == -1 || sup == -1 {
		t.Fatalf("missing intake text in context: %q", sctx.Text)
	}
	if !(reg < brd && brd < sup) {
		t.Errorf("expected regulatory < business < supporting order, got %d %d %d", reg, brd, sup)
	}
}

func TestResolve_ExcludesUnvalidatedDocs(t *testing.T) {
	docs := append(validatedDocs(), intake.Document{
		Category: intake.CategorySupporting, Filename: "junk.txt", RawText: "irrelevant recipe", Validated: false,
	})
	sctx, err := Resolve(testSchema(t), docs, nil, testKB(t), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(sctx.Text, "irrelevant recipe") {
		t.Errorf("unvalidated text leaked into context: %q", sctx.Text)
	}
}

func TestResolve_ParentContentInherited(t *testing.T) {
	store := testKB(t)
	err := store.Commit(kb.Entry{
		CRNumber:  "CR000001",
		Title:     "Original",
		CreatedAt: time.Now().UTC(),
		Document:  kb.Document{Markdown: "# Parent architecture baseline"},
	})
	if err != nil {
		t.Fatalf("commit parent: %v", err)
	}

	sctx, err := Resolve(testSchema(t), validatedDocs(), nil, store, "CR000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sctx.Text, "Parent architecture baseline") {
		t.Errorf("expected parent content in context, got %q", sctx.Text)
	}
	if len(sctx.Warnings) != 0 {
		t.Errorf("no warnings expected for a found parent, got %v", sctx.Warnings)
	}
}

func TestResolve_MissingParentDegradesToWarning(t *testing.T) {
	sctx, err := Resolve(testSchema(t), validatedDocs(), nil, testKB(t), "CR009999")
	if err != nil {
		t.Fatalf("missing parent must not fail resolution, got %v", err)
	}
	if len(sctx.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", sctx.Warnings)
	}
	if !strings.Contains(sctx.Warnings[0], "CR009999") {
		t.Errorf("warning should name the missing CR, got %q", sctx.Warnings[0])
	}
	if strings.Contains(sctx.Text, "Parent Solution Document") {
		t.Error("context must not claim inherited content when parent is missing")
	}
}

func TestResolve_AnswersFollowSchemaOrder(t *testing.T) {
	// Gaps supplied in reverse template order; answers must come out
	// in template order.
	gaps := []GapItem{
		{SectionID: "summary", Question: "?", Resolved: true, Answer: "short summary"},
		{SectionID: "header", Question: "?", Resolved: true, Answer: "Project X, 2024-01-01"},
	}
	sctx, err := Resolve(testSchema(t), validatedDocs(), gaps, testKB(t), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := strings.Index(sctx.Text, "Project X, 2024-01-01")
	s := strings.Index(sctx.Text, "short summary")
	if h == -1 || s == -1 || h > s {
		t.Errorf("expected header answer before summary answer, got %q", sctx.Text)
	}
}
