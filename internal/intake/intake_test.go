package intake

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalize_PlainText(t *testing.T) {
	data := []byte("The system must retain records.\n\nRecords are kept for seven years.")
	doc, err := Normalize("reg.txt", data, CategoryRegulatory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Category != CategoryRegulatory {
		t.Errorf("expected category %q, got %q", CategoryRegulatory, doc.Category)
	}
	if doc.Filename != "reg.txt" {
		t.Errorf("expected filename reg.txt, got %q", doc.Filename)
	}
	if !strings.Contains(doc.RawText, "seven years") {
		t.Errorf("expected extracted text, got %q", doc.RawText)
	}
	if doc.Validated {
		t.Error("new documents must start unvalidated")
	}
}

func TestNormalize_Markdown(t *testing.T) {
	data := []byte("# Overview\n\nThe payment flow changes.\n\n## Details\n\nBatch window moves to 02:00.")
	doc, err := Normalize("brd.md", data, CategoryBusinessRequirement)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"# Overview", "payment flow", "## Details", "02:00"} {
		if !strings.Contains(doc.RawText, want) {
			t.Errorf("expected %q in extracted text, got %q", want, doc.RawText)
		}
	}
}

func TestNormalize_HTML(t *testing.T) {
	data := []byte(`<html><head><style>p{}</style></head><body><h1>Policy</h1><p>Data stays in region.</p></body></html>`)
	doc, err := Normalize("policy.html", data, CategoryRegulatory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(doc.RawText, "# Policy") {
		t.Errorf("expected heading in text, got %q", doc.RawText)
	}
	if !strings.Contains(doc.RawText, "Data stays in region.") {
		t.Errorf("expected paragraph in text, got %q", doc.RawText)
	}
	if strings.Contains(doc.RawText, "p{}") {
		t.Errorf("style content leaked into text: %q", doc.RawText)
	}
}

func TestNormalize_UnsupportedFormat(t *testing.T) {
	_, err := Normalize("archive.zip", []byte{0x50, 0x4b}, CategorySupporting)
	var ufe *UnsupportedFormatError
	if !errors.As(err, &ufe) {
		t.Fatalf("expected UnsupportedFormatError, got %v", err)
	}
	if ufe.Ext != ".zip" {
		t.Errorf("expected ext .zip, got %q", ufe.Ext)
	}
}

func TestNormalize_CorruptFileIsExtractionError(t *testing.T) {
	_, err := Normalize("broken.pdf", []byte("not a pdf"), CategoryRegulatory)
	var exe *ExtractionError
	if !errors.As(err, &exe) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestNormalizeAll_BatchContinuesPastFailures(t *testing.T) {
	files := []File{
		{Filename: "good.txt", Data: []byte("requirement one"), Category: CategoryBusinessRequirement},
		{Filename: "bad.xlsx", Data: []byte("x"), Category: CategoryBusinessRequirement},
		{Filename: "also-good.txt", Data: []byte("requirement two"), Category: CategoryBusinessRequirement},
	}
	docs, errs := NormalizeAll(files)
	if len(docs) != 2 {
		t.Fatalf("expected 2 normalized documents, got %d", len(docs))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 file error, got %d", len(errs))
	}
	if errs[0].Filename != "bad.xlsx" {
		t.Errorf("expected failure for bad.xlsx, got %q", errs[0].Filename)
	}
}

func TestCombinedText_FiltersByCategory(t *testing.T) {
	docs := []Document{
		{Category: CategoryRegulatory, Filename: "a.txt", RawText: "rule A"},
		{Category: CategoryBusinessRequirement, Filename: "b.txt", RawText: "req B"},
		{Category: CategoryRegulatory, Filename: "c.txt", RawText: "rule C"},
	}
	got := CombinedText(docs, CategoryRegulatory)
	if !strings.Contains(got, "rule A") || !strings.Contains(got, "rule C") {
		t.Errorf("expected both regulatory texts, got %q", got)
	}
	if strings.Contains(got, "req B") {
		t.Errorf("business requirement text leaked into regulatory context: %q", got)
	}
	if !strings.Contains(got, "--- Content from a.txt ---") {
		t.Errorf("expected filename marker, got %q", got)
	}
}

func TestCategory_Valid(t *testing.T) {
	for _, c := range Categories {
		if !c.Valid() {
			t.Errorf("category %q should be valid", c)
		}
	}
	if Category("recipe").Valid() {
		t.Error("unknown category should be invalid")
	}
}
