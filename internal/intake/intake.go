package intake

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Category tags an uploaded document with its declared input role.
type Category string

const (
	CategoryRegulatory          Category = "regulatory"
	CategoryBusinessRequirement Category = "business_requirement"
	CategorySupporting          Category = "supporting"
)

// Categories lists all categories in synthesis-context order.
var Categories = []Category{CategoryRegulatory, CategoryBusinessRequirement, CategorySupporting}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryRegulatory, CategoryBusinessRequirement, CategorySupporting:
		return true
	}
	return false
}

// Label is the human description used in validation prompts.
func (c Category) Label() string {
	switch c {
	case CategoryRegulatory:
		return "Regulatory or Compliance"
	case CategoryBusinessRequirement:
		return "Business Requirement or Use Case"
	case CategorySupporting:
		return "Supporting or Reference"
	}
	return string(c)
}

// Required reports whether the category must be present before analysis.
func (c Category) Required() bool {
	return c == CategoryRegulatory || c == CategoryBusinessRequirement
}

// Document is a normalized intake document. Immutable once created,
// except for the validation outcome applied by the validator.
type Document struct {
	Category  Category `json:"category"`
	Filename  string   `json:"filename"`
	RawText   string   `json:"-"`
	Validated bool     `json:"validated"`
	Reason    string   `json:"reason,omitempty"` // validator's note when not validated
}

// Extractor converts one file format into plain text.
type Extractor interface {
	Extract(r io.Reader) (string, error)
}

// SupportedExtensions lists file extensions the normalizer can handle.
var SupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
	".pdf":  true,
	".docx": true,
}

// ForFile returns the extractor for a filename, or an
// UnsupportedFormatError.
func ForFile(filename string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextExtractor{}, nil
	case ".md", ".markdown":
		return &MarkdownExtractor{}, nil
	case ".html", ".htm":
		return &HTMLExtractor{}, nil
	case ".pdf":
		return &PDFExtractor{}, nil
	case ".docx":
		return &DOCXExtractor{}, nil
	default:
		return nil, &UnsupportedFormatError{Filename: filename, Ext: ext}
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Normalize extracts plain text from one uploaded file.
func Normalize(filename string, data []byte, category Category) (Document, error) {
	ex, err := ForFile(filename)
	if err != nil {
		return Document{}, err
	}
	text, err := ex.Extract(bytes.NewReader(data))
	if err != nil {
		return Document{}, &ExtractionError{Filename: filename, Err: err}
	}
	return Document{
		Category: category,
		Filename: filename,
		RawText:  strings.TrimSpace(text),
	}, nil
}

// File is one raw upload handed to NormalizeAll.
type File struct {
	Filename string
	Data     []byte
	Category Category
}

// FileError records a per-file normalization failure.
type FileError struct {
	Filename string `json:"filename"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

// NormalizeAll processes a batch of uploads. A failing file does not
// abort the batch; its error is collected and the rest continue.
func NormalizeAll(files []File) ([]Document, []FileError) {
	var docs []Document
	var errs []FileError
	for _, f := range files {
		doc, err := Normalize(f.Filename, f.Data, f.Category)
		if err != nil {
			errs = append(errs, FileError{Filename: f.Filename, Err: err, Message: err.Error()})
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errs
}

// CombinedText concatenates the raw text of all documents in a category,
// each prefixed with its source filename.
func CombinedText(docs []Document, category Category) string {
	var sb strings.Builder
	for _, d := range docs {
		if d.Category != category {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "--- Content from %s ---\n\n%s", d.Filename, d.RawText)
	}
	return sb.String()
}

// UnsupportedFormatError indicates an unrecognized file extension.
type UnsupportedFormatError struct {
	Filename string
	Ext      string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file type %q for %s", e.Ext, e.Filename)
}

// ExtractionError indicates the format parser could not recover text.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract text from %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
