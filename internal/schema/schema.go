package schema

import (
	"crypto/sha256"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
)

// SectionSpec is one named section of the solution document template.
type SectionSpec struct {
	ID              string // element name in the template markup
	Title           string // display title ("title" attribute, or derived from ID)
	PlaceholderHint string // element text content describing expected material
	ParentID        string // enclosing section id, empty for roots
}

// Template is the parsed solution document template: an ordered tree of
// sections plus the raw markup, which is passed verbatim into prompts.
type Template struct {
	Sections []SectionSpec
	Raw      string
	Version  string // content hash of the raw markup
}

// SchemaError indicates the template markup could not be loaded.
type SchemaError struct {
	Msg string
	Err error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema: %s: %v", e.Msg, e.Err)
	}
	return "schema: " + e.Msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Load reads and parses a template file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SchemaError{Msg: fmt.Sprintf("read template %s", path), Err: err}
	}
	return Parse(data)
}

// Parse parses template markup. Element names are section ids, nesting
// defines the parent tree, and character data is the placeholder hint.
// The outermost element is the document wrapper, not a section.
func Parse(data []byte) (*Template, error) {
	tpl := &Template{
		Raw:     string(data),
		Version: fmt.Sprintf("%x", sha256.Sum256(data))[:12],
	}

	dec := xml.NewDecoder(strings.NewReader(tpl.Raw))

	type frame struct {
		id  string
		idx int // index into tpl.Sections, -1 for the wrapper
	}
	var stack []frame
	seen := map[string]bool{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &SchemaError{Msg: "malformed template markup", Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			id := t.Name.Local
			if len(stack) == 0 {
				// Document wrapper.
				stack = append(stack, frame{id: id, idx: -1})
				continue
			}
			if seen[id] {
				return nil, &SchemaError{Msg: fmt.Sprintf("duplicate section id %q", id)}
			}
			seen[id] = true

			sec := SectionSpec{ID: id, Title: titleFrom(id, t.Attr)}
			if parent := stack[len(stack)-1]; parent.idx >= 0 {
				sec.ParentID = parent.id
			}
			tpl.Sections = append(tpl.Sections, sec)
			stack = append(stack, frame{id: id, idx: len(tpl.Sections) - 1})

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}

		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			if top := stack[len(stack)-1]; top.idx >= 0 {
				text := strings.TrimSpace(string(t))
				if text == "" {
					continue
				}
				sec := &tpl.Sections[top.idx]
				if sec.PlaceholderHint != "" {
					sec.PlaceholderHint += " "
				}
				sec.PlaceholderHint += text
			}
		}
	}

	if len(tpl.Sections) == 0 {
		return nil, &SchemaError{Msg: "template declares no sections"}
	}
	return tpl, nil
}

// ByID returns the section with the given id, or nil.
func (t *Template) ByID(id string) *SectionSpec {
	for i := range t.Sections {
		if t.Sections[i].ID == id {
			return &t.Sections[i]
		}
	}
	return nil
}

// HasSection reports whether id names a section of this template.
func (t *Template) HasSection(id string) bool {
	return t.ByID(id) != nil
}

// titleFrom prefers an explicit title attribute, else derives one from
// the element name (underscores become spaces).
func titleFrom(id string, attrs []xml.Attr) string {
	for _, a := range attrs {
		if a.Name.Local == "title" && strings.TrimSpace(a.Value) != "" {
			return strings.TrimSpace(a.Value)
		}
	}
	return strings.ReplaceAll(id, "_", " ")
}
