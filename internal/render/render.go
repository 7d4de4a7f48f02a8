// Package render converts generated markdown for export. PDF
// conversion happens in the front-end collaborator; this side serves
// HTML it can print or hand to a converter.
package render

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough),
)

// MarkdownHTML renders a markdown document as a standalone HTML page.
func MarkdownHTML(title, text string) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(text), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", html.EscapeString(title))
	page.Write(body.Bytes())
	page.WriteString("\n</body>\n</html>\n")
	return page.Bytes(), nil
}
