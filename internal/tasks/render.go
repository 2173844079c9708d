package tasks

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/harrison/briefflow/internal/filelock"
	"github.com/harrison/briefflow/internal/models"
)

var markdown = goldmark.New()

// runRender joins the Markdown of every predecessor under a title, renders it
// to HTML, and optionally writes the page to output_path.
func runRender(ctx context.Context, in Input) (models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	title := in.Params.String("title", "News Briefing")
	var doc strings.Builder
	fmt.Fprintf(&doc, "# %s\n\n", title)
	for _, section := range Collect(in, predecessorNames(in), "markdown") {
		s, ok := section.(string)
		if !ok {
			continue
		}
		doc.WriteString(strings.TrimSpace(s))
		doc.WriteString("\n\n")
	}
	source := []byte(doc.String())

	var body bytes.Buffer
	if err := markdown.Convert(source, &body); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}

	page := fmt.Sprintf("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>%s</title></head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString(title), body.String())

	out := models.Artifact{
		"markdown": doc.String(),
		"html":     page,
		"sections": countSections(source),
	}
	if path := in.Params.String("output_path", ""); path != "" {
		if err := filelock.WriteLocked(path, []byte(page)); err != nil {
			return nil, Recoverable(err)
		}
		out["path"] = path
	}
	return out, nil
}

// countSections counts second-level headings in the rendered document.
func countSections(source []byte) int {
	root := markdown.Parser().Parse(text.NewReader(source))
	count := 0
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level == 2 {
			count++
		}
	}
	return count
}
