// Package content turns markdown source files into index documents: header
// metadata, rendered HTML and the file's modification time.
package content

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ProjectMoon/reed/internal/errs"
)

// Document is a transformed source file.
type Document struct {
	Path    string
	ModTime time.Time
	// Metadata holds the header entries followed by lastModified.
	Metadata *Metadata
	// Body is the rendered HTML.
	Body string
}

// Transformer reads and renders source files. It is safe for concurrent use.
type Transformer struct {
	md goldmark.Markdown
}

// NewTransformer returns a Transformer rendering GitHub-flavored markdown.
// Raw HTML in the source is passed through.
func NewTransformer() *Transformer {
	return &Transformer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// Transform reads path and produces its Document.
func (t *Transformer) Transform(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	modTime, err := t.LastModified(path)
	if err != nil {
		return nil, err
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", errs.ErrTransform, path, err)
	}

	meta, markdown, err := ParseHeader(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrTransform, path, err)
	}

	body, err := t.Render(markdown)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrTransform, path, err)
	}

	meta.SetLastModified(modTime)

	return &Document{
		Path:     path,
		ModTime:  modTime,
		Metadata: meta,
		Body:     body,
	}, nil
}

// LastModified returns the modification time of the regular file at path.
func (t *Transformer) LastModified(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: failed to stat %s: %w", errs.ErrTransform, path, err)
	}
	if !info.Mode().IsRegular() {
		return time.Time{}, fmt.Errorf("%w: %s is not a regular file", errs.ErrTransform, path)
	}
	return info.ModTime(), nil
}

// Render converts markdown to HTML.
func (t *Transformer) Render(markdown []byte) (string, error) {
	var buf bytes.Buffer
	if err := t.md.Convert(markdown, &buf); err != nil {
		return "", fmt.Errorf("markdown render: %w", err)
	}
	return buf.String(), nil
}
