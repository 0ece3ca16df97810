// Package chatstream turns a streamed chat reply into the text the client
// sees: the fragments as produced, then a numbered list of cited sources.
package chatstream

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"pdfchat/internal/rag"
)

const sourcesHeader = "\n\n---\n**Sources:**\n"

type Assembler struct {
	// DocumentRoot is the directory served under LinkPrefix.
	DocumentRoot string
	LinkPrefix   string
}

func New(documentRoot, linkPrefix string) *Assembler {
	if linkPrefix == "" {
		linkPrefix = "/pdfs/"
	}
	if !strings.HasSuffix(linkPrefix, "/") {
		linkPrefix += "/"
	}
	return &Assembler{DocumentRoot: documentRoot, LinkPrefix: linkPrefix}
}

// Stream forwards every fragment through emit in order. A fragment carrying
// an error ends the output with an inline error marker and the error is
// returned. When the reply completes, the deduplicated sources follow.
func (a *Assembler) Stream(ctx context.Context, stream *rag.ChatStream, emit func(string) error) error {
	tokens := stream.Tokens()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tok, ok := <-tokens:
			if !ok {
				// the producer also closes the channel when ctx ends
				if err := ctx.Err(); err != nil {
					return err
				}
				if block := a.FormatSources(stream.Sources()); block != "" {
					return emit(block)
				}
				return nil
			}
			if tok.Err != nil {
				if err := emit(ErrorMarker(tok.Err)); err != nil {
					return err
				}
				return tok.Err
			}
			if tok.Content == "" {
				continue
			}
			if err := emit(tok.Content); err != nil {
				return err
			}
		}
	}
}

func ErrorMarker(err error) string {
	return "\n\nError: " + err.Error()
}

type sourceKey struct {
	fileName  string
	pageLabel string
}

// FormatSources renders the trailing sources block, or "" when there are
// none. Citations sharing a file name and page label are listed once, at the
// position of their first occurrence.
func (a *Assembler) FormatSources(sources []rag.SourceCitation) string {
	if len(sources) == 0 {
		return ""
	}

	seen := make(map[sourceKey]struct{}, len(sources))
	unique := make([]rag.SourceCitation, 0, len(sources))
	for _, src := range sources {
		key := sourceKey{fileName: src.FileName, pageLabel: src.PageLabel}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, src)
	}

	var b strings.Builder
	b.WriteString(sourcesHeader)
	for i, src := range unique {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a.formatSource(src))
	}
	return b.String()
}

func (a *Assembler) formatSource(src rag.SourceCitation) string {
	display := src.FileName
	if src.PageLabel != "" {
		display = fmt.Sprintf("%s (Page %s)", src.FileName, src.PageLabel)
	}
	if src.FilePath == "" {
		return display
	}
	return fmt.Sprintf("[%s](%s)", display, a.link(src))
}

func (a *Assembler) link(src rag.SourceCitation) string {
	if rel, ok := a.relativePath(src.FilePath); ok {
		segments := strings.Split(rel, "/")
		for i, s := range segments {
			segments[i] = url.PathEscape(s)
		}
		return a.LinkPrefix + strings.Join(segments, "/")
	}

	name := src.FileName
	if name == "" {
		name = filepath.Base(src.FilePath)
	}
	return a.LinkPrefix + url.PathEscape(name)
}

// relativePath resolves path under DocumentRoot and reports false when it
// lies outside it or cannot be resolved.
func (a *Assembler) relativePath(path string) (string, bool) {
	if a.DocumentRoot == "" {
		return "", false
	}
	root, err := filepath.Abs(a.DocumentRoot)
	if err != nil {
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
