package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrEmptyDocument = errors.New("pdf document is empty")

// Page is the plain text of one page. Label is the 1-based page number.
type Page struct {
	Label string
	Text  string
}

// ExtractFile reads the PDF at path and returns the text of every page that
// has any.
func ExtractFile(path string) ([]Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ExtractPages(f)
}

// ExtractPages reads the entire content of r and extracts plain text page by
// page. Pages without extractable text are omitted.
func ExtractPages(r io.Reader) (pages []Page, err error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, ErrEmptyDocument
	}

	// the parser panics on some malformed files
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("parse pdf failed: %v", rec)
		}
	}()

	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}

	for i := 1; i <= pdfReader.NumPage(); i++ {
		p := pdfReader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d failed: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Label: strconv.Itoa(i), Text: text})
	}
	return pages, nil
}
