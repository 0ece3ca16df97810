package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/pkg/pdfextract"
	"pdfchat/internal/platform/database"
	"pdfchat/internal/repository"
)

type indexerFixture struct {
	root     string
	indexer  *Indexer
	store    *memoryStore
	embedder *lengthEmbedder
	docs     *repository.DocumentRepository
	extracts map[string]int
}

func newIndexerFixture(t *testing.T) *indexerFixture {
	t.Helper()

	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	f := &indexerFixture{
		root:     t.TempDir(),
		store:    newMemoryStore(false),
		embedder: &lengthEmbedder{},
		docs:     repository.NewDocumentRepository(db),
		extracts: map[string]int{},
	}
	f.indexer = NewIndexer(f.embedder, f.store, f.docs, IndexerOptions{
		Root:         f.root,
		Collection:   "pdf_documents",
		ChunkSize:    10,
		ChunkOverlap: 2,
		BatchSize:    2,
	}, nil)

	// each file's content is "page1|page2|..."
	f.indexer.extract = func(path string) ([]pdfextract.Page, error) {
		f.extracts[filepath.Base(path)]++
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(string(raw), "broken") {
			return nil, errors.New("malformed pdf")
		}
		var pages []pdfextract.Page
		for i, text := range strings.Split(string(raw), "|") {
			pages = append(pages, pdfextract.Page{Label: string(rune('1' + i)), Text: text})
		}
		return pages, nil
	}
	return f
}

func (f *indexerFixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFindPDFsIsRecursiveAndCaseInsensitive(t *testing.T) {
	f := newIndexerFixture(t)
	a := f.write(t, "a.pdf", "x")
	b := f.write(t, "sub/B.PDF", "x")
	f.write(t, "notes.txt", "x")

	files, err := f.indexer.FindPDFs()
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, files)
}

func TestIndexAllEmbedsPagesInBatches(t *testing.T) {
	f := newIndexerFixture(t)
	path := f.write(t, "guide.pdf", "short page|0123456789abcdefgh")

	report, err := f.indexer.IndexAll(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	// page 1: one chunk; page 2: "0123456789", "89abcdefgh"
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 3, f.store.countFile(path))

	for _, batch := range f.embedder.calls {
		assert.LessOrEqual(t, len(batch), 2)
	}

	doc, err := f.docs.GetByPath(context.Background(), "pdf_documents", path)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "guide.pdf", doc.FileName)
	assert.Equal(t, 2, doc.PageCount)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Len(t, doc.Checksum, 64)

	for _, rec := range f.store.records {
		assert.Equal(t, "guide.pdf", rec.FileName)
		assert.NotEmpty(t, rec.PageLabel)
		assert.NotEmpty(t, rec.Vector)
	}
}

func TestIndexAllSkipsUnchangedUnlessForced(t *testing.T) {
	f := newIndexerFixture(t)
	f.write(t, "a.pdf", "content")
	ctx := context.Background()

	_, err := f.indexer.IndexAll(ctx, false, nil)
	require.NoError(t, err)

	report, err := f.indexer.IndexAll(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, f.extracts["a.pdf"])

	report, err = f.indexer.IndexAll(ctx, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 2, f.extracts["a.pdf"])
}

func TestIndexFileReplacesChunksOfChangedFile(t *testing.T) {
	f := newIndexerFixture(t)
	ctx := context.Background()
	path := f.write(t, "a.pdf", "0123456789abcdefghijklmnop")

	res := f.indexer.IndexFile(ctx, path, false)
	require.NoError(t, res.Err)
	require.Equal(t, 3, f.store.countFile(path))

	f.write(t, "a.pdf", "tiny")
	res = f.indexer.IndexFile(ctx, path, false)
	require.NoError(t, res.Err)
	assert.Equal(t, StatusIndexed, res.Status)
	assert.Equal(t, 1, f.store.countFile(path))
}

func TestIndexAllPrunesDeletedFiles(t *testing.T) {
	f := newIndexerFixture(t)
	ctx := context.Background()
	keep := f.write(t, "keep.pdf", "keep")
	gone := f.write(t, "gone.pdf", "gone")

	_, err := f.indexer.IndexAll(ctx, false, nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone))

	var results []FileResult
	report, err := f.indexer.IndexAll(ctx, false, func(r FileResult) { results = append(results, r) })
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, results, 2)

	assert.Zero(t, f.store.countFile(gone))
	assert.Equal(t, 1, f.store.countFile(keep))
	doc, err := f.docs.GetByPath(ctx, "pdf_documents", gone)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestIndexFileFailureIsRetried(t *testing.T) {
	f := newIndexerFixture(t)
	ctx := context.Background()
	path := f.write(t, "a.pdf", "fine")

	f.embedder.err = errors.New("ollama down")
	res := f.indexer.IndexFile(ctx, path, false)
	assert.Equal(t, StatusFailed, res.Status)

	f.embedder.err = nil
	res = f.indexer.IndexFile(ctx, path, false)
	assert.Equal(t, StatusIndexed, res.Status)
}

func TestIndexFileReportsExtractionFailure(t *testing.T) {
	f := newIndexerFixture(t)
	path := f.write(t, "bad.pdf", "broken bytes")

	res := f.indexer.IndexFile(context.Background(), path, false)
	assert.Equal(t, StatusFailed, res.Status)
	assert.EqualError(t, res.Err, "malformed pdf")
}

func TestRecreateForgetsDocuments(t *testing.T) {
	f := newIndexerFixture(t)
	ctx := context.Background()
	path := f.write(t, "a.pdf", "content")

	_, err := f.indexer.IndexAll(ctx, false, nil)
	require.NoError(t, err)
	require.NoError(t, f.indexer.Recreate(ctx))

	assert.Zero(t, f.store.countFile(path))
	docs, err := f.docs.ListByCollection(ctx, "pdf_documents")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestHandleEvent(t *testing.T) {
	f := newIndexerFixture(t)
	ctx := context.Background()
	path := f.write(t, "a.pdf", "content")

	res := f.indexer.HandleEvent(ctx, FileEvent{Path: path})
	assert.Equal(t, StatusIndexed, res.Status)

	res = f.indexer.HandleEvent(ctx, FileEvent{Path: path, Removed: true})
	assert.Equal(t, StatusRemoved, res.Status)
	assert.Zero(t, f.store.countFile(path))
}
