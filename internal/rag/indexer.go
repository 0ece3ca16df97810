package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdfchat/internal/ai"
	"pdfchat/internal/model"
	"pdfchat/internal/pkg/pdfextract"
	"pdfchat/internal/vectorstore"
)

// DocumentTracker remembers which files are in the index and at which
// checksum. *repository.DocumentRepository satisfies it.
type DocumentTracker interface {
	Save(ctx context.Context, doc *model.IndexedDocument) error
	GetByPath(ctx context.Context, collection, filePath string) (*model.IndexedDocument, error)
	ListByCollection(ctx context.Context, collection string) ([]model.IndexedDocument, error)
	DeleteByPath(ctx context.Context, collection, filePath string) error
	DeleteByCollection(ctx context.Context, collection string) error
}

type FileStatus string

const (
	StatusIndexed FileStatus = "indexed"
	StatusSkipped FileStatus = "skipped"
	StatusEmpty   FileStatus = "empty"
	StatusFailed  FileStatus = "failed"
	StatusRemoved FileStatus = "removed"
)

type FileResult struct {
	Path   string
	Status FileStatus
	Pages  int
	Chunks int
	Err    error
}

type Report struct {
	Indexed int
	Skipped int
	Empty   int
	Failed  int
	Removed int
	Chunks  int
}

func (r *Report) add(res FileResult) {
	switch res.Status {
	case StatusIndexed:
		r.Indexed++
	case StatusSkipped:
		r.Skipped++
	case StatusEmpty:
		r.Empty++
	case StatusFailed:
		r.Failed++
	case StatusRemoved:
		r.Removed++
	}
	r.Chunks += res.Chunks
}

type IndexerOptions struct {
	Root         string
	Collection   string
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

// Indexer turns the PDFs under Root into embedded chunks in the vector store.
type Indexer struct {
	embedder ai.Embedder
	store    vectorstore.Store
	docs     DocumentTracker
	opts     IndexerOptions
	extract  func(path string) ([]pdfextract.Page, error)
	logger   *zap.Logger
}

func NewIndexer(embedder ai.Embedder, store vectorstore.Store, docs DocumentTracker, opts IndexerOptions, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	return &Indexer{
		embedder: embedder,
		store:    store,
		docs:     docs,
		opts:     opts,
		extract:  pdfextract.ExtractFile,
		logger:   logger.Named("indexer"),
	}
}

// FindPDFs walks the root recursively and returns absolute paths of every
// file with a .pdf extension in any case, sorted.
func (ix *Indexer) FindPDFs() ([]string, error) {
	root, err := filepath.Abs(ix.opts.Root)
	if err != nil {
		return nil, err
	}
	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsPDF(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk documents dir failed: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// IndexAll indexes every PDF under the root and drops documents that no
// longer exist on disk. onFile, when set, sees each result as it happens.
func (ix *Indexer) IndexAll(ctx context.Context, force bool, onFile func(FileResult)) (Report, error) {
	var report Report

	if err := ix.store.EnsureCollection(ctx); err != nil {
		return report, err
	}
	files, err := ix.FindPDFs()
	if err != nil {
		return report, err
	}

	seen := make(map[string]struct{}, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		seen[path] = struct{}{}

		res := ix.IndexFile(ctx, path, force)
		report.add(res)
		if onFile != nil {
			onFile(res)
		}
	}

	known, err := ix.docs.ListByCollection(ctx, ix.opts.Collection)
	if err != nil {
		return report, err
	}
	for _, doc := range known {
		if _, ok := seen[doc.FilePath]; ok {
			continue
		}
		res := FileResult{Path: doc.FilePath, Status: StatusRemoved}
		if err := ix.RemoveFile(ctx, doc.FilePath); err != nil {
			res = FileResult{Path: doc.FilePath, Status: StatusFailed, Err: err}
		}
		report.add(res)
		if onFile != nil {
			onFile(res)
		}
	}
	return report, nil
}

// IndexFile embeds one PDF. Unchanged files are skipped unless force is set;
// a changed file has its previous chunks removed first.
func (ix *Indexer) IndexFile(ctx context.Context, path string, force bool) FileResult {
	path, err := filepath.Abs(path)
	if err != nil {
		return FileResult{Path: path, Status: StatusFailed, Err: err}
	}
	res := FileResult{Path: path}

	checksum, err := fileChecksum(path)
	if err != nil {
		return ix.failed(res, err)
	}
	existing, err := ix.docs.GetByPath(ctx, ix.opts.Collection, path)
	if err != nil {
		return ix.failed(res, err)
	}
	if !force && existing != nil && existing.Checksum == checksum {
		res.Status = StatusSkipped
		res.Pages = existing.PageCount
		return res
	}

	pages, err := ix.extract(path)
	if err != nil {
		return ix.failed(res, err)
	}
	records := ix.buildRecords(path, pages)

	if err := ix.store.EnsureCollection(ctx); err != nil {
		return ix.failed(res, err)
	}
	// forget the old row first so a failure below forces a retry next run
	if existing != nil {
		if err := ix.docs.DeleteByPath(ctx, ix.opts.Collection, path); err != nil {
			return ix.failed(res, err)
		}
	}
	if err := ix.store.DeleteByFile(ctx, path); err != nil {
		return ix.failed(res, err)
	}
	if err := ix.embedAndStore(ctx, records); err != nil {
		return ix.failed(res, err)
	}

	err = ix.docs.Save(ctx, &model.IndexedDocument{
		Collection: ix.opts.Collection,
		FilePath:   path,
		FileName:   filepath.Base(path),
		Checksum:   checksum,
		PageCount:  len(pages),
		ChunkCount: len(records),
		IndexedAt:  time.Now().UTC(),
	})
	if err != nil {
		return ix.failed(res, err)
	}

	res.Pages = len(pages)
	res.Chunks = len(records)
	res.Status = StatusIndexed
	if len(records) == 0 {
		res.Status = StatusEmpty
	}
	ix.logger.Info("indexed document", zap.String("path", path), zap.Int("pages", res.Pages), zap.Int("chunks", res.Chunks))
	return res
}

// RemoveFile deletes the file's chunks and its tracking row.
func (ix *Indexer) RemoveFile(ctx context.Context, path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := ix.store.DeleteByFile(ctx, path); err != nil {
		return err
	}
	if err := ix.docs.DeleteByPath(ctx, ix.opts.Collection, path); err != nil {
		return err
	}
	ix.logger.Info("removed document", zap.String("path", path))
	return nil
}

// Recreate empties the collection and forgets every tracked document.
func (ix *Indexer) Recreate(ctx context.Context) error {
	if err := ix.store.Recreate(ctx); err != nil {
		return err
	}
	return ix.docs.DeleteByCollection(ctx, ix.opts.Collection)
}

// HandleEvent applies one watcher event to the index.
func (ix *Indexer) HandleEvent(ctx context.Context, ev FileEvent) FileResult {
	if ev.Removed {
		if err := ix.RemoveFile(ctx, ev.Path); err != nil {
			return FileResult{Path: ev.Path, Status: StatusFailed, Err: err}
		}
		return FileResult{Path: ev.Path, Status: StatusRemoved}
	}
	return ix.IndexFile(ctx, ev.Path, false)
}

func (ix *Indexer) buildRecords(path string, pages []pdfextract.Page) []vectorstore.Record {
	name := filepath.Base(path)
	var records []vectorstore.Record
	for _, page := range pages {
		for i, chunk := range chunkText(page.Text, ix.opts.ChunkSize, ix.opts.ChunkOverlap) {
			records = append(records, vectorstore.Record{
				ID:        vectorstore.ChunkID(path, page.Label, i),
				FileName:  name,
				FilePath:  path,
				PageLabel: page.Label,
				Text:      chunk,
			})
		}
	}
	return records
}

func (ix *Indexer) embedAndStore(ctx context.Context, records []vectorstore.Record) error {
	for start := 0; start < len(records); start += ix.opts.BatchSize {
		end := min(start+ix.opts.BatchSize, len(records))
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding count mismatch: sent %d, got %d", len(batch), len(vectors))
		}
		for i := range batch {
			batch[i].Vector = vectors[i]
		}
		if err := ix.store.Upsert(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) failed(res FileResult, err error) FileResult {
	ix.logger.Warn("index document failed", zap.String("path", res.Path), zap.Error(err))
	res.Status = StatusFailed
	res.Err = err
	return res
}

func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
