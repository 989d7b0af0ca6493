package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/maximcoj/teleblog/core/logger"
)

// FileBackend keeps every collection in memory and mirrors it to
// <dir>/<collection>.json as a JSON array after each mutation.
//
// A failed disk write is logged and swallowed; memory stays authoritative
// until the process exits.
type FileBackend struct {
	dir  string
	cols map[Collection]*fileCollection

	// writeFile is replaced in tests to simulate disk failures.
	writeFile func(path string, data []byte) error
}

type fileCollection struct {
	mu    sync.RWMutex
	name  Collection
	path  string
	order []string
	docs  map[string]Document
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend loads existing collection files from dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	b := &FileBackend{
		dir:       dir,
		cols:      make(map[Collection]*fileCollection, len(Collections)),
		writeFile: atomicWrite,
	}
	for _, c := range Collections {
		col := &fileCollection{
			name: c,
			path: filepath.Join(dir, string(c)+".json"),
			docs: make(map[string]Document),
		}
		if err := col.load(); err != nil {
			return nil, err
		}
		b.cols[c] = col
	}
	return b, nil
}

func (b *FileBackend) Name() string { return "file" }

func (col *fileCollection) load() error {
	data, err := os.ReadFile(col.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", col.path, err)
	}
	var records []Document
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse %s: %w", col.path, err)
	}
	for i, rec := range records {
		id, err := documentID(rec)
		if err != nil || id == "" {
			logger.Storage.Warn("record without id skipped",
				slog.String("event", "storage.load"),
				slog.String("collection", string(col.name)),
				slog.Int("index", i),
			)
			continue
		}
		if _, dup := col.docs[id]; !dup {
			col.order = append(col.order, id)
		}
		col.docs[id] = rec
	}
	logger.Storage.Debug("collection loaded",
		slog.String("event", "storage.load"),
		slog.String("collection", string(col.name)),
		slog.Int("count", len(col.order)),
	)
	return nil
}

func (b *FileBackend) collection(c Collection) (*fileCollection, error) {
	if err := c.valid(); err != nil {
		return nil, err
	}
	return b.cols[c], nil
}

// persist rewrites the whole collection file. Caller holds col.mu.
func (b *FileBackend) persist(ctx context.Context, col *fileCollection) {
	records := make([]Document, 0, len(col.order))
	for _, id := range col.order {
		records = append(records, col.docs[id])
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err == nil {
		err = b.writeFile(col.path, data)
	}
	if err != nil {
		logger.LogEvent(ctx, logger.Storage, slog.LevelError, "storage.persist",
			slog.String("status", "fail"),
			slog.String("collection", string(col.name)),
			slog.String("path", col.path),
			logger.Err(err),
		)
	}
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (b *FileBackend) Create(ctx context.Context, c Collection, id string, doc Document) error {
	col, err := b.collection(c)
	if err != nil {
		return err
	}
	fields, err := decodeFields(doc)
	if err != nil {
		return err
	}

	col.mu.Lock()
	defer col.mu.Unlock()
	if _, exists := col.docs[id]; exists {
		return fmt.Errorf("%w: %s/%s", ErrDuplicate, c, id)
	}
	if err := col.checkUnique(fields); err != nil {
		return err
	}
	col.docs[id] = append(Document(nil), doc...)
	col.order = append(col.order, id)
	b.persist(ctx, col)
	return nil
}

// checkUnique enforces uniqueFields for a new record. Caller holds col.mu.
func (col *fileCollection) checkUnique(fields map[string]any) error {
	keys := uniqueFields[col.name]
	if len(keys) == 0 {
		return nil
	}
	for _, existing := range col.docs {
		other, err := decodeFields(existing)
		if err != nil {
			continue
		}
		for _, k := range keys {
			v, ok := fields[k]
			if ok && sameJSON(other[k], v) {
				return fmt.Errorf("%w: %s.%s", ErrDuplicate, col.name, k)
			}
		}
	}
	return nil
}

func (b *FileBackend) Read(_ context.Context, c Collection, id string) (Document, error) {
	col, err := b.collection(c)
	if err != nil {
		return nil, err
	}
	col.mu.RLock()
	defer col.mu.RUnlock()
	doc, ok := col.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append(Document(nil), doc...), nil
}

func (b *FileBackend) Update(ctx context.Context, c Collection, id string, p Patch) (Document, error) {
	col, err := b.collection(c)
	if err != nil {
		return nil, err
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	doc, ok := col.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.IsZero() {
		return append(Document(nil), doc...), nil
	}
	updated, err := applyPatch(doc, p)
	if err != nil {
		return nil, err
	}
	col.docs[id] = updated
	b.persist(ctx, col)
	return append(Document(nil), updated...), nil
}

func (b *FileBackend) Delete(ctx context.Context, c Collection, id string) error {
	col, err := b.collection(c)
	if err != nil {
		return err
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	if _, ok := col.docs[id]; !ok {
		return ErrNotFound
	}
	col.remove(map[string]struct{}{id: {}})
	b.persist(ctx, col)
	return nil
}

// remove drops ids from the collection. Caller holds col.mu.
func (col *fileCollection) remove(ids map[string]struct{}) {
	kept := col.order[:0]
	for _, id := range col.order {
		if _, drop := ids[id]; drop {
			delete(col.docs, id)
			continue
		}
		kept = append(kept, id)
	}
	col.order = kept
}

// matching returns ids in insertion order whose document satisfies f. Caller holds col.mu.
func (col *fileCollection) matching(f Filter) []string {
	var ids []string
	for _, id := range col.order {
		if len(f) == 0 {
			ids = append(ids, id)
			continue
		}
		fields, err := decodeFields(col.docs[id])
		if err != nil {
			continue
		}
		if matches(fields, f) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (b *FileBackend) List(_ context.Context, c Collection, f Filter) ([]Document, error) {
	col, err := b.collection(c)
	if err != nil {
		return nil, err
	}
	col.mu.RLock()
	defer col.mu.RUnlock()
	ids := col.matching(f)
	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, append(Document(nil), col.docs[id]...))
	}
	return out, nil
}

func (b *FileBackend) UpdateMany(ctx context.Context, c Collection, f Filter, p Patch) (int64, error) {
	col, err := b.collection(c)
	if err != nil {
		return 0, err
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	ids := col.matching(f)
	if len(ids) == 0 || p.IsZero() {
		return int64(len(ids)), nil
	}
	// All or nothing: the collection is only touched once every patch applied.
	updated := make(map[string]Document, len(ids))
	for _, id := range ids {
		doc, err := applyPatch(col.docs[id], p)
		if err != nil {
			return 0, fmt.Errorf("update %s/%s: %w", c, id, err)
		}
		updated[id] = doc
	}
	for id, doc := range updated {
		col.docs[id] = doc
	}
	b.persist(ctx, col)
	return int64(len(ids)), nil
}

func (b *FileBackend) DeleteMany(ctx context.Context, c Collection, f Filter) (int64, error) {
	col, err := b.collection(c)
	if err != nil {
		return 0, err
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	ids := col.matching(f)
	if len(ids) == 0 {
		return 0, nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	col.remove(drop)
	b.persist(ctx, col)
	return int64(len(ids)), nil
}

func (b *FileBackend) Count(_ context.Context, c Collection, f Filter) (int64, error) {
	col, err := b.collection(c)
	if err != nil {
		return 0, err
	}
	col.mu.RLock()
	defer col.mu.RUnlock()
	return int64(len(col.matching(f))), nil
}

func (b *FileBackend) Close(context.Context) error { return nil }
