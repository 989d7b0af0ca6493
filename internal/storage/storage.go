// Package storage persists blog and post records as JSON documents.
//
// Every backend stores the same document bytes the caller hands in, keyed by
// the record id. Filters match top-level fields by equality; patches set
// fields or increment integer counters.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("storage: record not found")
	// ErrDuplicate is returned when a create would violate a unique key.
	ErrDuplicate = errors.New("storage: duplicate record")
	// ErrUnknownCollection is returned for collections outside the schema.
	ErrUnknownCollection = errors.New("storage: unknown collection")
)

// Collection names a set of records of one entity type.
type Collection string

const (
	Blogs Collection = "blogs"
	Posts Collection = "posts"
)

// Collections lists every collection a backend must serve.
var Collections = []Collection{Blogs, Posts}

// uniqueFields declares the secondary keys each collection enforces.
var uniqueFields = map[Collection][]string{
	Blogs: {"subdomain", "userId"},
}

func (c Collection) valid() error {
	for _, known := range Collections {
		if c == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownCollection, string(c))
}

// Document is one JSON-encoded record.
type Document = json.RawMessage

// Filter matches documents whose top-level fields equal every given value.
// An empty filter matches everything.
type Filter map[string]any

// Patch describes an in-place update.
type Patch struct {
	Set map[string]any
	Inc map[string]int64
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return len(p.Set) == 0 && len(p.Inc) == 0
}

// Backend is the persistence contract shared by every store.
type Backend interface {
	// Name identifies the backend in logs and health output.
	Name() string

	Create(ctx context.Context, c Collection, id string, doc Document) error
	Read(ctx context.Context, c Collection, id string) (Document, error)
	// Update applies p and returns the updated document.
	Update(ctx context.Context, c Collection, id string, p Patch) (Document, error)
	Delete(ctx context.Context, c Collection, id string) error
	List(ctx context.Context, c Collection, f Filter) ([]Document, error)

	UpdateMany(ctx context.Context, c Collection, f Filter, p Patch) (int64, error)
	DeleteMany(ctx context.Context, c Collection, f Filter) (int64, error)
	Count(ctx context.Context, c Collection, f Filter) (int64, error)

	Close(ctx context.Context) error
}

// decodeFields parses doc keeping numbers exact.
func decodeFields(doc Document) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if fields == nil {
		return nil, errors.New("decode document: not an object")
	}
	return fields, nil
}

// sameJSON compares two values by their JSON encoding, so that an int64
// filter value equals a json.Number read back from disk.
func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

func matches(fields map[string]any, f Filter) bool {
	for k, want := range f {
		got, ok := fields[k]
		if !ok || !sameJSON(got, want) {
			return false
		}
	}
	return true
}

func applyPatch(doc Document, p Patch) (Document, error) {
	fields, err := decodeFields(doc)
	if err != nil {
		return nil, err
	}
	for k, v := range p.Set {
		fields[k] = v
	}
	for k, delta := range p.Inc {
		var current int64
		switch v := fields[k].(type) {
		case nil:
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				f, ferr := v.Float64()
				if ferr != nil {
					return nil, fmt.Errorf("increment %s: %w", k, err)
				}
				n = int64(f)
			}
			current = n
		default:
			return nil, fmt.Errorf("increment %s: field is %T, not a number", k, v)
		}
		fields[k] = current + delta
	}
	return json.Marshal(fields)
}

func documentID(doc Document) (string, error) {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return "", fmt.Errorf("decode document id: %w", err)
	}
	return head.ID, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
