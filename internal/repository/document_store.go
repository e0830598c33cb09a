package repository

import (
	"context"
	"errors"
)

var (
	ErrCorruptDocument = errors.New("bucket document is corrupt")
)

// Document names of the persisted buckets
const (
	LiveDocument     = "data.json"
	TrashDocument    = "trash.json"
	UnfilledDocument = "unfilled.json"
	DraftDocument    = "draft.json"
	BackupSuffix     = ".bak"
)

// DocumentStore persists whole named documents. A missing document reads
// as nil data and no error. Write replaces the document atomically: a
// concurrent reader sees either the old or the new content.
type DocumentStore interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
}
