package database

import (
	"context"

	"github.com/ds124wfegd/comment-tree/internal/entity"
)

// Storage is a key-value byte store holding opaque blobs.
// Get returns entity.ErrKeyNotFound when the key is absent.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Repository loads and saves the whole comment tree as one blob.
type Repository interface {
	Load(ctx context.Context) (entity.CommentTree, error)
	Save(ctx context.Context, tree entity.CommentTree) error
}
