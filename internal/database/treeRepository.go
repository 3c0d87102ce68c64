package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ds124wfegd/comment-tree/config"
	"github.com/ds124wfegd/comment-tree/internal/entity"
	"github.com/sirupsen/logrus"
)

const DefaultKey = "comments"

// TreeRepository stores the whole tree under a single key.
type TreeRepository struct {
	storage  Storage
	key      string
	retries  uint
	interval time.Duration
}

func NewTreeRepository(storage Storage, cfg config.StorageConfig) *TreeRepository {
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	retries := cfg.SaveRetries
	if retries < 1 {
		retries = 1
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &TreeRepository{
		storage:  storage,
		key:      key,
		retries:  uint(retries),
		interval: interval,
	}
}

// Load returns an empty tree when nothing was saved yet. A malformed payload
// also yields an empty tree, together with a *entity.PersistenceError.
func (r *TreeRepository) Load(ctx context.Context) (entity.CommentTree, error) {
	data, err := r.storage.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, entity.ErrKeyNotFound) {
			return entity.CommentTree{}, nil
		}
		return entity.CommentTree{}, r.fail("load", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return entity.CommentTree{}, r.fail("load", errors.New("payload is not an array"))
	}

	var tree entity.CommentTree
	if err := tree.UnmarshalBinary(data); err != nil {
		return entity.CommentTree{}, r.fail("load", err)
	}
	if err := validateTree(tree); err != nil {
		return entity.CommentTree{}, r.fail("load", err)
	}
	if tree == nil {
		tree = entity.CommentTree{}
	}
	return tree, nil
}

// Save writes the full tree, retrying transient storage failures with
// exponential backoff.
func (r *TreeRepository) Save(ctx context.Context, tree entity.CommentTree) error {
	if depth := tree.Depth(); depth > entity.MaxDepth {
		return r.fail("save", fmt.Errorf("tree depth %d exceeds %d", depth, entity.MaxDepth))
	}

	data, err := tree.MarshalBinary()
	if err != nil {
		return r.fail("save", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.interval
	b.MaxInterval = 10 * r.interval

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.storage.Set(ctx, r.key, data)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.retries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logrus.WithFields(logrus.Fields{
				"key":   r.key,
				"retry": next,
			}).Warnf("Saving comments failed, retrying: %v", err)
		}),
	)
	if err != nil {
		return r.fail("save", err)
	}
	return nil
}

func (r *TreeRepository) fail(op string, err error) error {
	return &entity.PersistenceError{Op: op, Key: r.key, Err: err}
}

func validateTree(tree entity.CommentTree) error {
	seen := make(map[int64]struct{})
	var walk func(nodes []entity.Comment, depth int) error
	walk = func(nodes []entity.Comment, depth int) error {
		if len(nodes) > 0 && depth > entity.MaxDepth {
			return fmt.Errorf("tree depth exceeds %d", entity.MaxDepth)
		}
		for _, c := range nodes {
			if c.ID <= entity.RootID {
				return fmt.Errorf("invalid comment id %d", c.ID)
			}
			if strings.TrimSpace(c.Author) == "" || strings.TrimSpace(c.Text) == "" {
				return fmt.Errorf("comment %d has empty name or text", c.ID)
			}
			if _, dup := seen[c.ID]; dup {
				return fmt.Errorf("duplicate comment id %d", c.ID)
			}
			seen[c.ID] = struct{}{}
			if err := walk(c.Replies, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(tree, 1)
}
