package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ds124wfegd/comment-tree/internal/entity"
	"github.com/sirupsen/logrus"
)

// Load replaces the in-memory tree with the stored one. When the stored
// data is unreadable the tree starts empty and the persistence error is
// returned as a warning.
func (s *CommentService) Load(ctx context.Context) error {
	tree, err := s.repo.Load(ctx)

	s.mu.Lock()
	s.replaceLocked(tree)
	if err != nil {
		s.warning = warnLoad
	} else {
		s.warning = ""
	}
	snapshot := s.snapshotLocked()
	total := len(s.nodes)
	s.mu.Unlock()

	if err != nil {
		logrus.WithError(err).Error("Error loading comments")
	} else {
		logrus.WithField("total", total).Info("Comments loaded")
	}

	s.notify(snapshot)
	return err
}

// Insert adds a comment under parentID, or at the top level when parentID
// is entity.RootID. Replies deeper than entity.MaxDepth are rejected. If
// only the save fails, the created comment is returned along with the
// persistence error.
func (s *CommentService) Insert(ctx context.Context, parentID int64, author, text string) (*entity.Comment, error) {
	if strings.TrimSpace(author) == "" || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: both name and comment are required", entity.ErrValidation)
	}

	s.mu.Lock()
	if parentID != entity.RootID {
		if _, ok := s.nodes[parentID]; !ok {
			s.mu.Unlock()
			logrus.WithField("parent_id", parentID).Warn("Reply to unknown comment")
			return nil, fmt.Errorf("%w: parent %d", entity.ErrNotFound, parentID)
		}
		if depth := s.levelLocked(parentID) + 1; depth > entity.MaxDepth {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: replies cannot be nested deeper than %d levels", entity.ErrValidation, entity.MaxDepth)
		}
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	comment := entity.Comment{
		ID:        s.nextIDLocked(now.UnixMilli()),
		Author:    author,
		Text:      text,
		CreatedAt: now,
		Replies:   []entity.Comment{},
	}
	s.attachLocked(parentID, comment)

	snapshot, err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(snapshot)
	return &comment, err
}

// Edit replaces the text of one comment. Everything else, replies included,
// is left as it was.
func (s *CommentService) Edit(ctx context.Context, id int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: comment text cannot be empty", entity.ErrValidation)
	}

	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		logrus.WithField("id", id).Warn("Edit of unknown comment")
		return fmt.Errorf("%w: %d", entity.ErrNotFound, id)
	}
	n.comment.Text = text

	snapshot, err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(snapshot)
	return err
}

// Delete removes a comment together with all of its replies. Deleting an
// unknown id is a no-op.
func (s *CommentService) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	removed := s.detachLocked(id)
	if removed == 0 {
		s.mu.Unlock()
		logrus.WithField("id", id).Debug("Delete of unknown comment ignored")
		return nil
	}

	snapshot, err := s.persistLocked(ctx)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"id": id, "removed": removed}).Info("Comment deleted")
	s.notify(snapshot)
	return err
}

// SortedView returns a copy of the tree with every level ordered by order.
// Equal keys keep insertion order. The stored order is not affected.
func (s *CommentService) SortedView(order entity.SortOrder) entity.CommentTree {
	if order == "" {
		order = s.defaultSort
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildLocked(s.roots, order)
}

// Snapshot returns a copy of the tree in insertion order.
func (s *CommentService) Snapshot() entity.CommentTree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Get returns a copy of one comment with its replies in insertion order.
func (s *CommentService) Get(id int64) (*entity.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %d", entity.ErrNotFound, id)
	}
	c := s.subtreeLocked(id, "")
	return &c, nil
}

// Search matches query against text and author, case-insensitively, at any
// depth. Each match carries its own replies.
func (s *CommentService) Search(query string, order entity.SortOrder) ([]entity.Comment, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", entity.ErrValidation)
	}
	if order == "" {
		order = s.defaultSort
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results := []entity.Comment{}
	var walk func(ids []int64)
	walk = func(ids []int64) {
		for _, id := range ids {
			n := s.nodes[id]
			if strings.Contains(strings.ToLower(n.comment.Text), query) ||
				strings.Contains(strings.ToLower(n.comment.Author), query) {
				results = append(results, s.subtreeLocked(id, ""))
			}
			walk(n.children)
		}
	}
	walk(s.roots)

	sort.SliceStable(results, func(i, j int) bool {
		return order.Less(&results[i], &results[j])
	})
	return results, nil
}

func (s *CommentService) Stats() entity.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return entity.Stats{
		RootComments:  len(s.roots),
		TotalComments: len(s.nodes),
		MaxDepth:      s.depthLocked(s.roots),
	}
}

// persistLocked saves the whole tree. Failures are kept as the current
// warning and returned; the in-memory tree is not rolled back.
func (s *CommentService) persistLocked(ctx context.Context) (entity.CommentTree, error) {
	snapshot := s.snapshotLocked()

	if err := s.repo.Save(ctx, snapshot); err != nil {
		s.warning = warnSave
		logrus.WithError(err).Error("Error saving comments")
		if !errors.Is(err, entity.ErrPersistence) {
			err = &entity.PersistenceError{Op: "save", Err: err}
		}
		return snapshot, err
	}
	s.warning = ""
	return snapshot, nil
}
