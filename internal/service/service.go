package service

import (
	"sync"
	"time"

	"github.com/ds124wfegd/comment-tree/config"
	"github.com/ds124wfegd/comment-tree/internal/database"
	"github.com/ds124wfegd/comment-tree/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	warnLoad = "Error loading comments. Please try refreshing the page."
	warnSave = "Error saving comments. Your changes may not persist."
)

// CommentService owns the comment tree. The tree is kept in memory and
// written through the repository after every mutation; the in-memory copy
// stays authoritative when a write fails.
//
// All exported methods are serialized by one mutex, so the service may be
// shared between HTTP handlers.
type CommentService struct {
	repo database.Repository

	mu          sync.Mutex
	nodes       map[int64]*node
	roots       []int64
	lastID      int64
	warning     string
	defaultSort entity.SortOrder
	now         func() time.Time

	obsMu     sync.Mutex
	observers map[int]func(entity.CommentTree)
	nextObsID int
}

func NewCommentService(repo database.Repository, cfg config.AppConfig) *CommentService {
	order, err := entity.ParseSortOrder(cfg.DefaultSort)
	if err != nil {
		logrus.WithField("default_sort", cfg.DefaultSort).Warn("Unknown default sort order, using newest")
		order = entity.DefaultSortOrder
	}

	return &CommentService{
		repo:        repo,
		nodes:       make(map[int64]*node),
		defaultSort: order,
		now:         time.Now,
		observers:   make(map[int]func(entity.CommentTree)),
	}
}

// DefaultSort is the order used when the caller did not pick one.
func (s *CommentService) DefaultSort() entity.SortOrder {
	return s.defaultSort
}

// LastWarning returns the message of the last failed load or save, or ""
// once a later save succeeded.
func (s *CommentService) LastWarning() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warning
}

// Subscribe registers fn to receive a snapshot of the tree after every
// mutation and load. The snapshot must be treated as read-only.
func (s *CommentService) Subscribe(fn func(entity.CommentTree)) (unsubscribe func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

func (s *CommentService) notify(tree entity.CommentTree) {
	s.obsMu.Lock()
	fns := make([]func(entity.CommentTree), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(tree)
	}
}
