package service

import (
	"slices"
	"sort"

	"github.com/ds124wfegd/comment-tree/internal/entity"
)

// node is an arena entry. comment.Replies is always nil here; the
// children list holds the reply ids in insertion order.
type node struct {
	comment  entity.Comment
	parentID int64
	children []int64
}

func (s *CommentService) nextIDLocked(millis int64) int64 {
	id := millis
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func (s *CommentService) attachLocked(parentID int64, c entity.Comment) {
	c.Replies = nil
	s.nodes[c.ID] = &node{comment: c, parentID: parentID}
	if parentID == entity.RootID {
		s.roots = append(s.roots, c.ID)
		return
	}
	parent := s.nodes[parentID]
	parent.children = append(parent.children, c.ID)
}

// detachLocked removes id and its whole subtree and returns how many
// nodes were dropped.
func (s *CommentService) detachLocked(id int64) int {
	n, ok := s.nodes[id]
	if !ok {
		return 0
	}

	if n.parentID == entity.RootID {
		s.roots = slices.DeleteFunc(s.roots, func(v int64) bool { return v == id })
	} else if parent, ok := s.nodes[n.parentID]; ok {
		parent.children = slices.DeleteFunc(parent.children, func(v int64) bool { return v == id })
	}

	removed := 0
	stack := []int64{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cn, ok := s.nodes[cur]; ok {
			stack = append(stack, cn.children...)
			delete(s.nodes, cur)
			removed++
		}
	}
	return removed
}

// replaceLocked swaps the arena for the contents of tree.
func (s *CommentService) replaceLocked(tree entity.CommentTree) {
	s.nodes = make(map[int64]*node, tree.Count())
	s.roots = nil

	var walk func(parentID int64, nodes []entity.Comment)
	walk = func(parentID int64, nodes []entity.Comment) {
		for _, c := range nodes {
			s.attachLocked(parentID, c)
			if c.ID > s.lastID {
				s.lastID = c.ID
			}
			walk(c.ID, c.Replies)
		}
	}
	walk(entity.RootID, tree)
}

// buildLocked materializes ids into fresh slices at every level. With a
// non-empty order each level is stably sorted; the arena is never touched.
func (s *CommentService) buildLocked(ids []int64, order entity.SortOrder) []entity.Comment {
	out := make([]entity.Comment, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.subtreeLocked(id, order))
	}
	if order != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return order.Less(&out[i], &out[j])
		})
	}
	return out
}

func (s *CommentService) subtreeLocked(id int64, order entity.SortOrder) entity.Comment {
	n := s.nodes[id]
	c := n.comment
	c.Replies = s.buildLocked(n.children, order)
	return c
}

func (s *CommentService) snapshotLocked() entity.CommentTree {
	return s.buildLocked(s.roots, "")
}

func (s *CommentService) depthLocked(ids []int64) int {
	deepest := 0
	for _, id := range ids {
		if d := 1 + s.depthLocked(s.nodes[id].children); d > deepest {
			deepest = d
		}
	}
	return deepest
}

// levelLocked is the depth of an existing node; top-level nodes are at 1.
func (s *CommentService) levelLocked(id int64) int {
	level := 0
	for cur := id; cur != entity.RootID; cur = s.nodes[cur].parentID {
		level++
	}
	return level
}
