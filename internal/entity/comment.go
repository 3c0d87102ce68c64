package entity

import (
	"encoding/json"
	"time"
)

// RootID is the parent id of top-level comments.
const RootID int64 = 0

// MaxDepth caps reply nesting. A top-level comment is at depth 1. The limit
// keeps the serialized tree well under the JSON decoder's nesting limit,
// which counts two levels per reply.
const MaxDepth = 1000

// Comment is one node of the tree. JSON keys follow the persisted format
// ("name" for the author, ISO-8601 "date").
type Comment struct {
	ID        int64     `json:"id"`
	Author    string    `json:"name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"date"`
	Replies   []Comment `json:"replies"`
}

// CommentTree is the ordered forest of top-level comments.
type CommentTree []Comment

type CreateCommentRequest struct {
	ParentID *int64 `json:"parent_id"`
	Author   string `json:"author"`
	Text     string `json:"text"`
}

type EditCommentRequest struct {
	Text string `json:"text"`
}

type CommentResponse struct {
	Comment *Comment `json:"comment"`
	Warning string   `json:"warning,omitempty"`
}

type CommentsResponse struct {
	Comments CommentTree `json:"comments"`
	Total    int         `json:"total"`
	Sort     SortOrder   `json:"sort"`
	Warning  string      `json:"warning,omitempty"`
}

type Stats struct {
	RootComments  int `json:"root_comments"`
	TotalComments int `json:"total_comments"`
	MaxDepth      int `json:"max_depth"`
}

// Для сериализации в Redis
func (t CommentTree) MarshalBinary() ([]byte, error) {
	if t == nil {
		t = CommentTree{}
	}
	return json.Marshal([]Comment(t))
}

func (t *CommentTree) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, (*[]Comment)(t))
}

// Count returns the number of nodes in the forest, replies included.
func (t CommentTree) Count() int {
	n := 0
	for _, c := range t {
		n += 1 + CommentTree(c.Replies).Count()
	}
	return n
}

// Depth returns the nesting depth of the forest: 0 when empty, 1 when it
// holds only top-level comments.
func (t CommentTree) Depth() int {
	deepest := 0
	for _, c := range t {
		if d := 1 + CommentTree(c.Replies).Depth(); d > deepest {
			deepest = d
		}
	}
	return deepest
}

// Find walks the forest depth-first and returns the node with the given id.
func (t CommentTree) Find(id int64) (*Comment, bool) {
	for i := range t {
		if t[i].ID == id {
			return &t[i], true
		}
		if c, ok := CommentTree(t[i].Replies).Find(id); ok {
			return c, true
		}
	}
	return nil, false
}
