package entity

import (
	"fmt"
	"strings"
)

type SortOrder string

const (
	NewestFirst      SortOrder = "newest"
	OldestFirst      SortOrder = "oldest"
	MostRepliesFirst SortOrder = "most_replies"

	DefaultSortOrder = NewestFirst
)

// ParseSortOrder accepts the canonical names plus the "mostReplies" spelling
// used by the browser widget. An empty string yields the default order.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultSortOrder, nil
	case "newest", "newest_first":
		return NewestFirst, nil
	case "oldest", "oldest_first":
		return OldestFirst, nil
	case "most_replies", "mostreplies", "most_replies_first":
		return MostRepliesFirst, nil
	}
	return "", fmt.Errorf("%w: unknown sort order %q", ErrValidation, s)
}

// Less reports whether a sorts before b under the order.
// Equal keys report false so a stable sort keeps insertion order.
func (o SortOrder) Less(a, b *Comment) bool {
	switch o {
	case OldestFirst:
		return a.CreatedAt.Before(b.CreatedAt)
	case MostRepliesFirst:
		return len(a.Replies) > len(b.Replies)
	default:
		return a.CreatedAt.After(b.CreatedAt)
	}
}
