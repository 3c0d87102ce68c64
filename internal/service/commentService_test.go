package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ds124wfegd/comment-tree/config"
	"github.com/ds124wfegd/comment-tree/internal/database"
	"github.com/ds124wfegd/comment-tree/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingRepo имитирует переполненное хранилище
type failingRepo struct {
	database.Repository
	saveErr error
	saves   int
}

func (r *failingRepo) Save(ctx context.Context, tree entity.CommentTree) error {
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.Repository.Save(ctx, tree)
}

func testStorageConfig() config.StorageConfig {
	return config.StorageConfig{Key: "comments", SaveRetries: 1, RetryInterval: time.Millisecond}
}

// newTestService возвращает сервис с часами, которые идут на секунду за вызов
func newTestService(t *testing.T) (*CommentService, *database.TreeRepository) {
	t.Helper()
	repo := database.NewTreeRepository(database.NewMemoryStorage(), testStorageConfig())
	s := NewCommentService(repo, config.AppConfig{DefaultSort: "newest"})

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	require.NoError(t, s.Load(context.Background()))
	return s, repo
}

func mustInsert(t *testing.T, s *CommentService, parentID int64, author, text string) *entity.Comment {
	t.Helper()
	c, err := s.Insert(context.Background(), parentID, author, text)
	require.NoError(t, err)
	return c
}

func ids(nodes []entity.Comment) []int64 {
	out := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func allIDs(tree entity.CommentTree) map[int64]bool {
	out := map[int64]bool{}
	var walk func([]entity.Comment)
	walk = func(nodes []entity.Comment) {
		for _, n := range nodes {
			out[n.ID] = true
			walk(n.Replies)
		}
	}
	walk(tree)
	return out
}

// TestScenario проходит сценарий: комментарий, ответ, удаление, правка удалённого
func TestScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	ann := mustInsert(t, s, entity.RootID, "Ann", "Hi")
	tree := s.Snapshot()
	require.Len(t, tree, 1)
	assert.Empty(t, tree[0].Replies)

	mustInsert(t, s, ann.ID, "Bo", "Hello")
	tree = s.Snapshot()
	require.Len(t, tree[0].Replies, 1)
	assert.Equal(t, "Bo", tree[0].Replies[0].Author)

	require.NoError(t, s.Delete(ctx, ann.ID))
	assert.Empty(t, s.Snapshot())

	err := s.Edit(ctx, ann.ID, "changed")
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.Empty(t, s.Snapshot())
}

func TestInsertValidation(t *testing.T) {
	tests := []struct {
		name   string
		author string
		text   string
	}{
		{name: "empty author", author: "", text: "Hi"},
		{name: "blank author", author: "  \t", text: "Hi"},
		{name: "empty text", author: "Ann", text: ""},
		{name: "blank text", author: "Ann", text: "\n  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, repo := newTestService(t)

			c, err := s.Insert(context.Background(), entity.RootID, tt.author, tt.text)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, entity.ErrValidation)
			assert.Empty(t, s.Snapshot())

			stored, err := repo.Load(context.Background())
			require.NoError(t, err)
			assert.Empty(t, stored)
		})
	}
}

func TestInsertUnknownParent(t *testing.T) {
	s, _ := newTestService(t)
	mustInsert(t, s, entity.RootID, "Ann", "Hi")

	c, err := s.Insert(context.Background(), 999, "Bo", "Hello")
	assert.Nil(t, c)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.Equal(t, 1, s.Stats().TotalComments)
}

func TestInsertDeepReply(t *testing.T) {
	s, _ := newTestService(t)

	parent := mustInsert(t, s, entity.RootID, "Ann", "level 1")
	for i := 0; i < 5; i++ {
		parent = mustInsert(t, s, parent.ID, "Bo", "deeper")
	}
	reply := mustInsert(t, s, parent.ID, "Cy", "leaf")

	tree := s.Snapshot()
	found, ok := tree.Find(reply.ID)
	require.True(t, ok)
	assert.Equal(t, "Cy", found.Author)
	assert.Equal(t, "leaf", found.Text)

	p, ok := tree.Find(parent.ID)
	require.True(t, ok)
	require.Len(t, p.Replies, 1)
	assert.Equal(t, reply.ID, p.Replies[0].ID)
	assert.Equal(t, 7, s.Stats().MaxDepth)
}

func TestInsertAppearsInEverySortedView(t *testing.T) {
	s, _ := newTestService(t)
	root := mustInsert(t, s, entity.RootID, "Ann", "Hi")
	mustInsert(t, s, entity.RootID, "Di", "Other")
	reply := mustInsert(t, s, root.ID, "Bo", "Hello")

	for _, order := range []entity.SortOrder{entity.NewestFirst, entity.OldestFirst, entity.MostRepliesFirst} {
		t.Run(string(order), func(t *testing.T) {
			view := s.SortedView(order)
			p, ok := view.Find(root.ID)
			require.True(t, ok)

			matches := 0
			for _, r := range p.Replies {
				if r.ID == reply.ID && r.Author == "Bo" && r.Text == "Hello" {
					matches++
				}
			}
			assert.Equal(t, 1, matches)
		})
	}
}

func TestIDsAreUniqueWhenClockStalls(t *testing.T) {
	s, _ := newTestService(t)
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }

	seen := map[int64]bool{}
	var prev int64
	for i := 0; i < 20; i++ {
		c := mustInsert(t, s, entity.RootID, "Ann", "same millisecond")
		assert.False(t, seen[c.ID])
		assert.Greater(t, c.ID, prev)
		seen[c.ID] = true
		prev = c.ID
	}
}

func TestEditChangesOnlyText(t *testing.T) {
	s, _ := newTestService(t)
	root := mustInsert(t, s, entity.RootID, "Ann", "Hi")
	mustInsert(t, s, root.ID, "Bo", "Hello")
	mustInsert(t, s, root.ID, "Cy", "Hey")

	before, err := s.Get(root.ID)
	require.NoError(t, err)

	require.NoError(t, s.Edit(context.Background(), root.ID, "Hi, edited"))

	after, err := s.Get(root.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hi, edited", after.Text)

	after.Text = before.Text
	assert.Equal(t, before, after)
}

func TestEditValidation(t *testing.T) {
	s, _ := newTestService(t)
	root := mustInsert(t, s, entity.RootID, "Ann", "Hi")

	err := s.Edit(context.Background(), root.ID, "   ")
	assert.ErrorIs(t, err, entity.ErrValidation)

	got, err := s.Get(root.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hi", got.Text)
}

func TestDeleteRemovesSubtreeOnly(t *testing.T) {
	s, _ := newTestService(t)
	a := mustInsert(t, s, entity.RootID, "Ann", "a")
	b := mustInsert(t, s, a.ID, "Bo", "b")
	c := mustInsert(t, s, b.ID, "Cy", "c")
	d := mustInsert(t, s, a.ID, "Di", "d")
	e := mustInsert(t, s, entity.RootID, "Ed", "e")
	f := mustInsert(t, s, e.ID, "Fay", "f")

	require.NoError(t, s.Delete(context.Background(), b.ID))

	got := allIDs(s.Snapshot())
	assert.Equal(t, map[int64]bool{a.ID: true, d.ID: true, e.ID: true, f.ID: true}, got)
	assert.NotContains(t, got, c.ID)

	tree := s.Snapshot()
	assert.Equal(t, []int64{a.ID, e.ID}, ids(tree))
	assert.Equal(t, []int64{d.ID}, ids(tree[0].Replies))
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	a := mustInsert(t, s, entity.RootID, "Ann", "a")

	require.NoError(t, s.Delete(ctx, 12345))
	require.NoError(t, s.Delete(ctx, a.ID))
	require.NoError(t, s.Delete(ctx, a.ID))
	assert.Empty(t, s.Snapshot())
}

// TestSortedViewOrders проверяет сортировку на каждом уровне вложенности
func TestSortedViewOrders(t *testing.T) {
	s, _ := newTestService(t)
	a := mustInsert(t, s, entity.RootID, "Ann", "a")
	b := mustInsert(t, s, entity.RootID, "Bo", "b")
	c := mustInsert(t, s, entity.RootID, "Cy", "c")
	a1 := mustInsert(t, s, a.ID, "x", "a1")
	a2 := mustInsert(t, s, a.ID, "x", "a2")
	c1 := mustInsert(t, s, c.ID, "x", "c1")
	a11 := mustInsert(t, s, a1.ID, "x", "a11")
	a12 := mustInsert(t, s, a1.ID, "x", "a12")
	a21 := mustInsert(t, s, a2.ID, "x", "a21")
	a22 := mustInsert(t, s, a2.ID, "x", "a22")
	a23 := mustInsert(t, s, a2.ID, "x", "a23")

	newest := s.SortedView(entity.NewestFirst)
	assert.Equal(t, []int64{c.ID, b.ID, a.ID}, ids(newest))
	assert.Equal(t, []int64{a2.ID, a1.ID}, ids(newest[2].Replies))
	assert.Equal(t, []int64{a12.ID, a11.ID}, ids(newest[2].Replies[1].Replies))

	oldest := s.SortedView(entity.OldestFirst)
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, ids(oldest))
	assert.Equal(t, []int64{a1.ID, a2.ID}, ids(oldest[0].Replies))
	assert.Equal(t, []int64{a21.ID, a22.ID, a23.ID}, ids(oldest[0].Replies[1].Replies))

	most := s.SortedView(entity.MostRepliesFirst)
	// a: 2 ответа, c: 1, b: 0
	assert.Equal(t, []int64{a.ID, c.ID, b.ID}, ids(most))
	// a2: 3 ответа, a1: 2 — считаются только прямые ответы
	assert.Equal(t, []int64{a2.ID, a1.ID}, ids(most[0].Replies))
	assert.Equal(t, []int64{c1.ID}, ids(most[1].Replies))
}

func TestSortedViewNewestOldestAreReverses(t *testing.T) {
	s, _ := newTestService(t)
	var roots []int64
	for i := 0; i < 6; i++ {
		roots = append(roots, mustInsert(t, s, entity.RootID, "Ann", "x").ID)
	}
	canonical := ids(s.SortedView(entity.MostRepliesFirst))

	newest := ids(s.SortedView(entity.NewestFirst))
	oldest := ids(s.SortedView(entity.OldestFirst))

	reversed := make([]int64, len(oldest))
	for i, id := range oldest {
		reversed[len(oldest)-1-i] = id
	}
	assert.Equal(t, newest, reversed)
	assert.Equal(t, roots, oldest)

	// третий порядок не зависит от двух предыдущих просмотров
	assert.Equal(t, canonical, ids(s.SortedView(entity.MostRepliesFirst)))
	assert.Equal(t, roots, ids(s.Snapshot()))
}

func TestSortedViewIsStableOnTies(t *testing.T) {
	s, _ := newTestService(t)
	var roots []int64
	for i := 0; i < 5; i++ {
		roots = append(roots, mustInsert(t, s, entity.RootID, "Ann", "x").ID)
	}
	mustInsert(t, s, roots[3], "Bo", "only reply")

	got := ids(s.SortedView(entity.MostRepliesFirst))
	assert.Equal(t, []int64{roots[3], roots[0], roots[1], roots[2], roots[4]}, got)

	frozen := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }
	t1 := mustInsert(t, s, entity.RootID, "Cy", "tie 1")
	t2 := mustInsert(t, s, entity.RootID, "Cy", "tie 2")

	newest := ids(s.SortedView(entity.NewestFirst))
	assert.Equal(t, []int64{t1.ID, t2.ID}, newest[:2])
}

func TestSortedViewDoesNotShareStorage(t *testing.T) {
	s, _ := newTestService(t)
	a := mustInsert(t, s, entity.RootID, "Ann", "a")
	mustInsert(t, s, a.ID, "Bo", "b")

	view := s.SortedView(entity.NewestFirst)
	view[0].Text = "tampered"
	view[0].Replies[0].Author = "tampered"
	view[0].Replies = nil

	tree := s.Snapshot()
	assert.Equal(t, "a", tree[0].Text)
	require.Len(t, tree[0].Replies, 1)
	assert.Equal(t, "Bo", tree[0].Replies[0].Author)
}

func TestSortedViewDefaultOrder(t *testing.T) {
	s, _ := newTestService(t)
	a := mustInsert(t, s, entity.RootID, "Ann", "a")
	b := mustInsert(t, s, entity.RootID, "Bo", "b")

	assert.Equal(t, []int64{b.ID, a.ID}, ids(s.SortedView("")))
}

func TestEveryMutationIsPersisted(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService(t)

	a := mustInsert(t, s, entity.RootID, "Ann", "a")
	b := mustInsert(t, s, a.ID, "Bo", "b")
	require.NoError(t, s.Edit(ctx, b.ID, "b2"))

	stored, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), stored)

	require.NoError(t, s.Delete(ctx, a.ID))
	stored, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestLoadRestoresTreeAndIDs(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService(t)
	a := mustInsert(t, s, entity.RootID, "Ann", "a")
	b := mustInsert(t, s, a.ID, "Bo", "b")

	restored := NewCommentService(repo, config.AppConfig{})
	restored.now = func() time.Time { return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, restored.Load(ctx))

	assert.Equal(t, s.Snapshot(), restored.Snapshot())

	// часы отстают, но новый id всё равно больше загруженных
	c, err := restored.Insert(ctx, b.ID, "Cy", "c")
	require.NoError(t, err)
	assert.Greater(t, c.ID, b.ID)
}

func TestLoadCorruptedStorage(t *testing.T) {
	ctx := context.Background()
	storage := database.NewMemoryStorage()
	require.NoError(t, storage.Set(ctx, "comments", []byte(`{"not":"an array"}`)))
	repo := database.NewTreeRepository(storage, testStorageConfig())

	s := NewCommentService(repo, config.AppConfig{})
	err := s.Load(ctx)

	assert.ErrorIs(t, err, entity.ErrPersistence)
	assert.Empty(t, s.Snapshot())
	assert.NotEmpty(t, s.LastWarning())

	// сервис остаётся рабочим
	c, err := s.Insert(ctx, entity.RootID, "Ann", "a")
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Empty(t, s.LastWarning())
}

func TestSaveFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	inner := database.NewTreeRepository(database.NewMemoryStorage(), testStorageConfig())
	repo := &failingRepo{Repository: inner, saveErr: &entity.PersistenceError{Op: "save", Err: errors.New("quota exceeded")}}
	s := NewCommentService(repo, config.AppConfig{})

	c, err := s.Insert(ctx, entity.RootID, "Ann", "a")
	assert.ErrorIs(t, err, entity.ErrPersistence)
	require.NotNil(t, c)
	assert.Equal(t, "Ann", c.Author)
	assert.Len(t, s.Snapshot(), 1)
	assert.Equal(t, warnSave, s.LastWarning())

	err = s.Edit(ctx, c.ID, "b")
	assert.ErrorIs(t, err, entity.ErrPersistence)
	got, _ := s.Get(c.ID)
	assert.Equal(t, "b", got.Text)

	repo.saveErr = nil
	require.NoError(t, s.Delete(ctx, c.ID))
	assert.Empty(t, s.Snapshot())
	assert.Empty(t, s.LastWarning())
	assert.Equal(t, 3, repo.saves)
}

func TestSaveFailureWrapsPlainErrors(t *testing.T) {
	inner := database.NewTreeRepository(database.NewMemoryStorage(), testStorageConfig())
	repo := &failingRepo{Repository: inner, saveErr: errors.New("disk full")}
	s := NewCommentService(repo, config.AppConfig{})

	_, err := s.Insert(context.Background(), entity.RootID, "Ann", "a")
	assert.ErrorIs(t, err, entity.ErrPersistence)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	var got []int
	unsubscribe := s.Subscribe(func(tree entity.CommentTree) {
		got = append(got, tree.Count())
	})

	a := mustInsert(t, s, entity.RootID, "Ann", "a")
	mustInsert(t, s, a.ID, "Bo", "b")
	require.NoError(t, s.Edit(ctx, a.ID, "a2"))
	require.NoError(t, s.Delete(ctx, 777))
	require.NoError(t, s.Delete(ctx, a.ID))

	unsubscribe()
	mustInsert(t, s, entity.RootID, "Cy", "c")

	assert.Equal(t, []int{1, 2, 2, 0}, got)
}

func TestSubscriberMayCallBack(t *testing.T) {
	s, _ := newTestService(t)

	var stats entity.Stats
	s.Subscribe(func(entity.CommentTree) {
		stats = s.Stats()
	})

	mustInsert(t, s, entity.RootID, "Ann", "a")
	assert.Equal(t, 1, stats.TotalComments)
}

func TestSearch(t *testing.T) {
	s, _ := newTestService(t)
	a := mustInsert(t, s, entity.RootID, "Ann", "Go is fun")
	b := mustInsert(t, s, a.ID, "Bo", "I prefer rust")
	c := mustInsert(t, s, b.ID, "Gopher", "agreed")
	mustInsert(t, s, entity.RootID, "Di", "nothing here")

	results, err := s.Search("GO", entity.OldestFirst)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, c.ID}, ids(results))
	// совпадение возвращается вместе со своими ответами
	require.Len(t, results[0].Replies, 1)
	assert.Equal(t, b.ID, results[0].Replies[0].ID)
	assert.Equal(t, []int64{c.ID}, ids(results[0].Replies[0].Replies))
	assert.Empty(t, results[1].Replies)

	results, err = s.Search("go", entity.NewestFirst)
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID, a.ID}, ids(results))

	results, err = s.Search("zzz", "")
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = s.Search("  ", "")
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestStats(t *testing.T) {
	s, _ := newTestService(t)
	assert.Equal(t, entity.Stats{}, s.Stats())

	a := mustInsert(t, s, entity.RootID, "Ann", "a")
	b := mustInsert(t, s, a.ID, "Bo", "b")
	mustInsert(t, s, b.ID, "Cy", "c")
	mustInsert(t, s, entity.RootID, "Di", "d")

	assert.Equal(t, entity.Stats{RootComments: 2, TotalComments: 4, MaxDepth: 3}, s.Stats())
}

func TestGetUnknown(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Get(1)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestUnknownDefaultSortFallsBack(t *testing.T) {
	repo := database.NewTreeRepository(database.NewMemoryStorage(), testStorageConfig())
	s := NewCommentService(repo, config.AppConfig{DefaultSort: "by_author"})
	assert.Equal(t, entity.NewestFirst, s.DefaultSort())
}

// TestReplyChainAtMaxDepthRoundTrips проверяет предел вложенности и перезагрузку
func TestReplyChainAtMaxDepthRoundTrips(t *testing.T) {
	ctx := context.Background()
	s, repo := newTestService(t)

	parent := mustInsert(t, s, entity.RootID, "Ann", "level 1")
	for depth := 2; depth <= entity.MaxDepth; depth++ {
		parent = mustInsert(t, s, parent.ID, "Bo", "deeper")
	}
	require.Equal(t, entity.MaxDepth, s.Stats().MaxDepth)

	c, err := s.Insert(ctx, parent.ID, "Cy", "one level too deep")
	assert.Nil(t, c)
	assert.ErrorIs(t, err, entity.ErrValidation)
	assert.Equal(t, entity.MaxDepth, s.Stats().TotalComments)

	// самый глубокий комментарий остался без ответов
	leaf, err := s.Get(parent.ID)
	require.NoError(t, err)
	assert.Empty(t, leaf.Replies)

	restored := NewCommentService(repo, config.AppConfig{})
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, entity.MaxDepth, restored.Stats().TotalComments)
	assert.Equal(t, entity.MaxDepth, restored.Stats().MaxDepth)
	assert.Empty(t, restored.LastWarning())
}
