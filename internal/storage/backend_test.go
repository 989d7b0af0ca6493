package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID        string `json:"id"`
	UserID    int64  `json:"userId,omitempty"`
	Subdomain string `json:"subdomain,omitempty"`
	BlogID    string `json:"blogId,omitempty"`
	Title     string `json:"title,omitempty"`
	ViewCount int64  `json:"viewCount"`
	CreatedAt string `json:"createdAt"`
}

func doc(t *testing.T, r record) Document {
	t.Helper()
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	return raw
}

func decode(t *testing.T, d Document) record {
	t.Helper()
	var r record
	require.NoError(t, json.Unmarshal(d, &r))
	return r
}

// runBackendSuite exercises the contract every Backend must honor.
func runBackendSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()

	t.Run("create and read", func(t *testing.T) {
		b := newBackend(t)
		in := record{ID: "b1", UserID: 7, Subdomain: "cats", CreatedAt: "2024-01-01T00:00:00Z"}
		require.NoError(t, b.Create(ctx, Blogs, in.ID, doc(t, in)))

		got, err := b.Read(ctx, Blogs, "b1")
		require.NoError(t, err)
		assert.Equal(t, in, decode(t, got))

		_, err = b.Read(ctx, Blogs, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unique keys", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Create(ctx, Blogs, "b1", doc(t, record{ID: "b1", UserID: 1, Subdomain: "one"})))

		err := b.Create(ctx, Blogs, "b2", doc(t, record{ID: "b2", UserID: 2, Subdomain: "one"}))
		assert.ErrorIs(t, err, ErrDuplicate)
		err = b.Create(ctx, Blogs, "b3", doc(t, record{ID: "b3", UserID: 1, Subdomain: "three"}))
		assert.ErrorIs(t, err, ErrDuplicate)
		err = b.Create(ctx, Blogs, "b1", doc(t, record{ID: "b1", UserID: 4, Subdomain: "four"}))
		assert.ErrorIs(t, err, ErrDuplicate)

		n, err := b.Count(ctx, Blogs, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("update set and inc", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Create(ctx, Posts, "p1", doc(t, record{ID: "p1", BlogID: "b1", Title: "old"})))

		got, err := b.Update(ctx, Posts, "p1", Patch{
			Set: map[string]any{"title": "new"},
			Inc: map[string]int64{"viewCount": 3},
		})
		require.NoError(t, err)
		r := decode(t, got)
		assert.Equal(t, "new", r.Title)
		assert.EqualValues(t, 3, r.ViewCount)

		got, err = b.Update(ctx, Posts, "p1", Patch{Inc: map[string]int64{"likes": 1}})
		require.NoError(t, err)
		var withLikes map[string]any
		require.NoError(t, json.Unmarshal(got, &withLikes))
		assert.EqualValues(t, 1, withLikes["likes"])

		_, err = b.Update(ctx, Posts, "missing", Patch{Set: map[string]any{"title": "x"}})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("filters and bulk operations", func(t *testing.T) {
		b := newBackend(t)
		for i := 1; i <= 3; i++ {
			id := fmt.Sprintf("a%d", i)
			require.NoError(t, b.Create(ctx, Posts, id, doc(t, record{ID: id, BlogID: "a"})))
		}
		require.NoError(t, b.Create(ctx, Posts, "z1", doc(t, record{ID: "z1", BlogID: "z"})))

		list, err := b.List(ctx, Posts, Filter{"blogId": "a"})
		require.NoError(t, err)
		assert.Len(t, list, 3)

		n, err := b.UpdateMany(ctx, Posts, Filter{"blogId": "a"}, Patch{Inc: map[string]int64{"viewCount": 1}})
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		got, err := b.Read(ctx, Posts, "z1")
		require.NoError(t, err)
		assert.EqualValues(t, 0, decode(t, got).ViewCount)

		n, err = b.DeleteMany(ctx, Posts, Filter{"blogId": "a"})
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		n, err = b.Count(ctx, Posts, nil)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("numeric filter", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Create(ctx, Blogs, "b1", doc(t, record{ID: "b1", UserID: 42, Subdomain: "x"})))

		list, err := b.List(ctx, Blogs, Filter{"userId": int64(42)})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "b1", decode(t, list[0]).ID)

		list, err = b.List(ctx, Blogs, Filter{"userId": int64(43)})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("delete", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Create(ctx, Posts, "p1", doc(t, record{ID: "p1"})))
		require.NoError(t, b.Delete(ctx, Posts, "p1"))
		assert.ErrorIs(t, b.Delete(ctx, Posts, "p1"), ErrNotFound)
	})

	t.Run("unknown collection", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Read(ctx, Collection("users"), "x")
		assert.ErrorIs(t, err, ErrUnknownCollection)
	})
}
