package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/maximcoj/teleblog/core/logger"
	"github.com/maximcoj/teleblog/internal/storage"
)

// Repository is the typed access layer over a storage.Backend.
type Repository struct {
	store   storage.Backend
	now     func() time.Time
	newID   func() (string, error)
	blogURL func(subdomain string) string
}

// Option customizes a Repository.
type Option func(*Repository)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDGenerator replaces the UUIDv7 generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(r *Repository) { r.newID = gen }
}

// WithBlogURL sets how a blog's public URL is built from its subdomain.
func WithBlogURL(build func(subdomain string) string) Option {
	return func(r *Repository) { r.blogURL = build }
}

func NewRepository(store storage.Backend, opts ...Option) *Repository {
	r := &Repository{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
		blogURL: func(subdomain string) string { return "/" + subdomain },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend exposes the underlying store name for health output.
func (r *Repository) Backend() string { return r.store.Name() }

func decodeOne[T any](doc storage.Document) (*T, error) {
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &v, nil
}

func decodeAll[T any](docs []storage.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d, &v); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Repository) findBlog(ctx context.Context, f storage.Filter) (*Blog, error) {
	docs, err := r.store.List(ctx, storage.Blogs, f)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrBlogNotFound
	}
	return decodeOne[Blog](docs[0])
}

// FindBlogByUser returns the blog owned by userID.
func (r *Repository) FindBlogByUser(ctx context.Context, userID int64) (*Blog, error) {
	return r.findBlog(ctx, storage.Filter{"userId": userID})
}

// FindBlogBySubdomain returns the blog published under subdomain.
func (r *Repository) FindBlogBySubdomain(ctx context.Context, subdomain string) (*Blog, error) {
	return r.findBlog(ctx, storage.Filter{"subdomain": subdomain})
}

func (r *Repository) FindBlogByID(ctx context.Context, id string) (*Blog, error) {
	doc, err := r.store.Read(ctx, storage.Blogs, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBlogNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeOne[Blog](doc)
}

// SubdomainAvailable reports whether no blog uses subdomain yet.
func (r *Repository) SubdomainAvailable(ctx context.Context, subdomain string) (bool, error) {
	n, err := r.store.Count(ctx, storage.Blogs, storage.Filter{"subdomain": subdomain})
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// NewBlog is the input of CreateBlog.
type NewBlog struct {
	UserID int64
	Name   string
	// Subdomain is the slug checked earlier in the conversation. Empty means
	// derive it from Name.
	Subdomain   string
	Description string
}

// CreateBlog stores a new blog under in.Subdomain, or under the subdomain
// derived from the name when none is given.
func (r *Repository) CreateBlog(ctx context.Context, in NewBlog) (*Blog, error) {
	sub := in.Subdomain
	if sub == "" {
		sub = DeriveSubdomain(in.Name)
	}
	if sub == "" || DeriveSubdomain(sub) != sub {
		return nil, ErrInvalidName
	}
	if _, err := r.FindBlogByUser(ctx, in.UserID); err == nil {
		return nil, ErrBlogExists
	} else if !errors.Is(err, ErrBlogNotFound) {
		return nil, err
	}
	free, err := r.SubdomainAvailable(ctx, sub)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, ErrSubdomainTaken
	}

	id, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("generate blog id: %w", err)
	}
	now := r.now()
	b := &Blog{
		ID:          id,
		UserID:      in.UserID,
		Name:        in.Name,
		Subdomain:   sub,
		Description: in.Description,
		URL:         r.blogURL(sub),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	doc, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	if err := r.store.Create(ctx, storage.Blogs, id, doc); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			// Lost a race with a concurrent create; report which key collided.
			if _, ferr := r.FindBlogByUser(ctx, in.UserID); ferr == nil {
				return nil, ErrBlogExists
			}
			return nil, ErrSubdomainTaken
		}
		return nil, fmt.Errorf("create blog: %w", err)
	}

	logger.LogEvent(ctx, logger.SVCBlogs, slog.LevelInfo, "blog.created",
		slog.String("blog_id", b.ID),
		slog.String("subdomain", b.Subdomain),
		slog.Int64("user_id", b.UserID),
	)
	return b, nil
}

// DeleteBlog removes every post of the blog and then the blog itself.
// It returns the number of posts removed.
func (r *Repository) DeleteBlog(ctx context.Context, blogID string) (int64, error) {
	removed, err := r.store.DeleteMany(ctx, storage.Posts, storage.Filter{"blogId": blogID})
	if err != nil {
		return 0, fmt.Errorf("delete blog posts: %w", err)
	}
	if err := r.store.Delete(ctx, storage.Blogs, blogID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return removed, ErrBlogNotFound
		}
		return removed, fmt.Errorf("delete blog: %w", err)
	}
	logger.LogEvent(ctx, logger.SVCBlogs, slog.LevelInfo, "blog.deleted",
		slog.String("blog_id", blogID),
		slog.Int64("posts", removed),
	)
	return removed, nil
}

// ListOptions narrows ListPostsForBlog.
type ListOptions struct {
	PublishedOnly bool
}

// ListPostsForBlog returns the blog's posts, newest first.
func (r *Repository) ListPostsForBlog(ctx context.Context, blogID string, opts ListOptions) ([]Post, error) {
	docs, err := r.store.List(ctx, storage.Posts, storage.Filter{"blogId": blogID})
	if err != nil {
		return nil, err
	}
	posts, err := decodeAll[Post](docs)
	if err != nil {
		return nil, err
	}
	if opts.PublishedOnly {
		kept := posts[:0]
		for _, p := range posts {
			if p.Published() {
				kept = append(kept, p)
			}
		}
		posts = kept
	}
	SortNewestFirst(posts)
	return posts, nil
}

// SortNewestFirst orders posts by creation time descending, then id descending.
func SortNewestFirst(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

func (r *Repository) FindPost(ctx context.Context, id string) (*Post, error) {
	doc, err := r.store.Read(ctx, storage.Posts, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeOne[Post](doc)
}

// FindPostInBlog returns the post only if it belongs to blogID.
func (r *Repository) FindPostInBlog(ctx context.Context, blogID, postID string) (*Post, error) {
	p, err := r.FindPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p.BlogID != blogID {
		return nil, ErrPostNotFound
	}
	return p, nil
}

// NewPost is the input of CreatePost.
type NewPost struct {
	BlogID      string
	Content     string
	ImageFileID string
}

// CreatePost stores a published post bound to an existing blog.
func (r *Repository) CreatePost(ctx context.Context, in NewPost) (*Post, error) {
	if _, err := r.FindBlogByID(ctx, in.BlogID); err != nil {
		return nil, err
	}
	id, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("generate post id: %w", err)
	}
	now := r.now()
	published := true
	p := &Post{
		ID:          id,
		BlogID:      in.BlogID,
		Title:       DeriveTitle(in.Content),
		Content:     in.Content,
		Excerpt:     DeriveExcerpt(in.Content),
		ImageFileID: in.ImageFileID,
		IsPublished: &published,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if err := r.store.Create(ctx, storage.Posts, id, doc); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	logger.LogEvent(ctx, logger.SVCPosts, slog.LevelInfo, "post.created",
		slog.String("post_id", p.ID),
		slog.String("blog_id", p.BlogID),
		slog.Bool("image", p.ImageFileID != ""),
	)
	return p, nil
}

// UpdatePostContent replaces content, title, excerpt and image of a post.
// The id, blog and creation time are kept.
func (r *Repository) UpdatePostContent(ctx context.Context, postID, content, imageFileID string) (*Post, error) {
	doc, err := r.store.Update(ctx, storage.Posts, postID, storage.Patch{Set: map[string]any{
		"content":     content,
		"title":       DeriveTitle(content),
		"excerpt":     DeriveExcerpt(content),
		"imageFileId": imageFileID,
		"updatedAt":   r.now(),
	}})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	p, err := decodeOne[Post](doc)
	if err != nil {
		return nil, err
	}
	logger.LogEvent(ctx, logger.SVCPosts, slog.LevelInfo, "post.updated",
		slog.String("post_id", p.ID),
		slog.String("blog_id", p.BlogID),
	)
	return p, nil
}

func (r *Repository) DeletePost(ctx context.Context, postID string) error {
	err := r.store.Delete(ctx, storage.Posts, postID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	logger.LogEvent(ctx, logger.SVCPosts, slog.LevelInfo, "post.deleted",
		slog.String("post_id", postID),
	)
	return nil
}

// IncrementViews bumps the view counter of every post in the blog.
func (r *Repository) IncrementViews(ctx context.Context, blogID string) (int64, error) {
	n, err := r.store.UpdateMany(ctx, storage.Posts, storage.Filter{"blogId": blogID},
		storage.Patch{Inc: map[string]int64{"viewCount": 1}})
	if err != nil {
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return n, nil
}

// LikePost increments the like counter of a post in blogID and returns the new count.
func (r *Repository) LikePost(ctx context.Context, blogID, postID string) (int64, error) {
	if _, err := r.FindPostInBlog(ctx, blogID, postID); err != nil {
		return 0, err
	}
	doc, err := r.store.Update(ctx, storage.Posts, postID, storage.Patch{Inc: map[string]int64{"likes": 1}})
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrPostNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("like post: %w", err)
	}
	p, err := decodeOne[Post](doc)
	if err != nil {
		return 0, err
	}
	return p.Likes, nil
}

// Stats holds the collection totals shown to admins and on /api/stats.
type Stats struct {
	Blogs int64 `json:"blogs"`
	Posts int64 `json:"posts"`
}

func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if s.Blogs, err = r.store.Count(ctx, storage.Blogs, nil); err != nil {
		return Stats{}, err
	}
	if s.Posts, err = r.store.Count(ctx, storage.Posts, nil); err != nil {
		return Stats{}, err
	}
	return s, nil
}
