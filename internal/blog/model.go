// Package blog holds the Blog and Post entities and the repository that
// persists them through a storage.Backend.
package blog

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrBlogNotFound   = errors.New("blog not found")
	ErrPostNotFound   = errors.New("post not found")
	ErrBlogExists     = errors.New("user already owns a blog")
	ErrSubdomainTaken = errors.New("subdomain already taken")
	ErrInvalidName    = errors.New("blog name yields an empty subdomain")
)

const (
	// TitleMaxRunes is the title length before ellipsizing.
	TitleMaxRunes = 60
	// ExcerptMaxRunes bounds the excerpt shown in post listings.
	ExcerptMaxRunes = 150
	// DefaultTitle is used when content has no first line.
	DefaultTitle = "Untitled"
	// SkipDescription is the reply that leaves the description empty.
	SkipDescription = "-"
)

// Blog is one user's publishing space.
type Blog struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"userId"`
	Name        string    `json:"name"`
	Subdomain   string    `json:"subdomain"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Post is one published item of a blog.
type Post struct {
	ID          string    `json:"id"`
	BlogID      string    `json:"blogId"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Excerpt     string    `json:"excerpt,omitempty"`
	ImageFileID string    `json:"imageFileId,omitempty"`
	IsPublished *bool     `json:"isPublished,omitempty"`
	ViewCount   int64     `json:"viewCount"`
	Likes       int64     `json:"likes"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Published reports whether the post is public. Records written before the
// flag existed have no value and count as published.
func (p Post) Published() bool {
	return p.IsPublished == nil || *p.IsPublished
}

// DeriveSubdomain lowercases name and keeps only ASCII letters and digits.
func DeriveSubdomain(name string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	b.Grow(len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// DeriveTitle returns the trimmed first line of content, ellipsized past
// TitleMaxRunes, or DefaultTitle when that line is empty.
func DeriveTitle(content string) string {
	first, _, _ := strings.Cut(content, "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return DefaultTitle
	}
	return truncate(first, TitleMaxRunes)
}

// DeriveExcerpt shortens content for listings.
func DeriveExcerpt(content string) string {
	return truncate(content, ExcerptMaxRunes)
}

// NormalizeDescription maps the skip sentinel to an empty description.
func NormalizeDescription(text string) string {
	text = strings.TrimSpace(text)
	if text == SkipDescription {
		return ""
	}
	return text
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
