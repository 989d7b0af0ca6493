// Package media turns Telegram file references into public URLs and streams
// the underlying files.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	tele "gopkg.in/telebot.v4"

	"github.com/maximcoj/teleblog/core/logger"
)

// ErrNoReference is returned for an empty file reference.
var ErrNoReference = errors.New("media: empty file reference")

// FileSource is the part of *tele.Bot used to look up and download files.
type FileSource interface {
	FileByID(fileID string) (tele.File, error)
	File(file *tele.File) (io.ReadCloser, error)
}

// Resolver caches file metadata so repeated page loads do not hit getFile.
// Telegram download paths stay valid for about an hour, so the TTL should be
// shorter than that.
type Resolver struct {
	src     FileSource
	baseURL string
	files   *cache.Cache
}

// NewResolver builds URLs under baseURL + "/media/".
func NewResolver(src FileSource, baseURL string, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 50 * time.Minute
	}
	return &Resolver{
		src:     src,
		baseURL: strings.TrimRight(baseURL, "/"),
		files:   cache.New(ttl, 2*ttl),
	}
}

func cacheKey(fileID string) string { return "file:" + fileID }

func (r *Resolver) lookup(ctx context.Context, fileID string) (tele.File, error) {
	if fileID == "" {
		return tele.File{}, ErrNoReference
	}
	if v, ok := r.files.Get(cacheKey(fileID)); ok {
		return v.(tele.File), nil
	}
	start := time.Now()
	f, err := r.src.FileByID(fileID)
	if err != nil {
		logger.LogEvent(ctx, logger.Media, slog.LevelWarn, "media.resolve",
			slog.String("status", "fail"),
			slog.String("file_id", fileID),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
			logger.Err(err),
		)
		return tele.File{}, fmt.Errorf("resolve %s: %w", fileID, err)
	}
	r.files.Set(cacheKey(fileID), f, cache.DefaultExpiration)
	logger.LogEvent(ctx, logger.Media, slog.LevelDebug, "media.resolve",
		slog.String("status", "ok"),
		slog.String("file_id", fileID),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return f, nil
}

// URL returns the public proxy URL for fileID once the file is known to exist.
func (r *Resolver) URL(ctx context.Context, fileID string) (string, error) {
	if _, err := r.lookup(ctx, fileID); err != nil {
		return "", err
	}
	return r.baseURL + "/media/" + fileID, nil
}

// Open streams the file behind fileID. The caller closes the reader.
func (r *Resolver) Open(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	f, err := r.lookup(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	rc, err := r.src.File(&f)
	if err != nil {
		r.files.Delete(cacheKey(fileID))
		return nil, "", fmt.Errorf("download %s: %w", fileID, err)
	}
	return rc, contentType(f.FilePath), nil
}

func contentType(filePath string) string {
	if ct := mime.TypeByExtension(path.Ext(filePath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
