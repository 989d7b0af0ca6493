// Package web serves the public JSON API the blog pages read from.
package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/maximcoj/teleblog/core/buildinfo"
	"github.com/maximcoj/teleblog/core/logger"
	"github.com/maximcoj/teleblog/internal/blog"
)

// Repository is the read side of blog.Repository plus the counters.
type Repository interface {
	FindBlogBySubdomain(ctx context.Context, subdomain string) (*blog.Blog, error)
	ListPostsForBlog(ctx context.Context, blogID string, opts blog.ListOptions) ([]blog.Post, error)
	FindPostInBlog(ctx context.Context, blogID, postID string) (*blog.Post, error)
	IncrementViews(ctx context.Context, blogID string) (int64, error)
	LikePost(ctx context.Context, blogID, postID string) (int64, error)
	Stats(ctx context.Context) (blog.Stats, error)
	Backend() string
}

// Media resolves image references. A nil Media disables images.
type Media interface {
	URL(ctx context.Context, fileID string) (string, error)
	Open(ctx context.Context, fileID string) (io.ReadCloser, string, error)
}

type Server struct {
	repo  Repository
	media Media
}

func New(repo Repository, media Media) *Server {
	return &Server{repo: repo, media: media}
}

func (s *Server) Routes() http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(s.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(s.methodNotAllowedResponse)

	router.HandlerFunc(http.MethodGet, "/healthz", s.healthCheckHandler)
	router.HandlerFunc(http.MethodGet, "/api/stats", s.statsHandler)
	router.HandlerFunc(http.MethodGet, "/api/blogs/:subdomain", s.getBlogHandler)
	router.HandlerFunc(http.MethodGet, "/api/blogs/:subdomain/posts/:postId", s.getPostHandler)
	router.HandlerFunc(http.MethodPost, "/api/blogs/:subdomain/view", s.viewBlogHandler)
	router.HandlerFunc(http.MethodPost, "/api/blogs/:subdomain/posts/:postId/like", s.likePostHandler)
	router.HandlerFunc(http.MethodGet, "/media/:fileId", s.mediaHandler)

	return s.recoverPanic(s.logRequest(router))
}

// ListenAndServe runs the API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Web.Handler(), slog.LevelError),
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	logger.Web.Info("web server starting",
		slog.String("event", "web.start"),
		slog.String("listen", addr),
		slog.String("version", buildinfo.Version),
	)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdownErr; err != nil {
		return err
	}
	logger.Web.Info("web server stopped",
		slog.String("event", "web.stop"),
		slog.String("listen", addr),
	)
	return nil
}
