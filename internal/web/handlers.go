package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/maximcoj/teleblog/core/buildinfo"
	"github.com/maximcoj/teleblog/internal/blog"
)

// postView is a post as served to readers.
type postView struct {
	blog.Post
	ImageURL string `json:"imageUrl,omitempty"`
}

func (s *Server) present(r *http.Request, p blog.Post) postView {
	v := postView{Post: p}
	if p.ImageFileID != "" && s.media != nil {
		if u, err := s.media.URL(r.Context(), p.ImageFileID); err == nil {
			v.ImageURL = u
		}
	}
	return v
}

// loadBlog resolves the :subdomain parameter, writing a 404 when absent.
func (s *Server) loadBlog(w http.ResponseWriter, r *http.Request) (*blog.Blog, bool) {
	sub := httprouter.ParamsFromContext(r.Context()).ByName("subdomain")
	b, err := s.repo.FindBlogBySubdomain(r.Context(), sub)
	if err != nil {
		if errors.Is(err, blog.ErrBlogNotFound) {
			s.blogNotFoundResponse(w, r)
		} else {
			s.serverErrorResponse(w, r, err)
		}
		return nil, false
	}
	return b, true
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope{
		"status": "available",
		"system_info": map[string]string{
			"storage": s.repo.Backend(),
			"version": buildinfo.Version,
		},
	}
	if err := s.writeJSON(w, http.StatusOK, env, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.repo.Stats(r.Context())
	if err != nil {
		s.serverErrorResponse(w, r, err)
		return
	}
	if err := s.writeJSON(w, http.StatusOK, st, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) getBlogHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBlog(w, r)
	if !ok {
		return
	}
	posts, err := s.repo.ListPostsForBlog(r.Context(), b.ID, blog.ListOptions{PublishedOnly: true})
	if err != nil {
		s.serverErrorResponse(w, r, err)
		return
	}
	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		views = append(views, s.present(r, p))
	}
	if err := s.writeJSON(w, http.StatusOK, envelope{"blog": b, "posts": views}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) getPostHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBlog(w, r)
	if !ok {
		return
	}
	postID := httprouter.ParamsFromContext(r.Context()).ByName("postId")
	p, err := s.repo.FindPostInBlog(r.Context(), b.ID, postID)
	if err == nil && !p.Published() {
		err = blog.ErrPostNotFound
	}
	if err != nil {
		if errors.Is(err, blog.ErrPostNotFound) {
			s.postNotFoundResponse(w, r)
		} else {
			s.serverErrorResponse(w, r, err)
		}
		return
	}
	if err := s.writeJSON(w, http.StatusOK, envelope{"post": s.present(r, *p)}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) viewBlogHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBlog(w, r)
	if !ok {
		return
	}
	if _, err := s.repo.IncrementViews(r.Context(), b.ID); err != nil {
		s.serverErrorResponse(w, r, err)
		return
	}
	if err := s.writeJSON(w, http.StatusOK, envelope{"success": true}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) likePostHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBlog(w, r)
	if !ok {
		return
	}
	postID := httprouter.ParamsFromContext(r.Context()).ByName("postId")
	likes, err := s.repo.LikePost(r.Context(), b.ID, postID)
	if err != nil {
		if errors.Is(err, blog.ErrPostNotFound) {
			s.postNotFoundResponse(w, r)
		} else {
			s.serverErrorResponse(w, r, err)
		}
		return
	}
	if err := s.writeJSON(w, http.StatusOK, envelope{"success": true, "likes": likes}, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) mediaHandler(w http.ResponseWriter, r *http.Request) {
	if s.media == nil {
		s.notFoundResponse(w, r)
		return
	}
	fileID := httprouter.ParamsFromContext(r.Context()).ByName("fileId")
	rc, contentType, err := s.media.Open(r.Context(), fileID)
	if err != nil {
		s.logError(r, err)
		s.notFoundResponse(w, r)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
