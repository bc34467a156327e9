// Package server exposes the client store as a local JSON API for a
// browser front end. Every blog and auth response carries the container
// triple {data, isLoading, error}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/inkwell/internal/app"
	"github.com/roach88/inkwell/internal/blog"
	"github.com/roach88/inkwell/internal/engine"
	"github.com/roach88/inkwell/internal/publish"
)

// MaxUploadBytes bounds the multipart body of a create request.
const MaxUploadBytes = 32 << 20

// Envelope is the body of every container response.
type Envelope struct {
	Data      any    `json:"data"`
	IsLoading bool   `json:"isLoading"`
	Error     string `json:"error,omitempty"`
}

// Server handles the HTTP API.
type Server struct {
	client   *app.Client
	blobRoot string
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithNow sets the clock used to stamp comments.
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a server. Blobs under blobRoot are served at /blobs/.
func New(client *app.Client, blobRoot string, opts ...Option) *Server {
	s := &Server{
		client:   client,
		blobRoot: blobRoot,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", s.getState)

	mux.HandleFunc("GET /api/blogs", s.listBlogs)
	mux.HandleFunc("GET /api/blogs/popular", s.popularBlogs)
	mux.HandleFunc("GET /api/blogs/{id}", s.getBlog)
	mux.HandleFunc("POST /api/blogs", s.createBlog)
	mux.HandleFunc("POST /api/blogs/{id}/like", s.likeBlog)
	mux.HandleFunc("POST /api/blogs/{id}/comments", s.addComment)
	mux.HandleFunc("DELETE /api/blogs/{id}/comments/{index}", s.removeComment)
	mux.HandleFunc("POST /api/blogs/{id}/views", s.updateViews)

	mux.HandleFunc("POST /api/auth/signin", s.signIn)
	mux.HandleFunc("POST /api/auth/signout", s.signOut)

	mux.Handle("GET /blobs/", http.StripPrefix("/blobs/", http.FileServer(http.Dir(s.blobRoot))))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return withAccessLog(s.logger, withCORS(mux))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("serving", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.client.State())
}

func (s *Server) listBlogs(w http.ResponseWriter, r *http.Request) {
	h := s.client.FetchBlogs(r.Context(), r.URL.Query().Get("q"))
	s.respondBlog(w, r, h, func(st blog.State) any { return st.Blogs })
}

func (s *Server) popularBlogs(w http.ResponseWriter, r *http.Request) {
	h := s.client.FetchPopularBlogs(r.Context())
	s.respondBlog(w, r, h, func(st blog.State) any { return st.Popular })
}

func (s *Server) getBlog(w http.ResponseWriter, r *http.Request) {
	h := s.client.FetchBlogByID(r.Context(), r.PathValue("id"))
	s.respondBlog(w, r, h, current)
}

func (s *Server) likeBlog(w http.ResponseWriter, r *http.Request) {
	h := s.client.LikeBlog(r.Context(), r.PathValue("id"))
	s.respondBlog(w, r, h, current)
}

func (s *Server) updateViews(w http.ResponseWriter, r *http.Request) {
	h := s.client.UpdateBlogViews(r.Context(), r.PathValue("id"))
	s.respondBlog(w, r, h, current)
}

type commentRequest struct {
	Body string `json:"body"`
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user := s.client.State().Auth.User
	if user == nil {
		writeError(w, http.StatusUnauthorized, "sign in to comment")
		return
	}
	h := s.client.AddCommentToBlog(r.Context(), r.PathValue("id"), blog.CommentInput{
		Author:    *user,
		Body:      req.Body,
		Published: s.now(),
	})
	s.respondBlog(w, r, h, current)
}

func (s *Server) removeComment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "comment index must be an integer")
		return
	}
	user := s.client.State().Auth.User
	if user == nil {
		writeError(w, http.StatusUnauthorized, "sign in to remove comments")
		return
	}

	// Only the comment's author may remove it.
	if _, ok := s.await(w, r, s.client.FetchBlogByID(r.Context(), id)); !ok {
		return
	}
	if cur := s.client.State().Blog.Current; cur != nil && cur.ID == id &&
		index >= 0 && index < len(cur.Comments) && cur.Comments[index].Author.ID != user.ID {
		writeError(w, http.StatusForbidden, "only the author can remove a comment")
		return
	}

	h := s.client.RemoveCommentFromBlog(r.Context(), id, index)
	s.respondBlog(w, r, h, current)
}

func (s *Server) createBlog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	category := r.FormValue("category")
	if category != "" && !publish.ValidCategory(category) {
		writeError(w, http.StatusBadRequest, "unknown category "+strconv.Quote(category))
		return
	}

	draft := publish.Draft{
		Title:     r.FormValue("title"),
		Body:      r.FormValue("body"),
		Tags:      r.FormValue("tags"),
		Category:  category,
		Author:    s.client.State().Auth.User,
		Published: s.now(),
	}
	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		draft.Image = &publish.Image{
			Name:    path.Base(header.Filename),
			Size:    header.Size,
			Content: file,
		}
	}

	out, ok := s.await(w, r, s.client.CreateBlog(r.Context(), draft))
	if !ok {
		return
	}
	st := s.client.State().CreateBlog
	env := Envelope{IsLoading: st.IsLoading, Error: st.Error}
	if succ, isSuccess := out.(engine.Success); isSuccess {
		env.Data = succ.Data
		writeJSON(w, http.StatusCreated, env)
		return
	}
	writeJSON(w, statusFor(out), env)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	s.respondAuth(w, r, s.client.SignIn(r.Context()))
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	s.respondAuth(w, r, s.client.SignOut(r.Context()))
}

func (s *Server) respondAuth(w http.ResponseWriter, r *http.Request, h *engine.Handle) {
	out, ok := s.await(w, r, h)
	if !ok {
		return
	}
	st := s.client.State().Auth
	writeJSON(w, statusFor(out), Envelope{Data: st.User, IsLoading: st.IsLoading, Error: st.Error})
}

func (s *Server) respondBlog(w http.ResponseWriter, r *http.Request, h *engine.Handle, view func(blog.State) any) {
	out, ok := s.await(w, r, h)
	if !ok {
		return
	}
	st := s.client.State().Blog
	writeJSON(w, statusFor(out), Envelope{Data: view(st), IsLoading: st.IsLoading, Error: st.Error})
}

// await waits for the action to settle. When the request goes away first
// the action keeps running and nothing is written.
func (s *Server) await(w http.ResponseWriter, r *http.Request, h *engine.Handle) (engine.Outcome, bool) {
	out, err := h.Wait(r.Context())
	if err != nil {
		s.logger.Debug("request ended before action settled",
			"request_id", h.RequestID,
			"error", err,
		)
		return nil, false
	}
	return out, true
}

func current(st blog.State) any {
	return st.Current
}

func statusFor(out engine.Outcome) int {
	switch out.(type) {
	case engine.NotFound:
		return http.StatusNotFound
	case engine.ValidationFailure:
		return http.StatusBadRequest
	case engine.RemoteFailure:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(message)})
}
