// Package httpapi serves the Node Store API over HTTP and provides the matching
// client used by remote sessions.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/arbor/pkg/core"
)

// DefaultOwnerHeader carries the owner when HeaderAuth is used.
const DefaultOwnerHeader = "X-Arbor-Owner"

// Authenticator resolves the owner of a request. Session issuance lives outside
// this package; an Authenticator only reads what the session layer put on the request.
type Authenticator interface {
	Authenticate(r *http.Request) (owner string, err error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (string, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request) (string, error) { return f(r) }

// HeaderAuth trusts an owner header set by a fronting proxy. It is meant for
// local use and for deployments where the proxy authenticates.
type HeaderAuth string

func (h HeaderAuth) Authenticate(r *http.Request) (string, error) {
	name := string(h)
	if name == "" {
		name = DefaultOwnerHeader
	}
	owner := strings.TrimSpace(r.Header.Get(name))
	if owner == "" {
		return "", core.Errorf(core.KindUnauthorized, "authenticate", "", "missing %s header", name)
	}
	return owner, nil
}

// Server exposes a core.Backend over HTTP.
type Server struct {
	api    core.Backend
	auth   Authenticator
	logger *slog.Logger
	mux    *http.ServeMux
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAuthenticator replaces the default header authenticator.
func WithAuthenticator(a Authenticator) ServerOption {
	return func(s *Server) { s.auth = a }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer builds the route table.
func NewServer(api core.Backend, opts ...ServerOption) *Server {
	s := &Server{
		api:    api,
		auth:   HeaderAuth(DefaultOwnerHeader),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /healthz", s.health)

	s.mux.HandleFunc("GET /note", s.authed(s.list))
	s.mux.HandleFunc("POST /note", s.authed(s.create))
	s.mux.HandleFunc("GET /note/search", s.authed(s.search))
	s.mux.HandleFunc("GET /note/stats", s.authed(s.stats))
	s.mux.HandleFunc("GET /note/{id}", s.authed(s.get))
	s.mux.HandleFunc("PATCH /note/{id}", s.authed(s.update))
	s.mux.HandleFunc("PATCH /note/{id}/move", s.authed(s.move))
	s.mux.HandleFunc("DELETE /note/{id}", s.authed(s.delete))
	s.mux.HandleFunc("PUT /note/{id}/restore", s.authed(s.restore))

	// Query-string forms kept for older clients.
	s.mux.HandleFunc("PATCH /note", s.authed(s.update))
	s.mux.HandleFunc("DELETE /note", s.authed(s.delete))
	s.mux.HandleFunc("PUT /note", s.authed(s.restore))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", p)
			if !rec.wrote {
				s.fail(rec, core.Wrap(core.KindTransient, "http", "", fmt.Errorf("internal error")))
			}
		}
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	}()
	s.mux.ServeHTTP(rec, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.wrote {
		return
	}
	r.status = code
	r.wrote = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}

func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := s.auth.Authenticate(r)
		if err != nil {
			s.fail(w, core.Wrap(core.KindUnauthorized, "authenticate", "", err))
			return
		}
		h(w, r.WithContext(core.WithOwner(r.Context(), owner)))
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		nodes []core.Node
		err   error
	)
	switch {
	case q.Get("root") == "true":
		nodes, err = s.api.ListRoot(r.Context())
	case q.Get("trash") == "true":
		nodes, err = s.api.ListTrash(r.Context())
	case q.Get("parentId") != "":
		nodes, err = s.api.ListChildren(r.Context(), q.Get("parentId"))
	default:
		nodes, err = s.api.ListActive(r.Context())
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	if nodes == nil {
		nodes = []core.Node{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	n, err := s.api.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var in core.CreateInput
	if err := decode(r, &in); err != nil {
		s.fail(w, err)
		return
	}
	n, err := s.api.Create(r.Context(), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id := targetID(r)
	var fields map[string]json.RawMessage
	if err := decode(r, &fields); err != nil {
		s.fail(w, err)
		return
	}
	p, err := patchFrom(fields)
	if err != nil {
		s.fail(w, core.Wrap(core.KindInvalidTransition, "update", id, err))
		return
	}
	n, err := s.api.Update(r.Context(), id, p)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ParentID *string `json:"parentId"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if body.ParentID != nil && *body.ParentID == "" {
		body.ParentID = nil
	}
	n, err := s.api.Move(r.Context(), r.PathValue("id"), body.ParentID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	mode := core.DeleteAuto
	switch r.URL.Query().Get("permanent") {
	case "true":
		mode = core.DeletePermanent
	case "false":
		mode = core.DeleteSoft
	}
	res, err := s.api.Delete(r.Context(), targetID(r), mode)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) restore(w http.ResponseWriter, r *http.Request) {
	res, err := s.api.Restore(r.Context(), targetID(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	res, err := s.api.Search(r.Context(), core.SearchQuery{Q: q.Get("q"), Page: page, Limit: limit})
	if err != nil {
		s.fail(w, err)
		return
	}
	if res.Data == nil {
		res.Data = []core.SearchHit{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.api.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	e := core.AsError("http", "", err)
	status := StatusOf(e.Kind)
	if status >= 500 {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, bodyOf(e))
}

// targetID reads the node ID from the path, or from ?id= on the legacy routes.
func targetID(r *http.Request) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	return r.URL.Query().Get("id")
}

// patchFrom keeps only the allow-listed fields. A present "parentId": null
// moves the node to the root, which an absent key does not.
func patchFrom(fields map[string]json.RawMessage) (core.Patch, error) {
	var p core.Patch
	if raw, ok := fields["name"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return p, fmt.Errorf("name: %w", err)
		}
		p.Name = &name
	}
	if raw, ok := fields["content"]; ok {
		var content string
		if err := json.Unmarshal(raw, &content); err != nil {
			return p, fmt.Errorf("content: %w", err)
		}
		p.Content = &content
	}
	if raw, ok := fields["parentId"]; ok {
		var parent *string
		if err := json.Unmarshal(raw, &parent); err != nil {
			return p, fmt.Errorf("parentId: %w", err)
		}
		if parent != nil && *parent == "" {
			parent = nil
		}
		p.Parent = &core.ParentRef{ID: parent}
	}
	return p, nil
}

const maxBody = 4 << 20

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return core.Wrap(core.KindInvalidTransition, "decode", "", fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
