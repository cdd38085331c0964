// Package fakesds serves the Sequential Data Store REST surface over the
// SQLite store double.
//
// Clients obtain an HS256 access token from the identity endpoint with the
// client-credentials grant and present it as a bearer token. Store errors
// are returned with their HTTP status and a {"Message": ...} body.
package fakesds

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/roach88/sdsverify/internal/sds"
	"github.com/roach88/sdsverify/internal/store"
)

const (
	defaultTokenTTL = time.Hour
	maxRequestBody  = 1 << 20
	windowTimestamp = time.RFC3339Nano
)

// Options configures a Server.
type Options struct {
	// ClientID and ClientSecret are the only credentials accepted at the
	// token endpoint.
	ClientID     string
	ClientSecret string

	// SigningKey signs access tokens.
	SigningKey []byte

	// TenantID, when set, is the only tenant served; other tenants get 404.
	TenantID string

	// TokenTTL defaults to one hour.
	TokenTTL time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Server is an http.Handler for the fake store.
type Server struct {
	store    *store.Store
	clientID string
	secretID string
	secret   []byte
	tenantID string
	tokenTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
	router   *mux.Router
}

// New builds a server over st.
func New(st *store.Store, opts Options) (*Server, error) {
	if st == nil {
		return nil, errors.New("fakesds: store is required")
	}
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, errors.New("fakesds: client credentials are required")
	}
	if len(opts.SigningKey) == 0 {
		return nil, errors.New("fakesds: signing key is required")
	}

	s := &Server{
		store:    st,
		clientID: opts.ClientID,
		secretID: opts.ClientSecret,
		secret:   append([]byte(nil), opts.SigningKey...),
		tenantID: opts.TenantID,
		tokenTTL: opts.TokenTTL,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = defaultTokenTTL
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/identity/connect/token", s.handleToken).Methods(http.MethodPost)

	ns := r.PathPrefix("/api/{version}/Tenants/{tenant}/Namespaces/{namespace}").Subrouter()
	ns.Use(s.requireBearer)
	ns.HandleFunc("/Types/{id}", s.handleCreateType).Methods(http.MethodPost)
	ns.HandleFunc("/Types/{id}", s.handleGetType).Methods(http.MethodGet)
	ns.HandleFunc("/Types/{id}", s.handleDeleteType).Methods(http.MethodDelete)
	ns.HandleFunc("/Streams/{id}", s.handlePutStream).Methods(http.MethodPut)
	ns.HandleFunc("/Streams/{id}", s.handleGetStream).Methods(http.MethodGet)
	ns.HandleFunc("/Streams/{id}", s.handleDeleteStream).Methods(http.MethodDelete)
	ns.HandleFunc("/Streams/{id}/Data", s.handleInsertValues).Methods(http.MethodPost)
	ns.HandleFunc("/Streams/{id}/Data", s.handleGetWindow).Methods(http.MethodGet)
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		if _, err := s.parseToken(strings.TrimSpace(token)); err != nil {
			s.logger.Warn("token rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if s.tenantID != "" && mux.Vars(r)["tenant"] != s.tenantID {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type tokenError struct {
	Error string `json:"error"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, tokenError{Error: "invalid_request"})
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, tokenError{Error: "unsupported_grant_type"})
		return
	}

	id, secret, ok := r.BasicAuth()
	if !ok {
		id, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if id != s.clientID || secret != s.secretID {
		writeJSON(w, http.StatusUnauthorized, tokenError{Error: "invalid_client"})
		return
	}

	token, err := s.issueToken(id)
	if err != nil {
		s.logger.Error("token issue failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, tokenError{Error: "server_error"})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokenTTL.Seconds()),
	})
}

// handleCreateType returns 200 with the stored type when it matches the
// request and 409 when a different definition already holds the id.
func (s *Server) handleCreateType(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var t sds.Type
	if !decodeBody(w, r, &t) {
		return
	}
	if t.ID == "" {
		t.ID = vars["id"]
	}
	if t.ID != vars["id"] {
		writeError(w, http.StatusBadRequest, "type id does not match path")
		return
	}

	stored, err := s.store.GetOrCreateType(r.Context(), vars["namespace"], t)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !sameDefinition(stored, t) {
		writeError(w, http.StatusConflict, "a different type with id "+t.ID+" already exists")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleGetType(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	t, err := s.store.GetType(r.Context(), vars["namespace"], vars["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteType(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.store.DeleteType(r.Context(), vars["namespace"], vars["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePutStream(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var st sds.Stream
	if !decodeBody(w, r, &st) {
		return
	}
	if st.ID == "" {
		st.ID = vars["id"]
	}
	if st.ID != vars["id"] {
		writeError(w, http.StatusBadRequest, "stream id does not match path")
		return
	}
	if err := s.store.CreateOrUpdateStream(r.Context(), vars["namespace"], st); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	st, err := s.store.GetStream(r.Context(), vars["namespace"], vars["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.store.DeleteStream(r.Context(), vars["namespace"], vars["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInsertValues(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var events []sds.Event
	if !decodeBody(w, r, &events) {
		return
	}
	if err := s.store.InsertValues(r.Context(), vars["namespace"], vars["id"], events); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetWindow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q := r.URL.Query()
	start, err := time.Parse(windowTimestamp, q.Get("startIndex"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "startIndex must be an RFC 3339 timestamp")
		return
	}
	end, err := time.Parse(windowTimestamp, q.Get("endIndex"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "endIndex must be an RFC 3339 timestamp")
		return
	}

	values, err := s.store.GetWindowValues(r.Context(), vars["namespace"], vars["id"], start, end)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func sameDefinition(a, b sds.Type) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

type errorBody struct {
	Message string `json:"Message"`
}

func writeStoreError(w http.ResponseWriter, err error) {
	var se *sds.StoreError
	if errors.As(err, &se) && se.StatusCode != 0 {
		writeError(w, se.StatusCode, se.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
