package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stinkmap/stinkmap/internal/services"
)

// RefreshHook is told the outcome of every refresh the HTTP surface runs.
type RefreshHook func(err error)

// Handler serves the admin view's JSON API over one session.
type Handler struct {
	session   *services.Session
	accessKey string
	logger    *slog.Logger
	onRefresh RefreshHook
}

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithRefreshHook registers fn to run after each refresh.
func WithRefreshHook(fn RefreshHook) HandlerOption {
	return func(h *Handler) { h.onRefresh = fn }
}

// NewRouter builds the admin router. An empty accessKey leaves the API open.
func NewRouter(session *services.Session, accessKey string, logger *slog.Logger, opts ...HandlerOption) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{session: session, accessKey: accessKey, logger: logger}
	for _, opt := range opts {
		opt(h)
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.requireKey)
	api.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	api.HandleFunc("/reports", h.listReports).Methods(http.MethodGet)
	api.HandleFunc("/reports", h.submitReport).Methods(http.MethodPost)
	api.HandleFunc("/pins", h.pins).Methods(http.MethodGet)
	api.HandleFunc("/trend", h.trend).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	api.HandleFunc("/export.csv", h.exportCSV).Methods(http.MethodGet)
	return r
}

// requireKey compares ?key= (or X-Access-Key) with the configured key. This
// keeps casual visitors out; it is not authentication.
func (h *Handler) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.accessKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.URL.Query().Get("key")
		if key == "" {
			key = r.Header.Get("X-Access-Key")
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.accessKey)) != 1 {
			http.Error(w, "Access Denied", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
