// Package api exposes the adboard HTTP surface: login, user profiles and
// advertisements. It owns routing, JSON codecs, bearer extraction and the
// mapping of service errors to status codes. Business rules live in the
// identity and advert services.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"adboard/cmd/identity"
	"adboard/cmd/internal/advert"
)

// Config holds HTTP-layer settings for the API.
type Config struct {
	MaxBodyBytes int64
	TrustProxy   bool

	// LoginRatePerSecond and LoginBurst size the per-client login token bucket.
	// A zero value disables the limiter.
	LoginRatePerSecond float64
	LoginBurst         int
}

// DefaultConfig returns conservative API defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:       1 << 20,
		LoginRatePerSecond: 1,
		LoginBurst:         10,
	}
}

// Handler serves the API routes.
type Handler struct {
	cfg      Config
	users    *identity.Service
	resolver *identity.Resolver
	ads      *advert.Service
	log      *slog.Logger
	metrics  *Metrics
	limiter  *loginLimiter
}

// HandlerOption configures optional Handler dependencies.
type HandlerOption func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithMetrics enables auth outcome counters.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler builds the API handler.
func NewHandler(cfg Config, users *identity.Service, resolver *identity.Resolver, ads *advert.Service, opts ...HandlerOption) (*Handler, error) {
	if users == nil || resolver == nil || ads == nil {
		return nil, errors.New("api: users, resolver and ads are required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		cfg:      cfg,
		users:    users,
		resolver: resolver,
		ads:      ads,
		log:      slog.New(slog.DiscardHandler),
		limiter:  newLoginLimiter(cfg.LoginRatePerSecond, cfg.LoginBurst),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Routes returns the API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Post("/login", h.handleLogin)

	r.Route("/user", func(r chi.Router) {
		r.Post("/", h.handleCreateUser)
		r.Get("/{id}", h.handleGetUser)
		r.With(h.requireAuth).Patch("/{id}", h.handleUpdateUser)
		r.With(h.requireAuth).Delete("/{id}", h.handleDeleteUser)
	})
	r.With(h.requireAuth).Get("/me", h.handleMe)

	r.Route("/advertisement", func(r chi.Router) {
		r.Get("/", h.handleSearchAdverts)
		r.With(h.requireAuth).Post("/", h.handleCreateAdvert)
		r.Get("/{id}", h.handleGetAdvert)
		r.With(h.requireAuth).Patch("/{id}", h.handleUpdateAdvert)
		r.With(h.requireAuth).Delete("/{id}", h.handleDeleteAdvert)
	})

	return r
}

// ---- auth ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if ok, retry := h.limiter.allow(clientIP(r, h.cfg.TrustProxy)); !ok {
		h.metrics.throttle()
		h.log.WarnContext(ctx, "auth.login.throttled", "request_id", RequestIDFrom(ctx))
		writeRateLimited(w, retry)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	issued, err := h.users.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.metrics.authEvent("login", "invalid_credentials")
		} else {
			h.metrics.authEvent("login", "error")
		}
		h.writeServiceError(w, r, err)
		return
	}

	h.metrics.authEvent("login", "ok")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: issued.Token,
		TokenType:   "bearer",
		ExpiresAt:   issued.ExpiresAt,
	})
}

// ---- users ----

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	role, err := identity.ParseRole(req.Role)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	p, err := h.users.Register(r.Context(), identity.Registration{
		Username: req.Username,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrForbiddenRole):
			h.metrics.authEvent("register", "forbidden_role")
		case errors.Is(err, identity.ErrDuplicateUsername):
			h.metrics.authEvent("register", "duplicate")
		default:
			h.metrics.authEvent("register", "rejected")
		}
		h.writeServiceError(w, r, err)
		return
	}

	h.metrics.authEvent("register", "ok")
	writeJSON(w, http.StatusCreated, toUserResponse(p))
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(p))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, toUserResponse(p))
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := PrincipalFrom(r.Context())

	var req updateUserRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	u := identity.Update{Username: req.Username, Password: req.Password}
	if req.Role != nil {
		role, err := identity.ParseRole(*req.Role)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		u.Role = &role
	}

	p, err := h.users.Update(r.Context(), actor, id, u)
	if err != nil {
		h.denyMetric(err, "user")
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(p))
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := PrincipalFrom(r.Context())

	if err := h.users.Delete(r.Context(), actor, id); err != nil {
		h.denyMetric(err, "user")
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- advertisements ----

func (h *Handler) handleCreateAdvert(w http.ResponseWriter, r *http.Request) {
	actor, _ := PrincipalFrom(r.Context())

	var req advertRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	l, err := h.ads.Create(r.Context(), actor, advert.Draft{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdvertResponse(l))
}

func (h *Handler) handleGetAdvert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	l, err := h.ads.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdvertResponse(l))
}

func (h *Handler) handleUpdateAdvert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := PrincipalFrom(r.Context())

	var req advertPatchRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	l, err := h.ads.Update(r.Context(), actor, id, advert.Patch{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		h.denyMetric(err, "advertisement")
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdvertResponse(l))
}

func (h *Handler) handleDeleteAdvert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := PrincipalFrom(r.Context())

	if err := h.ads.Delete(r.Context(), actor, id); err != nil {
		h.denyMetric(err, "advertisement")
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSearchAdverts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "limit must be an integer")
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "offset must be a non-negative integer")
		return
	}

	ls, err := h.ads.Search(r.Context(), advert.SearchFilter{
		Title:  q.Get("title"),
		Author: q.Get("author"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdvertResponses(ls))
}

// ---- helpers ----

func (h *Handler) denyMetric(err error, resource string) {
	if errors.Is(err, identity.ErrForbidden) {
		h.metrics.deny(resource)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
