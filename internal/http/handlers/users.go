package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/geocoder89/userhub/internal/cache"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/notifications"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/gin-gonic/gin"
)

const (
	msgRegistered = "Your account regisration is successful!"
	msgEmailTaken = "A user with that email adrress is already registered."
)

// UsersStore is what the users routes need from a repository.
type UsersStore interface {
	Create(ctx context.Context, req user.CreateUserRequest) (user.User, error)
	GetByID(ctx context.Context, id int64) ([]user.User, error)
	List(ctx context.Context) ([]user.User, error)
	Update(ctx context.Context, id int64, req user.UpdateUserRequest) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
}

type UsersHandler struct {
	repo     UsersStore
	cache    cache.Store
	notifier notifications.Notifier
	prom     *observability.Prom
	timeout  time.Duration

	// fillMu orders cache fills against invalidations. gen moves on every
	// invalidation, so a read that loaded before a write never caches its rows.
	fillMu sync.Mutex
	gen    uint64
}

type UsersHandlerOption func(*UsersHandler)

// WithCache enables read-through caching of the GET routes.
func WithCache(c cache.Store) UsersHandlerOption {
	return func(h *UsersHandler) { h.cache = c }
}

func WithNotifier(n notifications.Notifier) UsersHandlerOption {
	return func(h *UsersHandler) { h.notifier = n }
}

func WithProm(p *observability.Prom) UsersHandlerOption {
	return func(h *UsersHandler) { h.prom = p }
}

func WithQueryTimeout(d time.Duration) UsersHandlerOption {
	return func(h *UsersHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func NewUsersHandler(repo UsersStore, opts ...UsersHandlerOption) *UsersHandler {
	h := &UsersHandler{repo: repo, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// POST /users
func (h *UsersHandler) CreateUser(ctx *gin.Context) {
	var req user.CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	created, err := h.repo.Create(cctx, req)
	if errors.Is(err, user.ErrEmailTaken) {
		RespondFailure(ctx, http.StatusConflict, msgEmailTaken)
		return
	}
	if err != nil {
		slog.Default().ErrorContext(ctx.Request.Context(), "create user failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	h.invalidate(ctx, cache.UsersListKey, cache.UserKey(created.ID))
	h.notify(ctx, notifications.UserEvent{
		Type:   notifications.UserCreated,
		UserID: created.ID,
		Email:  created.Email,
	})

	ctx.Header("Location", "/users/"+strconv.FormatInt(created.ID, 10))
	RespondSuccess(ctx, http.StatusCreated, msgRegistered)
}

// GET /users/:id
func (h *UsersHandler) GetUser(ctx *gin.Context) {
	id, ok := parseUserID(ctx)
	if !ok {
		return
	}

	if !storableID(id) {
		RespondSuccess(ctx, http.StatusOK, []user.User{})
		return
	}

	h.respondRead(ctx, cache.UserKey(id), func(c context.Context) ([]user.User, error) {
		return h.repo.GetByID(c, id)
	})
}

// GET /users
func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	h.respondRead(ctx, cache.UsersListKey, h.repo.List)
}

// PUT /users/:id
func (h *UsersHandler) UpdateUser(ctx *gin.Context) {
	id, ok := parseUserID(ctx)
	if !ok {
		return
	}

	var req user.UpdateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if !storableID(id) {
		RespondSuccess(ctx, http.StatusOK, modifiedMessage(id))
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	rows, err := h.repo.Update(cctx, id, req)
	if errors.Is(err, user.ErrEmailTaken) {
		RespondFailure(ctx, http.StatusConflict, msgEmailTaken)
		return
	}
	if err != nil {
		slog.Default().ErrorContext(ctx.Request.Context(), "update user failed", "err", err, "user_id", id)
		RespondInternal(ctx, "Could not update user")
		return
	}

	if rows > 0 {
		h.invalidate(ctx, cache.UsersListKey, cache.UserKey(id))
		h.notify(ctx, notifications.UserEvent{
			Type:   notifications.UserUpdated,
			UserID: id,
			Email:  req.Email,
		})
	}

	RespondSuccess(ctx, http.StatusOK, modifiedMessage(id))
}

// DELETE /users/:id
func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	id, ok := parseUserID(ctx)
	if !ok {
		return
	}

	if !storableID(id) {
		respondDeleted(ctx, id)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	rows, err := h.repo.Delete(cctx, id)
	if err != nil {
		slog.Default().ErrorContext(ctx.Request.Context(), "delete user failed", "err", err, "user_id", id)
		RespondInternal(ctx, "Could not delete user")
		return
	}

	if rows > 0 {
		h.invalidate(ctx, cache.UsersListKey, cache.UserKey(id))
		h.notify(ctx, notifications.UserEvent{
			Type:   notifications.UserDeleted,
			UserID: id,
		})
	}

	respondDeleted(ctx, id)
}

// no status field on this one, existing clients rely on the bare shape
func respondDeleted(ctx *gin.Context, id int64) {
	ctx.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("User with ID Number %d is successfully deleted", id),
	})
}

func modifiedMessage(id int64) string {
	return fmt.Sprintf("User with ID Number %d is modified", id)
}

func parseUserID(ctx *gin.Context) (int64, bool) {
	raw := ctx.Param("id")

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		RespondBadRequest(ctx, "User id must be an integer", gin.H{"id": raw})
		return 0, false
	}

	return id, true
}

// storableID reports whether id fits the SERIAL column. Anything else cannot
// name a row, so it is answered as a missing id without asking the store.
func storableID(id int64) bool {
	return id >= math.MinInt32 && id <= math.MaxInt32
}

// respondRead serves a cached body when there is one, otherwise loads, encodes
// and caches it. Cache failures degrade to a plain store read.
func (h *UsersHandler) respondRead(ctx *gin.Context, key string, load func(context.Context) ([]user.User, error)) {
	reqCtx := ctx.Request.Context()

	if body, ok := h.cacheGet(reqCtx, key); ok {
		RespondJSONBytesWithETag(ctx, http.StatusOK, body)
		return
	}

	gen := h.generation()

	cctx, cancel := context.WithTimeout(reqCtx, h.timeout)
	defer cancel()

	users, err := load(cctx)
	if err != nil {
		slog.Default().ErrorContext(reqCtx, "read users failed", "err", err, "cache_key", key)
		RespondInternal(ctx, "Could not load users")
		return
	}

	if users == nil {
		users = []user.User{}
	}

	body, err := json.Marshal(StatusResponse{Status: statusSuccess, Message: users})
	if err != nil {
		RespondInternal(ctx, "Could not encode users")
		return
	}

	h.cacheSet(reqCtx, key, body, gen)
	RespondJSONBytesWithETag(ctx, http.StatusOK, body)
}

func (h *UsersHandler) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}

	body, err := h.cache.Get(ctx, key)
	switch {
	case err == nil:
		h.observeCache("hit")
		return body, true
	case errors.Is(err, cache.ErrMiss):
		h.observeCache("miss")
	default:
		h.observeCache("error")
		slog.Default().WarnContext(ctx, "cache get failed", "err", err, "cache_key", key)
	}
	return nil, false
}

func (h *UsersHandler) generation() uint64 {
	h.fillMu.Lock()
	defer h.fillMu.Unlock()
	return h.gen
}

// cacheSet stores body unless an invalidation ran after the rows were read.
func (h *UsersHandler) cacheSet(ctx context.Context, key string, body []byte, readGen uint64) {
	if h.cache == nil {
		return
	}

	h.fillMu.Lock()
	defer h.fillMu.Unlock()

	if h.gen != readGen {
		h.observeCache("skip")
		return
	}

	if err := h.cache.Set(ctx, key, body); err != nil {
		slog.Default().WarnContext(ctx, "cache set failed", "err", err, "cache_key", key)
	}
}

func (h *UsersHandler) invalidate(ctx *gin.Context, keys ...string) {
	if h.cache == nil {
		return
	}

	h.fillMu.Lock()
	defer h.fillMu.Unlock()

	h.gen++

	if err := h.cache.Delete(ctx.Request.Context(), keys...); err != nil {
		slog.Default().WarnContext(ctx.Request.Context(), "cache invalidation failed", "err", err, "keys", keys)
	}
}

// notify is best effort; the write is already committed.
func (h *UsersHandler) notify(ctx *gin.Context, ev notifications.UserEvent) {
	if h.notifier == nil {
		return
	}

	ev.RequestID = requestIDFrom(ctx)
	ev.OccurredAt = time.Now().UTC()

	err := h.notifier.NotifyUser(ctx.Request.Context(), ev)
	if h.prom != nil {
		h.prom.ObserveNotification(ev.Type, err)
	}
	if err != nil {
		slog.Default().WarnContext(ctx.Request.Context(), "user notification failed",
			"err", err, "type", ev.Type, "user_id", ev.UserID)
	}
}

func (h *UsersHandler) observeCache(result string) {
	if h.prom != nil {
		h.prom.ObserveCache(result)
	}
}
