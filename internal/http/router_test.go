package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/userhub/internal/cache"
	"github.com/geocoder89/userhub/internal/config"
	apphttp "github.com/geocoder89/userhub/internal/http"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/repo/memory"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Env:          "test",
		ServiceName:  "userhub-test",
		QueryTimeout: time.Second,
		MaxBodyBytes: 1 << 20,
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	repo := memory.NewUsersRepo()

	return apphttp.NewRouter(logger, testConfig(), apphttp.Deps{
		Users:   repo,
		Cache:   cache.New(time.Minute),
		Prom:    observability.NewProm(reg),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Ready:   []handlers.ReadinessCheck{{Name: "db", Ping: repo.Ping}},
	})
}

func do(r http.Handler, method, url, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type rowsResponse struct {
	Status  string `json:"status"`
	Message []struct {
		ID        int64  `json:"id"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
	} `json:"message"`
}

func listRows(t *testing.T, r http.Handler) rowsResponse {
	t.Helper()
	w := do(r, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp rowsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRouter_CreateThenList(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodPost, "/users", `{"firstName":"A","lastName":"B","email":"a@x.com"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	rows := listRows(t, r).Message
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].ID)
	assert.Equal(t, "A", rows[0].FirstName)
	assert.Equal(t, "B", rows[0].LastName)
	assert.Equal(t, "a@x.com", rows[0].Email)
}

func TestRouter_DuplicateEmailLeavesCountUnchanged(t *testing.T) {
	r := newTestRouter(t)
	body := `{"firstName":"A","lastName":"B","email":"a@x.com"}`

	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/users", body).Code)

	w := do(r, http.MethodPost, "/users", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"status":"Failure","message":"A user with that email adrress is already registered."}`, w.Body.String())

	assert.Len(t, listRows(t, r).Message, 1)
}

func TestRouter_UpdateOverwritesAndListStaysOrdered(t *testing.T) {
	r := newTestRouter(t)
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		require.Equal(t, http.StatusCreated,
			do(r, http.MethodPost, "/users", `{"firstName":"F","lastName":"L","email":"`+email+`"}`).Code)
	}

	w := do(r, http.MethodPut, "/users/1", `{"firstName":"X","lastName":"Y","email":"x@y.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"Success","message":"User with ID Number 1 is modified"}`, w.Body.String())

	w = do(r, http.MethodGet, "/users/1", "")
	assert.JSONEq(t, `{"status":"Success","message":[{"id":1,"firstName":"X","lastName":"Y","email":"x@y.com"}]}`, w.Body.String())

	rows := listRows(t, r).Message
	require.Len(t, rows, 3)
	for i := 1; i < len(rows); i++ {
		assert.Less(t, rows[i-1].ID, rows[i].ID)
	}
}

func TestRouter_UpdateToAnotherRowsEmailConflicts(t *testing.T) {
	r := newTestRouter(t)
	do(r, http.MethodPost, "/users", `{"firstName":"A","lastName":"B","email":"a@x.com"}`)
	do(r, http.MethodPost, "/users", `{"firstName":"C","lastName":"D","email":"c@x.com"}`)

	w := do(r, http.MethodPut, "/users/2", `{"firstName":"C","lastName":"D","email":"a@x.com"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_DeleteMissingHasSameShape(t *testing.T) {
	r := newTestRouter(t)
	do(r, http.MethodPost, "/users", `{"firstName":"A","lastName":"B","email":"a@x.com"}`)

	existing := do(r, http.MethodDelete, "/users/1", "")
	missing := do(r, http.MethodDelete, "/users/9999", "")

	assert.Equal(t, http.StatusOK, existing.Code)
	assert.Equal(t, http.StatusOK, missing.Code)
	assert.JSONEq(t, `{"message":"User with ID Number 1 is successfully deleted"}`, existing.Body.String())
	assert.JSONEq(t, `{"message":"User with ID Number 9999 is successfully deleted"}`, missing.Body.String())
	assert.Empty(t, listRows(t, r).Message)
}

func TestRouter_ConcurrentCreatesSameEmail(t *testing.T) {
	r := newTestRouter(t)

	const n = 16
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = do(r, http.MethodPost, "/users", `{"firstName":"A","lastName":"B","email":"race@x.com"}`).Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		if c == http.StatusCreated {
			created++
		} else {
			assert.Equal(t, http.StatusConflict, c)
		}
	}
	assert.Equal(t, 1, created)
	assert.Len(t, listRows(t, r).Message, 1)
}

func TestRouter_PlumbingRoutes(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/readyz", "").Code)

	do(r, http.MethodGet, "/users", "")
	w = do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "userhub_http_requests_total"))
}

func TestRouter_RejectsNonJSONBody(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader("firstName=A"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}
