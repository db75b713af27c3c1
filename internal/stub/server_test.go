package stub

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func get(t *testing.T, h http.Handler, path, token string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	res := rec.Result()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func TestServer_ServesAllEndpoints(t *testing.T) {
	s := New(Options{})

	tests := []struct {
		path  string
		field string
	}{
		{"/user", "username"},
		{"/userRatings", "items.0.rating"},
		{"/matchResults", "items.0.opponent.id"},
		{"/activeMatches", "items.0.Player1.Id"},
		{"/friends", "items.0.friendId"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res, body := get(t, s, tt.path, "")
			assert.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
			assert.True(t, gjson.Valid(body))
			assert.True(t, gjson.Get(body, tt.field).Exists(), "missing %s in %s", tt.field, body)
		})
	}
}

func TestServer_ListSizes(t *testing.T) {
	s := New(Options{})

	_, body := get(t, s, "/userRatings", "")
	assert.Equal(t, int64(datasetSize), gjson.Get(body, "items.#").Int())

	_, body = get(t, s, "/friends", "")
	assert.Equal(t, int64(datasetSize-1), gjson.Get(body, "items.#").Int())

	_, body = get(t, s, "/activeMatches", "")
	assert.Equal(t, int64((datasetSize-1)/2), gjson.Get(body, "items.#").Int())
	assert.False(t, gjson.Get(body, "nextPageToken").Exists())
}

func TestServer_RequiresExactToken(t *testing.T) {
	s := New(Options{Token: "Bearer abc.def"})

	res, _ := get(t, s, "/user", "Bearer abc.def")
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, body := get(t, s, "/user", "abc.def")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "Unauthorized", gjson.Get(body, "message").String())

	res, _ = get(t, s, "/user", "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestServer_ErrorRate(t *testing.T) {
	rolls := []float64{0.01, 0.5}
	i := 0
	s := New(Options{
		ErrorRate: 0.1,
		Roll: func() float64 {
			r := rolls[i%len(rolls)]
			i++
			return r
		},
	})

	res, _ := get(t, s, "/friends", "")
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)

	res, _ = get(t, s, "/friends", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestServer_Latency(t *testing.T) {
	s := New(Options{Latency: 30 * time.Millisecond})

	start := time.Now()
	res, _ := get(t, s, "/user", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestServer_UnknownPath(t *testing.T) {
	s := New(Options{})
	res, _ := get(t, s, "/games", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestServer_CountsRequests(t *testing.T) {
	s := New(Options{Token: "t"})

	get(t, s, "/user", "t")
	get(t, s, "/user", "t")
	get(t, s, "/friends", "wrong")

	assert.Equal(t, 2.0, testutil.ToFloat64(s.requests.WithLabelValues("/user", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.requests.WithLabelValues("/friends", "401")))

	res, body := get(t, s, "/metrics", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, strings.Contains(body, "chessload_stub_requests_total"))
}
