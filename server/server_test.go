package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagedb"
)

func newApp(t *testing.T) (*fiber.App, *pagedb.DB) {
	t.Helper()
	db, err := pagedb.Open(t.TempDir(), pagedb.WithDegree(2))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, nil), db
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestRecordLifecycle(t *testing.T) {
	t.Parallel()
	app, _ := newApp(t)

	code, body := do(t, app, http.MethodPost, "/records", `{"first":3,"second":4,"third":5,"key":100}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(0), body["location"])

	code, body = do(t, app, http.MethodGet, "/records/100", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"first": float64(3), "second": float64(4), "third": float64(5), "key": float64(100)}, body)

	code, _ = do(t, app, http.MethodPut, "/records/100", `{"first":9,"second":9,"third":9}`)
	require.Equal(t, http.StatusOK, code)

	code, body = do(t, app, http.MethodGet, "/records/100", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(9), body["first"])

	code, body = do(t, app, http.MethodDelete, "/records/100", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["location"])

	code, body = do(t, app, http.MethodGet, "/records/100", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["error"], "key not found")
}

func TestErrorStatuses(t *testing.T) {
	t.Parallel()
	app, _ := newApp(t)

	code, _ := do(t, app, http.MethodPost, "/records", `{"first":1,"second":1,"third":1,"key":7}`)
	require.Equal(t, http.StatusCreated, code)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"duplicate", http.MethodPost, "/records", `{"first":1,"second":1,"third":1,"key":7}`, http.StatusConflict},
		{"tombstone", http.MethodPost, "/records", `{"first":-1,"second":-1,"third":-1,"key":-1}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/records", `{"first":`, http.StatusBadRequest},
		{"bad key", http.MethodGet, "/records/abc", "", http.StatusBadRequest},
		{"key overflow", http.MethodGet, "/records/4294967296", "", http.StatusBadRequest},
		{"update missing", http.MethodPut, "/records/8", `{"first":1,"second":1,"third":1}`, http.StatusNotFound},
		{"update mismatch", http.MethodPut, "/records/7", `{"first":1,"second":1,"third":1,"key":8}`, http.StatusBadRequest},
		{"delete missing", http.MethodDelete, "/records/8", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		code, body := do(t, app, tt.method, tt.path, tt.body)
		assert.Equal(t, tt.want, code, tt.name)
		assert.NotEmpty(t, body["error"], tt.name)
	}
}

func TestInfoTreeAndStats(t *testing.T) {
	t.Parallel()
	app, db := newApp(t)

	for _, k := range []int{5, 1, 9, 3, 7} {
		_, err := db.Insert(pagedb.Record{First: 1, Second: 2, Third: 3, Key: pagedb.Key(k)})
		require.NoError(t, err)
	}

	code, body := do(t, app, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, db.Info().ID.String(), body["id"])
	assert.Equal(t, float64(2), body["degree"])
	assert.Equal(t, float64(2), body["height"])
	assert.Equal(t, float64(5), body["nextLocation"])

	code, body = do(t, app, http.MethodGet, "/tree", "")
	require.Equal(t, http.StatusOK, code)
	nodes, ok := body["nodes"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, nodes)
	root := nodes[0].(map[string]any)
	assert.Equal(t, float64(-1), root["parent"])
	assert.NotEmpty(t, root["children"])

	code, body = do(t, app, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.Greater(t, body["nodeWrites"], float64(0))
	assert.Greater(t, body["recordWrites"], float64(0))

	code, body = do(t, app, http.MethodDelete, "/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["nodeWrites"])
	assert.Equal(t, float64(0), body["recordWrites"])
}

func TestBlock(t *testing.T) {
	t.Parallel()
	app, db := newApp(t)

	for k := range 3 {
		_, err := db.Insert(pagedb.Record{First: 1, Second: 2, Third: 3, Key: pagedb.Key(k)})
		require.NoError(t, err)
	}
	_, err := db.Delete(1)
	require.NoError(t, err)

	code, body := do(t, app, http.MethodGet, "/blocks/0", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["block"])
	slots, ok := body["slots"].([]any)
	require.True(t, ok)
	require.Len(t, slots, 3)

	first := slots[0].(map[string]any)
	assert.Equal(t, float64(0), first["location"])
	assert.Equal(t, false, first["deleted"])
	assert.Equal(t, map[string]any{"first": float64(1), "second": float64(2), "third": float64(3), "key": float64(0)}, first["record"])

	deleted := slots[1].(map[string]any)
	assert.Equal(t, true, deleted["deleted"])
	assert.NotContains(t, deleted, "record")

	code, _ = do(t, app, http.MethodGet, "/blocks/4", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, app, http.MethodGet, "/blocks/x", "")
	assert.Equal(t, http.StatusBadRequest, code)
}
