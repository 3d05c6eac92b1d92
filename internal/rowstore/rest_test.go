package rowstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

func newTestREST(t *testing.T, h http.HandlerFunc, token TokenFunc) *RESTStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRESTStore(srv.URL, "anon-key-0123456789", srv.Client(), token)
}

func TestRESTStore_Select(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/cart_items", r.URL.Path)
		assert.Equal(t, "eq.u1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "anon-key-0123456789", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[{"id":"1","name":"a","quantity":2},{"id":"2","name":"b","quantity":1}]`)
	}, func() string { return "user-token" })

	var rows []testRow
	require.NoError(t, store.Select(context.Background(), "cart_items", NewQuery().Eq("user_id", "u1"), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Quantity)
}

func TestRESTStore_AnonBearerFallback(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer anon-key-0123456789", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[]`)
	}, func() string { return "" })

	var rows []testRow
	require.NoError(t, store.Select(context.Background(), "products", nil, &rows))
	assert.Empty(t, rows)
}

func TestRESTStore_Count(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		assert.Equal(t, "lt.10", r.URL.Query().Get("stock_quantity"))
		w.Header().Set("Content-Range", "0-2/3")
	}, nil)

	n, err := store.Count(context.Background(), "products", NewQuery().Lt("stock_quantity", 10))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRESTStore_Insert(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "chair", body["name"])
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `[{"id":"new","name":"chair","quantity":1}]`)
	}, nil)

	var out testRow
	require.NoError(t, store.Insert(context.Background(), "cart_items", map[string]any{"name": "chair"}, &out))
	assert.Equal(t, "new", out.ID)
}

func TestRESTStore_Upsert(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")
		_, _ = io.WriteString(w, `[{"id":"x"}]`)
	}, nil)

	require.NoError(t, store.Upsert(context.Background(), "admin_users", map[string]any{"id": "x"}, nil))
}

func TestRESTStore_UpdateNotFound(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.missing", r.URL.Query().Get("id"))
		_, _ = io.WriteString(w, `[]`)
	}, nil)

	err := store.Update(context.Background(), "cart_items", "missing", map[string]any{"quantity": 3}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRESTStore_Delete(t *testing.T) {
	var called bool
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "eq.line-1", r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNoContent)
	}, nil)

	require.NoError(t, store.Delete(context.Background(), "cart_items", "line-1"))
	assert.True(t, called)
}

func TestRESTStore_BackendError(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"code":"23505","message":"duplicate key value violates unique constraint"}`)
	}, nil)

	err := store.Insert(context.Background(), "wishlist_items", map[string]any{"id": "1"}, nil)
	var rsErr *Error
	require.ErrorAs(t, err, &rsErr)
	assert.Equal(t, http.StatusConflict, rsErr.Status)
	assert.Equal(t, "23505", rsErr.Code)
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestRESTStore_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	store := NewRESTStore(srv.URL, "anon-key-0123456789", srv.Client(), nil)
	srv.Close()

	var rows []testRow
	err := store.Select(context.Background(), "products", nil, &rows)
	var rsErr *Error
	require.ErrorAs(t, err, &rsErr)
	assert.Equal(t, "select", rsErr.Op)
}

func TestParseContentRange(t *testing.T) {
	n, err := parseContentRange("0-24/3573")
	require.NoError(t, err)
	assert.Equal(t, 3573, n)

	n, err = parseContentRange("*/0")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = parseContentRange("0-24/*")
	assert.Error(t, err)
	_, err = parseContentRange("")
	assert.Error(t, err)
}
