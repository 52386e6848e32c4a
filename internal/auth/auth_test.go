package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStore struct {
	keys  map[string]*APIKey // by raw key
	calls int
	err   error
}

func (m *mockStore) GetByKey(ctx context.Context, key string) (*APIKey, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if k, ok := m.keys[key]; ok {
		return k, nil
	}
	return nil, ErrKeyNotFound
}

func (m *mockStore) Create(ctx context.Context, apiKey *APIKey) error { return nil }

func (m *mockStore) Revoke(ctx context.Context, keyID string) error { return nil }

func (m *mockStore) List(ctx context.Context) ([]*APIKey, error) { return nil, nil }

func setup(t *testing.T, store Store) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	protected := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetAPIKeyID(r.Context())))
	})
	return RequestID(NewMiddleware(store, rdb, zap.NewNop())(protected)), mr
}

func TestMiddleware(t *testing.T) {
	store := &mockStore{keys: map[string]*APIKey{
		"secret": {ID: "key-1", Name: "ops", KeyHash: HashKey("secret"), Active: true},
	}}
	h, _ := setup(t, store)

	tests := []struct {
		name   string
		header map[string]string
		want   int
		body   string
	}{
		{"missing key", nil, http.StatusUnauthorized, ""},
		{"invalid key", map[string]string{"X-API-Key": "wrong"}, http.StatusUnauthorized, ""},
		{"x-api-key", map[string]string{"X-API-Key": "secret"}, http.StatusOK, "key-1"},
		{"bearer", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK, "key-1"},
		{"basic is not accepted", map[string]string{"Authorization": "Basic secret"}, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/v1/providers-costs/x", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestMiddleware_CachesLookups(t *testing.T) {
	store := &mockStore{keys: map[string]*APIKey{
		"secret": {ID: "key-1", KeyHash: HashKey("secret"), Active: true},
	}}
	h, mr := setup(t, store)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/v1/providers-costs/x", nil)
		req.Header.Set("X-API-Key", "secret")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 1, store.calls)
	assert.True(t, mr.Exists("auth:"+HashKey("secret")))
	assert.Greater(t, mr.TTL("auth:"+HashKey("secret")).Seconds(), 0.0)
}

func TestMiddleware_RedisDownFallsBackToStore(t *testing.T) {
	store := &mockStore{keys: map[string]*APIKey{
		"secret": {ID: "key-1", KeyHash: HashKey("secret"), Active: true},
	}}
	h, mr := setup(t, store)
	mr.Close()

	req := httptest.NewRequest(http.MethodPut, "/v1/platform-plans/p", nil)
	req.Header.Set("X-API-Key", "secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.calls)
}

func TestMiddleware_StoreError(t *testing.T) {
	h, _ := setup(t, &mockStore{err: errors.New("db down")})

	req := httptest.NewRequest(http.MethodPut, "/v1/platform-plans/p", nil)
	req.Header.Set("X-API-Key", "secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHashKey(t *testing.T) {
	assert.Len(t, HashKey("test-api-key-12345"), 64)
	assert.Equal(t, HashKey("a"), HashKey("a"))
	assert.NotEqual(t, HashKey("a"), HashKey("b"))
}
