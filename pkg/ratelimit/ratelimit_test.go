package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	extratelimit "github.com/vnmchuo/ratelimiter"
)

type recordingStore struct {
	keys   []string
	result extratelimit.Result
	err    error
}

func (m *recordingStore) AllowN(ctx context.Context, key string, n int) (*extratelimit.Result, error) {
	m.keys = append(m.keys, key)
	res := m.result
	return &res, m.err
}

func (m *recordingStore) Allow(ctx context.Context, key string) (*extratelimit.Result, error) {
	return m.AllowN(ctx, key, 1)
}

func (m *recordingStore) Status(ctx context.Context, key string) (*extratelimit.Result, error) {
	res := m.result
	return &res, m.err
}

func TestAllowWrite(t *testing.T) {
	store := &recordingStore{result: extratelimit.Result{Allowed: true, Remaining: 9, ResetAfter: 30 * time.Second}}
	l := NewTestLimiter(store)

	d, err := l.AllowWrite(context.Background(), "key-1")
	if err != nil || !d.Allowed {
		t.Fatalf("Expected write to be allowed, got %+v, %v", d, err)
	}
	if d.Remaining != 9 || d.ResetAfter != 30*time.Second {
		t.Errorf("Unexpected decision: %+v", d)
	}
	if len(store.keys) != 1 || store.keys[0] != "ratelimit:writes:key-1" {
		t.Errorf("Unexpected limiter keys: %v", store.keys)
	}

	store.result.Allowed = false
	d, _ = l.AllowWrite(context.Background(), "key-1")
	if d.Allowed {
		t.Error("Expected write to be denied")
	}
}

func TestAllowWrite_StoreError(t *testing.T) {
	l := NewTestLimiter(&recordingStore{err: errors.New("redis down")})

	d, err := l.AllowWrite(context.Background(), "key-1")
	if err == nil || d.Allowed {
		t.Errorf("Expected error and denial, got %+v, %v", d, err)
	}
}

func TestDecision_RetryAfter(t *testing.T) {
	tests := []struct {
		reset time.Duration
		want  time.Duration
	}{
		{0, time.Minute},
		{-time.Second, time.Minute},
		{time.Millisecond, time.Second},
		{16200 * time.Millisecond, 17 * time.Second},
		{30 * time.Second, 30 * time.Second},
	}
	for _, tt := range tests {
		got := Decision{ResetAfter: tt.reset}.RetryAfter(time.Minute)
		if got != tt.want {
			t.Errorf("RetryAfter(%v) = %v, want %v", tt.reset, got, tt.want)
		}
	}
}
