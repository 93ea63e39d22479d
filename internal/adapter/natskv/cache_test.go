package natskv

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// mockKV implements the subset of jetstream.KeyValue used by Cache.
type mockKV struct {
	jetstream.KeyValue
	mu   sync.Mutex
	data map[string][]byte
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string][]byte)}
}

func (m *mockKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return &mockEntry{key: key, value: v}, nil
}

func (m *mockKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return uint64(len(m.data)), nil
}

func (m *mockKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return jetstream.ErrKeyNotFound
	}
	delete(m.data, key)
	return nil
}

type mockEntry struct {
	jetstream.KeyValueEntry
	key   string
	value []byte
}

func (e *mockEntry) Key() string   { return e.key }
func (e *mockEntry) Value() []byte { return e.value }

func TestCacheRoundTrip(t *testing.T) {
	kv := newMockKV()
	c := New(kv)
	ctx := context.Background()

	key := "idem.POST./todos.abc def"
	if err := c.Set(ctx, key, []byte("payload"), time.Minute); err != nil {
		t.Fatal(err)
	}

	val, found, err := c.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(val) != "payload" {
		t.Fatalf("expected payload, got %q found=%v", val, found)
	}

	for stored := range kv.data {
		if strings.ContainsAny(stored, " /") {
			t.Fatalf("stored key %q contains characters invalid for NATS KV", stored)
		}
	}
}

func TestCacheMissAndDelete(t *testing.T) {
	c := New(newMockKV())
	ctx := context.Background()

	_, found, err := c.Get(ctx, "missing")
	if err != nil || found {
		t.Fatalf("expected clean miss, got found=%v err=%v", found, err)
	}
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Fatalf("deleting a missing key should not error: %v", err)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	if err := New(newMockKV()).Close(); err != nil {
		t.Fatal(err)
	}
}
