// Package natskv implements the cache port using NATS JetStream KV as the
// shared L2 store for replayable responses.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Cache wraps a NATS JetStream KeyValue store as an L2 cache.
type Cache struct {
	kv jetstream.KeyValue
	nc *nats.Conn
}

// New creates a NATS KV-backed cache over an existing bucket.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Open connects to url and creates (or updates) bucket with the given
// per-entry TTL. Close releases the connection.
func Open(ctx context.Context, url, bucket string, ttl time.Duration) (*Cache, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream kv %s: %w", bucket, err)
	}

	return &Cache{kv: kv, nc: nc}, nil
}

// encodeKey maps arbitrary keys onto the NATS KV key alphabet.
func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Get retrieves a value from the NATS KV store.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores a value in the NATS KV store. TTL is managed at bucket level.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, encodeKey(key), value)
	return err
}

// Delete removes a value from the NATS KV store.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Close drains the connection opened by Open.
func (c *Cache) Close() error {
	if c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}
