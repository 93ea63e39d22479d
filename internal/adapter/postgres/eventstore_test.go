package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/Strob0t/eventweb/internal/adapter/postgres"
	"github.com/Strob0t/eventweb/internal/config"
	"github.com/Strob0t/eventweb/internal/domain"
	"github.com/Strob0t/eventweb/internal/port/eventstore"
)

// setupEventStore connects to DATABASE_URL, runs all migrations, and returns
// a ready-to-use EventStore. The pool is closed via t.Cleanup.
func setupEventStore(t *testing.T) *postgres.EventStore {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	cfg := config.Defaults().Postgres
	cfg.DSN = dsn
	cfg.Mode = config.PostgresModePool
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewEventStore(pool)
}

func newStreamID() string { return "test-" + uuid.NewString() }

func mustEvent(t *testing.T, typ string, data any) eventstore.Event {
	t.Helper()
	ev, err := eventstore.NewEvent(typ, data)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestEventStore_ReadMissingStream(t *testing.T) {
	store := setupEventStore(t)

	res, err := store.ReadStream(context.Background(), newStreamID())
	if err != nil {
		t.Fatal(err)
	}
	if res.StreamExists || res.CurrentVersion != 0 || len(res.Events) != 0 {
		t.Errorf("unexpected result for missing stream: %+v", res)
	}
}

func TestEventStore_AppendAndRead(t *testing.T) {
	store := setupEventStore(t)
	ctx := context.Background()
	id := newStreamID()

	res, err := store.AppendToStream(ctx, id, eventstore.StreamDoesNotExist, []eventstore.Event{
		mustEvent(t, "Added", map[string]string{"title": "a"}),
		mustEvent(t, "Completed", map[string]string{}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.NextExpectedStreamVersion != 2 {
		t.Fatalf("next version = %d, want 2", res.NextExpectedStreamVersion)
	}

	read, err := store.ReadStream(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !read.StreamExists || read.CurrentVersion != 2 || len(read.Events) != 2 {
		t.Fatalf("unexpected read: %+v", read)
	}
	if read.Events[0].Type != "Added" || read.Events[1].StreamPosition != 2 {
		t.Errorf("unexpected events: %+v", read.Events)
	}
	if read.Events[0].RecordedAt.IsZero() {
		t.Error("expected recorded_at to be set")
	}

	res, err = store.AppendToStream(ctx, id, eventstore.ExactVersion(2), []eventstore.Event{
		mustEvent(t, "Removed", nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.NextExpectedStreamVersion != 3 {
		t.Errorf("next version = %d, want 3", res.NextExpectedStreamVersion)
	}
}

func TestEventStore_VersionMismatch(t *testing.T) {
	store := setupEventStore(t)
	ctx := context.Background()
	id := newStreamID()

	if _, err := store.AppendToStream(ctx, id, eventstore.NoConcurrencyCheck, []eventstore.Event{mustEvent(t, "Added", nil)}); err != nil {
		t.Fatal(err)
	}

	_, err := store.AppendToStream(ctx, id, eventstore.ExactVersion(5), []eventstore.Event{mustEvent(t, "Completed", nil)})
	var concurrency *domain.ConcurrencyError
	if !errors.As(err, &concurrency) {
		t.Fatalf("expected ConcurrencyError, got %v", err)
	}
	if concurrency.Current != 1 || concurrency.Expected != "5" {
		t.Errorf("unexpected error fields: %+v", concurrency)
	}

	_, err = store.AppendToStream(ctx, id, eventstore.StreamDoesNotExist, []eventstore.Event{mustEvent(t, "Added", nil)})
	if !errors.As(err, &concurrency) {
		t.Fatalf("expected ConcurrencyError for existing stream, got %v", err)
	}
}

func TestEventStore_ConcurrentCreate(t *testing.T) {
	store := setupEventStore(t)
	ctx := context.Background()
	id := newStreamID()

	const writers = 8
	added := []eventstore.Event{mustEvent(t, "Added", nil)}
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AppendToStream(ctx, id, eventstore.StreamDoesNotExist, added)
			var concurrency *domain.ConcurrencyError
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case errors.As(err, &concurrency):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("expected exactly one creator, got %d", succeeded)
	}
}
