package subscriptions

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ItalyPaleAle/rss-digest/db"
	"github.com/ItalyPaleAle/rss-digest/migrations"
	"github.com/ItalyPaleAle/rss-digest/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	err = migrations.Migrate(conn)
	if err != nil {
		t.Fatal(err)
	}
	return NewStore(conn)
}

func TestCreateOrGetConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.CreateOrGet(ctx, "a@x.com", "AI")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Email != "a@x.com" || sub.Topic != "AI" || sub.ID < 1 {
		t.Fatalf("Unexpected subscription: %+v", sub)
	}

	_, err = s.CreateOrGet(ctx, "a@x.com", "Tech")
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}

	// Same email with a different case in the domain is the same subscriber
	_, err = s.CreateOrGet(ctx, "a@X.com", "Tech")
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}

	sub, err = s.GetByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Topic != "AI" {
		t.Fatalf("Expected topic to still be AI, got %s", sub.Topic)
	}
}

func TestCreateOrGetConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateOrGet(ctx, "race@x.com", "AI")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrConflict):
				conflicts++
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || conflicts != n-1 {
		t.Fatalf("Expected exactly 1 success and %d conflicts, got %d and %d", n-1, succeeded, conflicts)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("Expected 1 row, got %d", count)
	}
}

func TestUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Upsert(ctx, "a@x.com", "AI")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Upsert(ctx, "a@x.com", "Tech")
	if err != nil {
		t.Fatal(err)
	}
	if second.Topic != "Tech" || second.ID != first.ID {
		t.Fatalf("Expected the same row with topic Tech, got %+v (first: %+v)", second, first)
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Email != "a@x.com" || all[0].Topic != "Tech" {
		t.Fatalf("Expected exactly one row with topic Tech, got %+v", all)
	}
}

func TestGetByEmailNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetByEmail(context.Background(), "nobody@x.com")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestListByTopic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for email, topic := range map[string]string{
		"a@x.com": "AI",
		"b@x.com": "Science",
		"c@x.com": "AI",
	} {
		if _, err := s.CreateOrGet(ctx, email, topic); err != nil {
			t.Fatal(err)
		}
	}

	ai, err := s.ListByTopic(ctx, "AI")
	if err != nil {
		t.Fatal(err)
	}
	if len(ai) != 2 {
		t.Fatalf("Expected 2 subscriptions to AI, got %d", len(ai))
	}
	for _, sub := range ai {
		if sub.Topic != "AI" {
			t.Errorf("Unexpected subscription: %+v", sub)
		}
	}

	none, err := s.ListByTopic(ctx, "Bogus")
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("Expected an empty list, got %v", none)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("Expected 3 subscriptions, got %d", count)
	}
}
