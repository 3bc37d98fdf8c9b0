package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/membergate/membergate/session"
)

// Integration tests against a real database. Set TEST_DB_DSN to a
// Postgres DSN to enable, e.g.
//
//	TEST_DB_DSN="host=localhost user=postgres dbname=membergate_test" go test ./sqlstore
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	store, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Exec("DELETE FROM refresh_records").Error
	})
	return store
}

func testRecord(identity, refresh, access string, ttl time.Duration) session.Record {
	now := time.Now()
	return session.Record{
		Identity:    identity,
		Authority:   "ROLE_MEMBER",
		RefreshHash: session.HashValue(refresh),
		AccessHash:  session.HashValue(access),
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(ttl).Unix(),
	}
}

func TestStoreContract(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("alice", "refresh-1", "access-1", time.Hour)
	if err := store.Create(ctx, rec, true); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.RefreshHash != rec.RefreshHash || got.AccessHash != rec.AccessHash {
		t.Errorf("Lookup = %+v, want %+v", got, rec)
	}

	byAccess, err := store.LookupByAccess(ctx, rec.AccessHash)
	if err != nil {
		t.Fatalf("LookupByAccess: %v", err)
	}
	if byAccess.Identity != "alice" {
		t.Errorf("LookupByAccess identity = %q, want alice", byAccess.Identity)
	}

	if _, err := store.Lookup(ctx, "nobody"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Lookup(nobody) error = %v, want ErrNotFound", err)
	}

	// A second session for the same identity is refused without replace.
	second := testRecord("alice", "refresh-2", "access-2", time.Hour)
	if err := store.Create(ctx, second, false); !errors.Is(err, session.ErrSessionExists) {
		t.Errorf("Create without replace error = %v, want ErrSessionExists", err)
	}
	if err := store.Create(ctx, second, true); err != nil {
		t.Fatalf("Create with replace: %v", err)
	}

	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Lookup(ctx, "alice"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Lookup after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "alice"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestStoreRotate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("alice", "refresh-1", "access-1", time.Hour)
	if err := store.Create(ctx, rec, true); err != nil {
		t.Fatalf("Create: %v", err)
	}

	newAccess := session.HashValue("access-2")
	updated, err := store.Rotate(ctx, "alice", rec.RefreshHash, rec.AccessHash, newAccess, rec.RefreshHash)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if updated.AccessHash != newAccess {
		t.Errorf("rotated access hash = %q, want %q", updated.AccessHash, newAccess)
	}

	if _, err := store.Rotate(ctx, "alice", session.HashValue("wrong"), newAccess, session.HashValue("x"), session.HashValue("wrong")); !errors.Is(err, session.ErrRefreshMismatch) {
		t.Errorf("wrong refresh error = %v, want ErrRefreshMismatch", err)
	}
	if _, err := store.Rotate(ctx, "alice", rec.RefreshHash, rec.AccessHash, session.HashValue("x"), rec.RefreshHash); !errors.Is(err, session.ErrConflict) {
		t.Errorf("stale observation error = %v, want ErrConflict", err)
	}
	if _, err := store.Rotate(ctx, "nobody", rec.RefreshHash, newAccess, session.HashValue("x"), rec.RefreshHash); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("unknown identity error = %v, want ErrNotFound", err)
	}
}

func TestStoreRotateSingleWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("alice", "refresh-1", "access-1", time.Hour)
	if err := store.Create(ctx, rec, true); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const racers = 8
	errs := make([]error, racers)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			newAccess := session.HashValue(fmt.Sprintf("candidate-%d", i))
			_, errs[i] = store.Rotate(ctx, "alice", rec.RefreshHash, rec.AccessHash, newAccess, rec.RefreshHash)
		}(i)
	}
	start.Done()
	done.Wait()

	winners := 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, session.ErrConflict):
		default:
			t.Errorf("racer %d: unexpected error %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestStoreExpiryAndSweep(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dead := session.Record{
		Identity:    "ghost",
		Authority:   "ROLE_MEMBER",
		RefreshHash: session.HashValue("refresh-dead"),
		AccessHash:  session.HashValue("access-dead"),
		IssuedAt:    time.Now().Add(-2 * time.Hour).Unix(),
		ExpiresAt:   time.Now().Add(-time.Hour).Unix(),
	}
	// Insert the dead row directly; Create refuses expired records.
	if err := store.db.Create(&RefreshRecord{
		Identity:    dead.Identity,
		Authority:   dead.Authority,
		RefreshHash: dead.RefreshHash,
		AccessHash:  dead.AccessHash,
		IssuedAt:    time.Unix(dead.IssuedAt, 0),
		ExpiresAt:   time.Unix(dead.ExpiresAt, 0),
	}).Error; err != nil {
		t.Fatalf("insert dead row: %v", err)
	}

	if _, err := store.Lookup(ctx, "ghost"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expired Lookup error = %v, want ErrNotFound", err)
	}
	if _, err := store.LookupByAccess(ctx, dead.AccessHash); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expired LookupByAccess error = %v, want ErrNotFound", err)
	}

	live := testRecord("alice", "refresh-1", "access-1", time.Hour)
	if err := store.Create(ctx, live, true); err != nil {
		t.Fatalf("Create: %v", err)
	}

	swept, err := store.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if swept != 0 {
		// Lookup already deleted the ghost row; either way the live row
		// must survive.
		t.Logf("swept %d rows", swept)
	}
	if _, err := store.Lookup(ctx, "alice"); err != nil {
		t.Errorf("live record swept: %v", err)
	}
}
