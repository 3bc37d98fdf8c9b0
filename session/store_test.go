package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, ""), mr
}

func testRecord(identity, refresh, access string, ttl time.Duration) Record {
	now := time.Now()
	return Record{
		Identity:    identity,
		Authority:   "ROLE_MEMBER",
		RefreshHash: HashValue(refresh),
		AccessHash:  HashValue(access),
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(ttl).Unix(),
	}
}

func TestCreateAndLookup(t *testing.T) {
	store, _ := newTestStore(t)
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
		t.Errorf("Lookup returned %+v, want %+v", got, rec)
	}

	byAccess, err := store.LookupByAccess(ctx, rec.AccessHash)
	if err != nil {
		t.Fatalf("LookupByAccess: %v", err)
	}
	if byAccess.Identity != "alice" {
		t.Errorf("LookupByAccess identity = %q, want alice", byAccess.Identity)
	}

	if _, err := store.Lookup(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(bob) error = %v, want ErrNotFound", err)
	}
	if _, err := store.LookupByAccess(ctx, HashValue("never-issued")); !errors.Is(err, ErrNotFound) {
		t.Errorf("LookupByAccess(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestCreateReplacePolicy(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := testRecord("alice", "refresh-1", "access-1", time.Hour)
	if err := store.Create(ctx, first, false); err != nil {
		t.Fatalf("Create: %v", err)
	}

	second := testRecord("alice", "refresh-2", "access-2", time.Hour)
	if err := store.Create(ctx, second, false); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("Create without replace error = %v, want ErrSessionExists", err)
	}

	if err := store.Create(ctx, second, true); err != nil {
		t.Fatalf("Create with replace: %v", err)
	}
	got, err := store.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.RefreshHash != second.RefreshHash {
		t.Error("replace did not overwrite the prior record")
	}

	// The superseded pairing must be unreachable even though its index key
	// may linger until TTL.
	if _, err := store.LookupByAccess(ctx, first.AccessHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale pairing lookup error = %v, want ErrNotFound", err)
	}
}

func TestRecordExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("alice", "refresh-1", "access-1", time.Minute)
	if err := store.Create(ctx, rec, true); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Lookup(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired Lookup error = %v, want ErrNotFound", err)
	}
	if _, err := store.LookupByAccess(ctx, rec.AccessHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired LookupByAccess error = %v, want ErrNotFound", err)
	}
}

func TestRotate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("alice", "refresh-1", "access-1", time.Hour)
	if err := store.Create(ctx, rec, true); err != nil {
		t.Fatalf("Create: %v", err)
	}

	newAccess := HashValue("access-2")
	updated, err := store.Rotate(ctx, "alice", rec.RefreshHash, rec.AccessHash, newAccess, rec.RefreshHash)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if updated.AccessHash != newAccess {
		t.Errorf("rotated access hash = %q, want %q", updated.AccessHash, newAccess)
	}
	if updated.ExpiresAt != rec.ExpiresAt {
		t.Error("rotation changed the refresh expiry")
	}

	// The index follows the pairing.
	if _, err := store.LookupByAccess(ctx, rec.AccessHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("old pairing lookup error = %v, want ErrNotFound", err)
	}
	byAccess, err := store.LookupByAccess(ctx, newAccess)
	if err != nil {
		t.Fatalf("LookupByAccess after rotate: %v", err)
	}
	if byAccess.Identity != "alice" {
		t.Errorf("new pairing identity = %q, want alice", byAccess.Identity)
	}
}

func TestRotateRejections(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("alice", "refresh-1", "access-1", time.Hour)
	if err := store.Create(ctx, rec, true); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := store.Rotate(ctx, "bob", rec.RefreshHash, rec.AccessHash, HashValue("x"), rec.RefreshHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown identity error = %v, want ErrNotFound", err)
	}
	if _, err := store.Rotate(ctx, "alice", HashValue("wrong-refresh"), rec.AccessHash, HashValue("x"), HashValue("wrong-refresh")); !errors.Is(err, ErrRefreshMismatch) {
		t.Errorf("wrong refresh error = %v, want ErrRefreshMismatch", err)
	}
	if _, err := store.Rotate(ctx, "alice", rec.RefreshHash, HashValue("stale-observation"), HashValue("x"), rec.RefreshHash); !errors.Is(err, ErrConflict) {
		t.Errorf("stale observation error = %v, want ErrConflict", err)
	}

	// The failed attempts must not have changed the record.
	got, err := store.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.AccessHash != rec.AccessHash || got.RefreshHash != rec.RefreshHash {
		t.Error("rejected rotation mutated the record")
	}
}

func TestRotateExpiredRecord(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("alice", "refresh-1", "access-1", time.Minute)
	if err := store.Create(ctx, rec, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.Rotate(ctx, "alice", rec.RefreshHash, rec.AccessHash, HashValue("x"), rec.RefreshHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired rotate error = %v, want ErrNotFound", err)
	}
}

// Rotation racers sharing the same observation: exactly one wins, the
// rest see the conflict, and the store ends with one consistent pairing.
func TestRotateSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("alice", "refresh-1", "access-1", time.Hour)
	if err := store.Create(ctx, rec, true); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const racers = 16
	errs := make([]error, racers)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			newAccess := HashValue(fmt.Sprintf("access-candidate-%d", i))
			_, errs[i] = store.Rotate(ctx, "alice", rec.RefreshHash, rec.AccessHash, newAccess, rec.RefreshHash)
		}(i)
	}
	start.Done()
	done.Wait()

	winners, conflicts := 0, 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Errorf("racer %d: unexpected error %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if conflicts != racers-1 {
		t.Fatalf("conflicts = %d, want %d", conflicts, racers-1)
	}

	got, err := store.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("Lookup after race: %v", err)
	}
	if got.AccessHash == rec.AccessHash {
		t.Error("record still paired with the pre-race access hash")
	}
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("alice", "refresh-1", "access-1", time.Hour)
	if err := store.Create(ctx, rec, true); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Lookup(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup after delete error = %v, want ErrNotFound", err)
	}
	if _, err := store.LookupByAccess(ctx, rec.AccessHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("LookupByAccess after delete error = %v, want ErrNotFound", err)
	}

	// Deleting a missing record is not an error.
	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}
