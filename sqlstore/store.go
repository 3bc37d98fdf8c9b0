package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/membergate/membergate/session"
)

// RefreshRecord is the persisted refresh session row. Only credential
// hashes are stored, never plaintext.
type RefreshRecord struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Identity    string    `gorm:"size:191;not null;uniqueIndex"`
	Authority   string    `gorm:"size:64"`
	RefreshHash string    `gorm:"size:64;not null"`
	AccessHash  string    `gorm:"size:64;not null;index"`
	IssuedAt    time.Time `gorm:"not null"`
	ExpiresAt   time.Time `gorm:"index;not null"`
}

// TableName keeps the table name stable across GORM naming strategies.
func (RefreshRecord) TableName() string { return "refresh_records" }

// Store is the GORM implementation of [session.RefreshStore] for
// deployments that want the refresh mapping in Postgres rather than Redis.
// Rotation is a single conditional UPDATE, so the compare-and-swap
// contract holds without explicit locking.
type Store struct {
	db *gorm.DB
}

// New migrates the refresh_records table and returns a [Store].
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: nil gorm DB")
	}
	if err := db.AutoMigrate(&RefreshRecord{}); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Create inserts a record, overwriting the identity's prior row when
// replace is set.
func (s *Store) Create(ctx context.Context, rec session.Record, replace bool) error {
	row := toRow(rec)
	if row.ExpiresAt.Before(time.Now()) {
		return fmt.Errorf("%w: record already expired", session.ErrStoreUnavailable)
	}

	if replace {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("identity = ?", rec.Identity).Delete(&RefreshRecord{}).Error; err != nil {
				return wrapDBErr(err)
			}
			if err := tx.Create(&row).Error; err != nil {
				return wrapDBErr(err)
			}
			return nil
		})
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueConstraintError(err) {
			return session.ErrSessionExists
		}
		return wrapDBErr(err)
	}
	return nil
}

// Lookup resolves the identity's record, treating expired rows as absent.
func (s *Store) Lookup(ctx context.Context, identity string) (*session.Record, error) {
	var row RefreshRecord
	err := s.db.WithContext(ctx).Where("identity = ?", identity).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, wrapDBErr(err)
	}
	rec := fromRow(row)
	if rec.Expired(time.Now()) {
		_ = s.Delete(ctx, identity)
		return nil, session.ErrNotFound
	}
	return &rec, nil
}

// LookupByAccess resolves the record currently paired with accessHash.
func (s *Store) LookupByAccess(ctx context.Context, accessHash string) (*session.Record, error) {
	var row RefreshRecord
	err := s.db.WithContext(ctx).
		Where("access_hash = ? AND expires_at > ?", accessHash, time.Now()).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, wrapDBErr(err)
	}
	rec := fromRow(row)
	return &rec, nil
}

// Rotate re-pairs the identity's record in one conditional UPDATE. The
// WHERE clause carries the full compare: identity, stored refresh hash,
// the access hash the caller observed, and liveness. RowsAffected == 1 is
// the swap; zero rows are diagnosed into the mismatch/conflict taxonomy.
func (s *Store) Rotate(ctx context.Context, identity, providedRefreshHash, observedAccessHash, newAccessHash, newRefreshHash string) (*session.Record, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&RefreshRecord{}).
		Where("identity = ? AND refresh_hash = ? AND access_hash = ? AND expires_at > ?",
			identity, providedRefreshHash, observedAccessHash, now).
		Updates(map[string]interface{}{
			"access_hash":  newAccessHash,
			"refresh_hash": newRefreshHash,
		})
	if res.Error != nil {
		return nil, wrapDBErr(res.Error)
	}
	if res.RowsAffected == 1 {
		return s.Lookup(ctx, identity)
	}

	// The swap lost; read the row once to name the reason. The read is
	// advisory only and never changes the rejection outcome.
	var row RefreshRecord
	err := s.db.WithContext(ctx).Where("identity = ?", identity).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, wrapDBErr(err)
	}
	if !row.ExpiresAt.After(now) {
		return nil, session.ErrNotFound
	}
	if row.RefreshHash != providedRefreshHash {
		return nil, session.ErrRefreshMismatch
	}
	return nil, session.ErrConflict
}

// Delete removes the identity's record. Missing rows are not an error.
func (s *Store) Delete(ctx context.Context, identity string) error {
	if err := s.db.WithContext(ctx).Where("identity = ?", identity).Delete(&RefreshRecord{}).Error; err != nil {
		return wrapDBErr(err)
	}
	return nil
}

// SweepExpired removes rows whose refresh expiry has passed and reports
// how many were dropped. Run it from a periodic job; lookups already treat
// expired rows as absent, so the sweep is housekeeping only.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", time.Now()).Delete(&RefreshRecord{})
	if res.Error != nil {
		return 0, wrapDBErr(res.Error)
	}
	return res.RowsAffected, nil
}

func toRow(rec session.Record) RefreshRecord {
	return RefreshRecord{
		Identity:    rec.Identity,
		Authority:   rec.Authority,
		RefreshHash: rec.RefreshHash,
		AccessHash:  rec.AccessHash,
		IssuedAt:    time.Unix(rec.IssuedAt, 0),
		ExpiresAt:   time.Unix(rec.ExpiresAt, 0),
	}
}

func fromRow(row RefreshRecord) session.Record {
	return session.Record{
		Identity:    row.Identity,
		Authority:   row.Authority,
		RefreshHash: row.RefreshHash,
		AccessHash:  row.AccessHash,
		IssuedAt:    row.IssuedAt.Unix(),
		ExpiresAt:   row.ExpiresAt.Unix(),
	}
}

func wrapDBErr(err error) error {
	return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
