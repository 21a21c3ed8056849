package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store is the narrow persistence boundary the core mutates through:
// insert-or-skip balance changes, the account/token enumeration the monitor
// drives off of, and the counterparty upsert the metadata cache writes
// through.
type Store struct {
	db *gorm.DB
}

// NewStore opens a PostgreSQL connection and migrates the schema.
func NewStore(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect to postgres: %w", err)
	}
	return NewStoreWithDB(db)
}

// NewStoreWithDB wraps an existing GORM connection (used by tests against a
// mocked driver) and migrates the schema.
func NewStoreWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&BalanceChangeRecord{}, &MonitoredAccountRecord{}, &CounterpartyRecord{}); err != nil {
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying GORM handle for callers that need raw queries
// (the gap detector's window-function query, notably).
func (s *Store) DB() *gorm.DB { return s.db }

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: get underlying db: %w", err)
	}
	return sqlDB.Close()
}

// InsertBalanceChange inserts rec, silently skipping on a
// (account_id, token_id, block_height) conflict. inserted reports whether a
// new row was actually written.
func (s *Store) InsertBalanceChange(ctx context.Context, rec *BalanceChangeRecord) (inserted bool, err error) {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "token_id"}, {Name: "block_height"}},
		DoNothing: true,
	}).Create(rec)
	if result.Error != nil {
		return false, fmt.Errorf("store: insert balance change: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// LatestBalanceChange returns the highest-block_height row for
// (accountID, tokenID), or nil if none exists.
func (s *Store) LatestBalanceChange(ctx context.Context, accountID, tokenID string) (*BalanceChangeRecord, error) {
	var rec BalanceChangeRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND token_id = ?", accountID, tokenID).
		Order("block_height DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest balance change: %w", err)
	}
	return &rec, nil
}

// EarliestBalanceChange returns the lowest-block_height row for
// (accountID, tokenID), or nil if none exists.
func (s *Store) EarliestBalanceChange(ctx context.Context, accountID, tokenID string) (*BalanceChangeRecord, error) {
	var rec BalanceChangeRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND token_id = ?", accountID, tokenID).
		Order("block_height ASC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: earliest balance change: %w", err)
	}
	return &rec, nil
}

// HasAnyBalanceChange reports whether any row exists for (accountID, tokenID).
func (s *Store) HasAnyBalanceChange(ctx context.Context, accountID, tokenID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&BalanceChangeRecord{}).
		Where("account_id = ? AND token_id = ?", accountID, tokenID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: count balance changes: %w", err)
	}
	return count > 0, nil
}

// DistinctTokenIDsForAccount lists every token_id currently present in
// balance_changes for accountID.
func (s *Store) DistinctTokenIDsForAccount(ctx context.Context, accountID string) ([]string, error) {
	var tokenIDs []string
	err := s.db.WithContext(ctx).Model(&BalanceChangeRecord{}).
		Where("account_id = ?", accountID).
		Distinct("token_id").
		Pluck("token_id", &tokenIDs).Error
	if err != nil {
		return nil, fmt.Errorf("store: distinct token ids: %w", err)
	}
	return tokenIDs, nil
}

// ListBalanceChanges returns up to limit rows for (accountID, tokenID) in
// ascending block-height order, the read surface the manual-inspection HTTP
// adapter drives off of.
func (s *Store) ListBalanceChanges(ctx context.Context, accountID, tokenID string, limit int) ([]BalanceChangeRecord, error) {
	var recs []BalanceChangeRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND token_id = ?", accountID, tokenID).
		Order("block_height ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("store: list balance changes for %s/%s: %w", accountID, tokenID, err)
	}
	return recs, nil
}

// EnabledAccounts returns every enabled MonitoredAccount, least-recently
// synced first (NULL last_synced_at sorts first).
func (s *Store) EnabledAccounts(ctx context.Context) ([]MonitoredAccountRecord, error) {
	var accounts []MonitoredAccountRecord
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("last_synced_at ASC NULLS FIRST").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("store: enabled accounts: %w", err)
	}
	return accounts, nil
}

// StampSynced updates last_synced_at for accountID after a cycle processes
// at least one token.
func (s *Store) StampSynced(ctx context.Context, accountID string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&MonitoredAccountRecord{}).
		Where("account_id = ?", accountID).
		Update("last_synced_at", at).Error
	if err != nil {
		return fmt.Errorf("store: stamp synced for %s: %w", accountID, err)
	}
	return nil
}

// CounterpartyByAccountID returns the cached metadata for accountID, or nil
// if it has never been verified.
func (s *Store) CounterpartyByAccountID(ctx context.Context, accountID string) (*CounterpartyRecord, error) {
	var rec CounterpartyRecord
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: counterparty lookup for %s: %w", accountID, err)
	}
	return &rec, nil
}

// UpsertCounterparty inserts or overwrites the cached metadata for
// rec.AccountID.
func (s *Store) UpsertCounterparty(ctx context.Context, rec *CounterpartyRecord) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"account_type", "token_symbol", "token_name", "token_decimals", "token_icon", "last_verified_at",
		}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("store: upsert counterparty %s: %w", rec.AccountID, err)
	}
	return nil
}
