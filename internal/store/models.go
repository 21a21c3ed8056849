// Package store is the durable persistence layer: balance-change records,
// monitored accounts, and counterparty/token metadata, backed by PostgreSQL
// through GORM in the same idiom the teacher's MySQL recorder used —
// struct-tagged models, AutoMigrate, narrow insert/query methods.
package store

import "time"

// BalanceChangeRecord is the durable row for one BalanceChange. The unique
// index on (account_id, token_id, block_height) is what gives the gap
// filler its at-most-once insertion semantics under retry.
type BalanceChangeRecord struct {
	ID                uint64      `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID         string      `gorm:"column:account_id;not null;uniqueIndex:idx_balance_changes_chain,priority:1;index:idx_balance_changes_range,priority:1"`
	TokenID           string      `gorm:"column:token_id;not null;uniqueIndex:idx_balance_changes_chain,priority:2"`
	BlockHeight       uint64      `gorm:"column:block_height;not null;uniqueIndex:idx_balance_changes_chain,priority:3"`
	BlockTimestampNs  int64       `gorm:"column:block_timestamp_ns;not null"`
	BlockTime         time.Time   `gorm:"column:block_time;not null;index:idx_balance_changes_range,priority:2"`
	Amount            string      `gorm:"column:amount;type:varchar(80);not null;comment:signed decimal string"`
	BalanceBefore     string      `gorm:"column:balance_before;type:varchar(80);not null"`
	BalanceAfter      string      `gorm:"column:balance_after;type:varchar(80);not null"`
	TransactionHashes StringArray `gorm:"column:transaction_hashes;type:text[]"`
	ReceiptIDs        StringArray `gorm:"column:receipt_id;type:text[]"`
	SignerID          *string     `gorm:"column:signer_id"`
	ReceiverID        *string     `gorm:"column:receiver_id"`
	Counterparty      string      `gorm:"column:counterparty;not null"`
	CreatedAt         time.Time   `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the GORM table name.
func (BalanceChangeRecord) TableName() string { return "balance_changes" }

// Sentinel counterparty values. SNAPSHOT and UNKNOWN are written by the gap
// filler; NOT_REGISTERED is reserved for a case handled outside this core
// (an FT contract the account was never storage-registered with) and is
// excluded from user-visible exports alongside SNAPSHOT.
const (
	CounterpartySnapshot     = "SNAPSHOT"
	CounterpartyUnknown      = "UNKNOWN"
	CounterpartyNotRegistered = "NOT_REGISTERED"
)

// MonitoredAccountRecord is an account the monitor cycle tracks.
type MonitoredAccountRecord struct {
	AccountID    string     `gorm:"column:account_id;primaryKey"`
	Enabled      bool       `gorm:"column:enabled;not null;default:true"`
	LastSyncedAt *time.Time `gorm:"column:last_synced_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the GORM table name.
func (MonitoredAccountRecord) TableName() string { return "monitored_accounts" }

// CounterpartyRecord holds cached metadata for an FT contract (or other
// counterparty account), written exclusively by the metadata cache.
type CounterpartyRecord struct {
	AccountID      string    `gorm:"column:account_id;primaryKey"`
	AccountType    string    `gorm:"column:account_type;not null"`
	TokenSymbol    string    `gorm:"column:token_symbol"`
	TokenName      string    `gorm:"column:token_name"`
	TokenDecimals  uint8     `gorm:"column:token_decimals;not null"`
	TokenIcon      string    `gorm:"column:token_icon"`
	LastVerifiedAt time.Time `gorm:"column:last_verified_at;not null"`
}

// TableName pins the GORM table name.
func (CounterpartyRecord) TableName() string { return "counterparties" }

// AccountTypeFTToken is the only account_type this engine currently writes.
const AccountTypeFTToken = "ft_token"
