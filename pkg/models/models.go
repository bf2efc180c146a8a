package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SwapStatus is the lifecycle state of a swap history row
type SwapStatus string

const (
	SwapStatusPending    SwapStatus = "PENDING"
	SwapStatusProcessing SwapStatus = "PROCESSING"
	SwapStatusScheduled  SwapStatus = "SCHEDULED"
	SwapStatusSettled    SwapStatus = "SETTLED"
	SwapStatusFailed     SwapStatus = "FAILED"
	SwapStatusCancelled  SwapStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed from s
func (s SwapStatus) IsTerminal() bool {
	switch s {
	case SwapStatusSettled, SwapStatusFailed, SwapStatusCancelled:
		return true
	}
	return false
}

// Settleable reports whether a settlement may still be attempted in s.
// SCHEDULED is a retry sub-state of PROCESSING.
func (s SwapStatus) Settleable() bool {
	switch s {
	case SwapStatusPending, SwapStatusProcessing, SwapStatusScheduled:
		return true
	}
	return false
}

// allowedTransitions lists every legal status edge. PROCESSING -> PENDING is
// only taken by the boot-time requeue.
var allowedTransitions = map[SwapStatus][]SwapStatus{
	SwapStatusPending:    {SwapStatusProcessing, SwapStatusCancelled, SwapStatusFailed},
	SwapStatusProcessing: {SwapStatusSettled, SwapStatusFailed, SwapStatusScheduled, SwapStatusPending},
	SwapStatusScheduled:  {SwapStatusProcessing, SwapStatusFailed},
}

// CanTransition reports whether from -> to is a legal edge
func CanTransition(from, to SwapStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SwapType distinguishes how a swap was submitted
type SwapType string

const (
	SwapTypeSingle   SwapType = "SINGLE"
	SwapTypeMultiLeg SwapType = "MULTI_LEG"
	SwapTypeBatch    SwapType = "BATCH"
)

// SwapHistory is the durable record of one swap id
type SwapHistory struct {
	ID                string              `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID            string              `json:"userId" gorm:"type:varchar(64);index;not null"`
	FromAsset         string              `json:"fromAsset" gorm:"type:varchar(16);not null"`
	ToAsset           string              `json:"toAsset" gorm:"type:varchar(16);not null"`
	AmountIn          decimal.Decimal     `json:"amountIn" gorm:"type:decimal(36,18);not null"`
	AmountOut         decimal.NullDecimal `json:"amountOut" gorm:"type:decimal(36,18)"`
	QuotedRate        decimal.Decimal     `json:"quotedRate" gorm:"type:decimal(36,18);not null"`
	ExecutedRate      decimal.NullDecimal `json:"executedRate" gorm:"type:decimal(36,18)"`
	PriceImpact       decimal.Decimal     `json:"priceImpact" gorm:"type:decimal(36,18)"`
	SlippageTolerance decimal.Decimal     `json:"slippageTolerance" gorm:"type:decimal(36,18)"`
	ActualSlippage    decimal.NullDecimal `json:"actualSlippage" gorm:"type:decimal(36,18)"`
	Status            SwapStatus          `json:"status" gorm:"type:varchar(16);index;not null"`
	SwapType          SwapType            `json:"swapType" gorm:"type:varchar(16);not null"`
	Route             []string            `json:"route" gorm:"serializer:json"`
	RetryCount        int                 `json:"retryCount" gorm:"default:0"`
	ErrorMessage      string              `json:"errorMessage,omitempty" gorm:"type:text"`
	JobID             string              `json:"jobId,omitempty" gorm:"type:varchar(64)"`
	BatchID           *string             `json:"batchId,omitempty" gorm:"type:varchar(36);index"`
	SagaID            *string             `json:"sagaId,omitempty" gorm:"type:varchar(36);index"`
	LegIndex          int                 `json:"legIndex" gorm:"default:0"`
	CreatedAt         time.Time           `json:"createdAt" gorm:"index"`
	UpdatedAt         time.Time           `json:"updatedAt"`
	ExecutedAt        *time.Time          `json:"executedAt,omitempty"`
	SettledAt         *time.Time          `json:"settledAt,omitempty"`
}

// Applied reports whether the balance mutation for this swap has been committed
func (h *SwapHistory) Applied() bool { return h.ExecutedAt != nil }

// SwapAuditEntry records one status transition of a swap
type SwapAuditEntry struct {
	ID         uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	SwapID     string     `json:"swapId" gorm:"type:varchar(36);index;not null"`
	FromStatus SwapStatus `json:"fromStatus" gorm:"type:varchar(16)"`
	ToStatus   SwapStatus `json:"toStatus" gorm:"type:varchar(16)"`
	Reason     string     `json:"reason" gorm:"type:text"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Balance is a user's holding of one asset. Amount never goes below zero.
type Balance struct {
	UserID    string          `json:"userId" gorm:"primaryKey;type:varchar(64)"`
	Asset     string          `json:"asset" gorm:"primaryKey;type:varchar(16)"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:decimal(36,18);not null"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// LedgerEntryKind classifies a balance movement
type LedgerEntryKind string

const (
	LedgerDebit              LedgerEntryKind = "debit"
	LedgerCredit             LedgerEntryKind = "credit"
	LedgerCompensationDebit  LedgerEntryKind = "compensation_debit"
	LedgerCompensationCredit LedgerEntryKind = "compensation_credit"
	LedgerDeposit            LedgerEntryKind = "deposit"
)

// LedgerEntry is an immutable record of one balance movement
type LedgerEntry struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID       string          `json:"userId" gorm:"type:varchar(64);index;not null"`
	Asset        string          `json:"asset" gorm:"type:varchar(16);not null"`
	Delta        decimal.Decimal `json:"delta" gorm:"type:decimal(36,18);not null"`
	BalanceAfter decimal.Decimal `json:"balanceAfter" gorm:"type:decimal(36,18);not null"`
	Kind         LedgerEntryKind `json:"kind" gorm:"type:varchar(32);not null"`
	Reference    string          `json:"reference" gorm:"type:varchar(64);index"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// BatchStatus is the aggregate state of a batch
type BatchStatus string

const (
	BatchStatusPending            BatchStatus = "PENDING"
	BatchStatusProcessing         BatchStatus = "PROCESSING"
	BatchStatusSettled            BatchStatus = "SETTLED"
	BatchStatusFailed             BatchStatus = "FAILED"
	BatchStatusPartial            BatchStatus = "PARTIAL"
	BatchStatusCompensationFailed BatchStatus = "COMPENSATION_FAILED"
)

// IsFinal reports whether the batch will not change any more
func (s BatchStatus) IsFinal() bool {
	switch s {
	case BatchStatusSettled, BatchStatusFailed, BatchStatusPartial, BatchStatusCompensationFailed:
		return true
	}
	return false
}

// BatchJob groups the swaps submitted together through a batch request
type BatchJob struct {
	ID           string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID       string      `json:"userId" gorm:"type:varchar(64);index;not null"`
	Atomic       bool        `json:"atomic"`
	SwapIDs      []string    `json:"swapIds" gorm:"serializer:json"`
	Total        int         `json:"total"`
	SettledCount int         `json:"settledCount"`
	FailedCount  int         `json:"failedCount"`
	Status       BatchStatus `json:"status" gorm:"type:varchar(24);index;not null"`
	RetryCount   int         `json:"retryCount" gorm:"default:0"`
	JobID        string      `json:"jobId" gorm:"type:varchar(64)"`
	ErrorMessage string      `json:"errorMessage,omitempty" gorm:"type:text"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	FinalizedAt  *time.Time  `json:"finalizedAt,omitempty"`
}

// AllModels returns every persisted model for AutoMigrate
func AllModels() []interface{} {
	return []interface{}{
		&Balance{},
		&LedgerEntry{},
		&SwapHistory{},
		&SwapAuditEntry{},
		&BatchJob{},
	}
}
