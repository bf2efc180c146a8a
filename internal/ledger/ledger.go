// Package ledger owns per-user asset balances. Every mutation happens inside a
// database transaction that locks the touched balance rows in a fixed order,
// and every movement leaves an immutable ledger entry.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aidin1998/swaptrade/pkg/models"
)

// ErrInsufficientFunds is returned when a movement would drive a balance below zero
var ErrInsufficientFunds = errors.New("insufficient funds")

// Movement is a signed change to one user's asset balance
type Movement struct {
	UserID string
	Asset  string
	Delta  decimal.Decimal
	Kind   models.LedgerEntryKind
}

// Debit builds a negative movement
func Debit(userID, asset string, amount decimal.Decimal, kind models.LedgerEntryKind) Movement {
	return Movement{UserID: userID, Asset: asset, Delta: amount.Neg(), Kind: kind}
}

// Credit builds a positive movement
func Credit(userID, asset string, amount decimal.Decimal, kind models.LedgerEntryKind) Movement {
	return Movement{UserID: userID, Asset: asset, Delta: amount, Kind: kind}
}

type balanceKey struct {
	userID string
	asset  string
}

// Ledger is the balance store
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New creates a ledger over db
func New(db *gorm.DB, logger *zap.Logger) *Ledger {
	return &Ledger{db: db, logger: logger.Named("ledger")}
}

// Transact runs fn inside one database transaction. Callers must issue every
// query through tx.
func (l *Ledger) Transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return l.db.WithContext(ctx).Transaction(fn)
}

// Apply executes movements inside tx. All debits are validated against the
// locked balances before anything is written, so a rejected debit never
// leaves a partial credit behind.
func (l *Ledger) Apply(ctx context.Context, tx *gorm.DB, reference string, movements ...Movement) ([]models.LedgerEntry, error) {
	if len(movements) == 0 {
		return nil, nil
	}
	tx = tx.WithContext(ctx)

	keys := make([]balanceKey, 0, len(movements))
	seen := make(map[balanceKey]bool, len(movements))
	for _, m := range movements {
		k := balanceKey{userID: m.UserID, asset: m.Asset}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	// Lock rows in deterministic order to prevent deadlocks
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].userID != keys[j].userID {
			return keys[i].userID < keys[j].userID
		}
		return keys[i].asset < keys[j].asset
	})

	now := time.Now()
	balances := make(map[balanceKey]decimal.Decimal, len(keys))
	for _, k := range keys {
		// Make sure the row exists so it can be locked
		seed := models.Balance{UserID: k.userID, Asset: k.asset, Amount: decimal.Zero, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return nil, fmt.Errorf("failed to initialise balance %s/%s: %w", k.userID, k.asset, err)
		}

		var bal models.Balance
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND asset = ?", k.userID, k.asset).
			First(&bal).Error; err != nil {
			return nil, fmt.Errorf("failed to lock balance %s/%s: %w", k.userID, k.asset, err)
		}
		balances[k] = bal.Amount
	}

	// Verify every resulting balance before writing
	projected := make(map[balanceKey]decimal.Decimal, len(keys))
	for k, v := range balances {
		projected[k] = v
	}
	for _, m := range movements {
		k := balanceKey{userID: m.UserID, asset: m.Asset}
		projected[k] = projected[k].Add(m.Delta)
		if projected[k].IsNegative() {
			return nil, fmt.Errorf("%w: %s available=%s, required=%s",
				ErrInsufficientFunds, m.Asset, balances[k].String(), m.Delta.Neg().String())
		}
	}

	entries := make([]models.LedgerEntry, 0, len(movements))
	running := balances
	for _, m := range movements {
		k := balanceKey{userID: m.UserID, asset: m.Asset}
		running[k] = running[k].Add(m.Delta)
		entries = append(entries, models.LedgerEntry{
			ID:           uuid.New().String(),
			UserID:       m.UserID,
			Asset:        m.Asset,
			Delta:        m.Delta,
			BalanceAfter: running[k],
			Kind:         m.Kind,
			Reference:    reference,
			CreatedAt:    now,
		})
	}

	for _, k := range keys {
		err := tx.Model(&models.Balance{}).
			Where("user_id = ? AND asset = ?", k.userID, k.asset).
			UpdateColumns(map[string]interface{}{
				"amount":     running[k],
				"updated_at": now,
			}).Error
		if err != nil {
			return nil, fmt.Errorf("failed to update balance %s/%s: %w", k.userID, k.asset, err)
		}
	}

	if err := tx.Create(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to write ledger entries: %w", err)
	}

	return entries, nil
}

// Deposit credits amount to a user's balance outside of any swap
func (l *Ledger) Deposit(ctx context.Context, userID, asset string, amount decimal.Decimal, reference string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("deposit amount must be positive")
	}
	err := l.Transact(ctx, func(tx *gorm.DB) error {
		_, err := l.Apply(ctx, tx, reference, Credit(userID, asset, amount, models.LedgerDeposit))
		return err
	})
	if err != nil {
		return err
	}

	l.logger.Info("Deposit applied",
		zap.String("user_id", userID),
		zap.String("asset", asset),
		zap.String("amount", amount.String()))
	return nil
}

// GetBalance returns a user's balance of asset; a missing row is zero
func (l *Ledger) GetBalance(ctx context.Context, userID, asset string) (decimal.Decimal, error) {
	var bal models.Balance
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND asset = ?", userID, asset).
		First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return bal.Amount, nil
}

// GetBalances returns every balance row of a user
func (l *Ledger) GetBalances(ctx context.Context, userID string) ([]models.Balance, error) {
	var balances []models.Balance
	if err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("asset ASC").
		Find(&balances).Error; err != nil {
		return nil, fmt.Errorf("failed to get balances: %w", err)
	}
	return balances, nil
}

// Entries returns the ledger entries written under reference, oldest first
func (l *Ledger) Entries(ctx context.Context, reference string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := l.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	return entries, nil
}
