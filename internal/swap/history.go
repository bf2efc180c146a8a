package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aidin1998/swaptrade/pkg/models"
)

// HistoryStore persists swap rows, batches and the status audit trail
type HistoryStore interface {
	Create(ctx context.Context, rows ...*models.SwapHistory) error
	GetByID(ctx context.Context, id string) (*models.SwapHistory, error)
	// GetForUpdate locks the row; only meaningful on a transaction-bound store.
	GetForUpdate(ctx context.Context, id string) (*models.SwapHistory, error)
	ListByUser(ctx context.Context, userID string, filter HistoryFilter, page Page) ([]models.SwapHistory, int64, error)
	ListByStatus(ctx context.Context, statuses ...models.SwapStatus) ([]models.SwapHistory, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.SwapHistory, error)
	// Transition moves a row from one of from to to, applying updates and
	// writing an audit entry. It reports false when the row was not in from.
	Transition(ctx context.Context, id string, from []models.SwapStatus, to models.SwapStatus, reason string, updates map[string]interface{}) (bool, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
	AuditTrail(ctx context.Context, swapID string) ([]models.SwapAuditEntry, error)

	CreateBatch(ctx context.Context, batch *models.BatchJob) error
	GetBatch(ctx context.Context, id string) (*models.BatchJob, error)
	UpdateBatch(ctx context.Context, id string, updates map[string]interface{}) error
	ListOpenBatches(ctx context.Context) ([]models.BatchJob, error)

	WithTx(tx *gorm.DB) HistoryStore
}

// GormHistoryStore is the gorm implementation of HistoryStore
type GormHistoryStore struct {
	db *gorm.DB
}

// NewGormHistoryStore creates a store over db
func NewGormHistoryStore(db *gorm.DB) *GormHistoryStore {
	return &GormHistoryStore{db: db}
}

func (s *GormHistoryStore) WithTx(tx *gorm.DB) HistoryStore {
	return &GormHistoryStore{db: tx}
}

func (s *GormHistoryStore) Create(ctx context.Context, rows ...*models.SwapHistory) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(rows).Error; err != nil {
		return fmt.Errorf("failed to create swap history: %w", err)
	}
	return nil
}

func (s *GormHistoryStore) GetByID(ctx context.Context, id string) (*models.SwapHistory, error) {
	return s.get(s.db.WithContext(ctx), id)
}

func (s *GormHistoryStore) GetForUpdate(ctx context.Context, id string) (*models.SwapHistory, error) {
	return s.get(s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (s *GormHistoryStore) get(db *gorm.DB, id string) (*models.SwapHistory, error) {
	var row models.SwapHistory
	err := db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewSwapError(CodeNotFound, fmt.Sprintf("swap %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}
	return &row, nil
}

func (s *GormHistoryStore) ListByUser(ctx context.Context, userID string, filter HistoryFilter, page Page) ([]models.SwapHistory, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.SwapHistory{}).Where("user_id = ?", userID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.FromAsset != "" {
		query = query.Where("from_asset = ?", filter.FromAsset)
	}
	if filter.ToAsset != "" {
		query = query.Where("to_asset = ?", filter.ToAsset)
	}
	if filter.BatchID != "" {
		query = query.Where("batch_id = ?", filter.BatchID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count swaps: %w", err)
	}

	var rows []models.SwapHistory
	if err := query.Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).Offset(page.Offset).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list swaps: %w", err)
	}
	return rows, total, nil
}

func (s *GormHistoryStore) ListByStatus(ctx context.Context, statuses ...models.SwapStatus) ([]models.SwapHistory, error) {
	var rows []models.SwapHistory
	if err := s.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list swaps by status: %w", err)
	}
	return rows, nil
}

func (s *GormHistoryStore) ListByBatch(ctx context.Context, batchID string) ([]models.SwapHistory, error) {
	var rows []models.SwapHistory
	if err := s.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("leg_index ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list batch members: %w", err)
	}
	return rows, nil
}

func (s *GormHistoryStore) Transition(ctx context.Context, id string, from []models.SwapStatus, to models.SwapStatus, reason string, updates map[string]interface{}) (bool, error) {
	moved := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.SwapHistory
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "status").
			Where("id = ?", id).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewSwapError(CodeNotFound, fmt.Sprintf("swap %s not found", id))
		}
		if err != nil {
			return fmt.Errorf("failed to lock swap: %w", err)
		}

		if !containsStatus(from, row.Status) || !models.CanTransition(row.Status, to) {
			return nil
		}

		now := time.Now()
		fields := make(map[string]interface{}, len(updates)+2)
		for k, v := range updates {
			fields[k] = v
		}
		fields["status"] = to
		fields["updated_at"] = now

		res := tx.Model(&models.SwapHistory{}).
			Where("id = ? AND status = ?", id, row.Status).
			Updates(fields)
		if res.Error != nil {
			return fmt.Errorf("failed to update swap status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		audit := models.SwapAuditEntry{
			SwapID:     id,
			FromStatus: row.Status,
			ToStatus:   to,
			Reason:     reason,
			CreatedAt:  now,
		}
		if err := tx.Create(&audit).Error; err != nil {
			return fmt.Errorf("failed to write audit entry: %w", err)
		}
		moved = true
		return nil
	})
	return moved, err
}

func (s *GormHistoryStore) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	fields := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		fields[k] = v
	}
	fields["updated_at"] = time.Now()
	if err := s.db.WithContext(ctx).Model(&models.SwapHistory{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("failed to update swap: %w", err)
	}
	return nil
}

func (s *GormHistoryStore) AuditTrail(ctx context.Context, swapID string) ([]models.SwapAuditEntry, error) {
	var entries []models.SwapAuditEntry
	if err := s.db.WithContext(ctx).
		Where("swap_id = ?", swapID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to get audit trail: %w", err)
	}
	return entries, nil
}

func (s *GormHistoryStore) CreateBatch(ctx context.Context, batch *models.BatchJob) error {
	if err := s.db.WithContext(ctx).Create(batch).Error; err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

func (s *GormHistoryStore) GetBatch(ctx context.Context, id string) (*models.BatchJob, error) {
	var batch models.BatchJob
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewSwapError(CodeNotFound, fmt.Sprintf("batch %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &batch, nil
}

func (s *GormHistoryStore) UpdateBatch(ctx context.Context, id string, updates map[string]interface{}) error {
	fields := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		fields[k] = v
	}
	fields["updated_at"] = time.Now()
	if err := s.db.WithContext(ctx).Model(&models.BatchJob{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	return nil
}

func (s *GormHistoryStore) ListOpenBatches(ctx context.Context) ([]models.BatchJob, error) {
	var batches []models.BatchJob
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []models.BatchStatus{models.BatchStatusPending, models.BatchStatusProcessing}).
		Order("created_at ASC").
		Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("failed to list open batches: %w", err)
	}
	return batches, nil
}

func containsStatus(list []models.SwapStatus, s models.SwapStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
