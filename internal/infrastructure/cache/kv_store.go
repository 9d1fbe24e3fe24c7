package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"govsync/internal/errs"
	"govsync/internal/infrastructure/persistence/sqlite/model"
	"govsync/internal/ports"
)

// KVStore keeps reconciler bookkeeping in the governance_kv table.
// A ttl of zero stores the key without expiry.
type KVStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ ports.Cache = (*KVStore)(nil)

func NewKVStore(db *gorm.DB) *KVStore {
	return &KVStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func checkKey(ctx context.Context, key string) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(err, "check context")
	}
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", errors.New("key is required")
	}
	return trimmed, nil
}

func (c *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return "", false, err
	}

	var row model.GovernanceKV
	if err := c.db.WithContext(ctx).Where("key = ?", trimmedKey).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errs.Wrap(err, "query kv by key")
	}
	if row.ExpiresAt != nil && !c.now().Before(*row.ExpiresAt) {
		return "", false, nil
	}
	return row.Value, true, nil
}

func (c *KVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}

	now := c.now()
	row := model.GovernanceKV{
		Key:       trimmedKey,
		Value:     value,
		UpdatedAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		row.ExpiresAt = &expires
	}

	if err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      row.Value,
			"expires_at": row.ExpiresAt,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert kv key")
	}
	return nil
}

func (c *KVStore) Delete(ctx context.Context, key string) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}

	if err := c.db.WithContext(ctx).Where("key = ?", trimmedKey).Delete(&model.GovernanceKV{}).Error; err != nil {
		return errs.Wrap(err, "delete kv key")
	}
	return nil
}
