package model

import "time"

type GovernanceKV struct {
	Key       string     `gorm:"column:key;type:text;primaryKey"`
	Value     string     `gorm:"column:value;type:text;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
}

func (GovernanceKV) TableName() string {
	return "governance_kv"
}

// All lists every model for schema migration.
func All() []any {
	return []any{&Proposal{}, &VoteRecord{}, &GovernanceKV{}}
}
