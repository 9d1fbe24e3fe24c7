package model

import "time"

type Proposal struct {
	ProposalID       string    `gorm:"column:proposal_id;type:text;primaryKey"`
	ScopeID          string    `gorm:"column:scope_id;type:text;not null;uniqueIndex:ux_proposals_scope_request,priority:1"`
	RequestID        string    `gorm:"column:request_id;type:text;not null;uniqueIndex:ux_proposals_scope_request,priority:2"`
	OperationType    string    `gorm:"column:operation_type;type:text;not null"`
	Category         string    `gorm:"column:category;type:text;not null"`
	ThresholdPct     int       `gorm:"column:threshold_pct;not null"`
	TotalVotingPower int64     `gorm:"column:total_voting_power;not null"`
	YesVotes         int64     `gorm:"column:yes_votes;not null;default:0"`
	NoVotes          int64     `gorm:"column:no_votes;not null;default:0"`
	VoterCount       int64     `gorm:"column:voter_count;not null;default:0"`
	Status           string    `gorm:"column:status;type:text;not null;index"`
	SignalState      string    `gorm:"column:signal_state;type:text;not null;default:'none'"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
	ExpiresAt        time.Time `gorm:"column:expires_at;not null;index"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null"`
}

func (Proposal) TableName() string {
	return "proposals"
}
