package model

import "time"

type VoteRecord struct {
	VoteID         string    `gorm:"column:vote_id;type:text;primaryKey"`
	ProposalID     string    `gorm:"column:proposal_id;type:text;not null;uniqueIndex:ux_votes_proposal_principal,priority:1"`
	VoterPrincipal string    `gorm:"column:voter_principal;type:text;not null;uniqueIndex:ux_votes_proposal_principal,priority:2"`
	Choice         string    `gorm:"column:choice;type:text;not null"`
	Weight         int64     `gorm:"column:weight;not null"`
	CastAt         time.Time `gorm:"column:cast_at;not null"`
}

func (VoteRecord) TableName() string {
	return "vote_records"
}
