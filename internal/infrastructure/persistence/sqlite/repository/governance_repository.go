package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"govsync/internal/domain/governance"
	"govsync/internal/errs"
	"govsync/internal/infrastructure/persistence/sqlite/model"
	"govsync/internal/ports"
)

type GovernanceRepository struct {
	db *gorm.DB
}

var _ ports.GovernanceRepository = (*GovernanceRepository)(nil)

func NewGovernanceRepository(db *gorm.DB) *GovernanceRepository {
	return &GovernanceRepository{db: db}
}

func (r *GovernanceRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

// inTx runs fn on the context transaction, opening one when ctx has none.
func (r *GovernanceRepository) inTx(ctx context.Context, fn func(ctx context.Context, db *gorm.DB) error) error {
	if ports.InTx(ctx) {
		db, err := r.dbFromContext(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, db)
	}

	if ctx == nil {
		return errors.New("context is required")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx), tx)
	})
}

func (r *GovernanceRepository) GetProposalByKey(ctx context.Context, scopeID string, requestID string) (governance.Proposal, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return governance.Proposal{}, err
	}
	return getProposal(db.Where("scope_id = ? AND request_id = ?", scopeID, requestID))
}

func (r *GovernanceRepository) GetProposalByID(ctx context.Context, proposalID string) (governance.Proposal, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return governance.Proposal{}, err
	}
	return getProposal(db.Where("proposal_id = ?", proposalID))
}

func (r *GovernanceRepository) ListProposals(ctx context.Context, filter ports.ProposalFilter) ([]governance.Proposal, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Proposal{})
	if scope := strings.TrimSpace(filter.ScopeID); scope != "" {
		query = query.Where("scope_id = ?", scope)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.SignalState != "" {
		query = query.Where("signal_state = ?", string(filter.SignalState))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []model.Proposal
	if err := query.Order("created_at asc").Order("proposal_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query proposals")
	}

	items := make([]governance.Proposal, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapProposal(row))
	}
	return items, nil
}

func (r *GovernanceRepository) GetVote(ctx context.Context, proposalID string, principal string) (governance.VoteRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return governance.VoteRecord{}, err
	}
	return getVote(db, proposalID, principal)
}

func (r *GovernanceRepository) InsertProposalIfAbsent(ctx context.Context, p governance.Proposal) (governance.Proposal, bool, error) {
	if p.TotalVotingPower > governance.MaxWeight {
		return governance.Proposal{}, false, governance.ErrInvalidWeight
	}

	var stored governance.Proposal
	inserted := false
	err := r.inTx(ctx, func(_ context.Context, db *gorm.DB) error {
		row := model.Proposal{
			ProposalID:       p.ID,
			ScopeID:          p.ScopeID,
			RequestID:        p.RequestID,
			OperationType:    p.OperationType,
			Category:         string(p.Category),
			ThresholdPct:     int(p.ThresholdPct),
			TotalVotingPower: int64(p.TotalVotingPower),
			YesVotes:         0,
			NoVotes:          0,
			VoterCount:       0,
			Status:           string(governance.ProposalActive),
			SignalState:      string(governance.SignalNone),
			CreatedAt:        p.CreatedAt.UTC(),
			ExpiresAt:        p.ExpiresAt.UTC(),
			UpdatedAt:        p.CreatedAt.UTC(),
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope_id"}, {Name: "request_id"}},
			DoNothing: true,
		}).Create(&row)
		if result.Error != nil {
			return errs.Wrap(result.Error, "insert proposal")
		}
		inserted = result.RowsAffected > 0

		got, err := getProposal(db.Where("scope_id = ? AND request_id = ?", p.ScopeID, p.RequestID))
		if err != nil {
			return err
		}
		stored = got
		return nil
	})
	if err != nil {
		return governance.Proposal{}, false, err
	}
	return stored, inserted, nil
}

func (r *GovernanceRepository) CastVote(ctx context.Context, in ports.VoteCast) (governance.VoteRecord, governance.Proposal, error) {
	var (
		vote    governance.VoteRecord
		updated governance.Proposal
	)
	err := r.inTx(ctx, func(_ context.Context, db *gorm.DB) error {
		p, err := getProposal(db.Where("proposal_id = ?", in.ProposalID))
		if err != nil {
			return err
		}
		if err := governance.CheckVotePreconditions(p, in.CastAt, in.Weight); err != nil {
			return err
		}
		yes, no, err := governance.AddTally(p, in.Choice, in.Weight)
		if err != nil {
			return err
		}

		row := model.VoteRecord{
			VoteID:         in.VoteID,
			ProposalID:     in.ProposalID,
			VoterPrincipal: in.Principal,
			Choice:         string(in.Choice),
			Weight:         int64(in.Weight),
			CastAt:         in.CastAt.UTC(),
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "proposal_id"}, {Name: "voter_principal"}},
			DoNothing: true,
		}).Create(&row)
		if result.Error != nil {
			return errs.Wrap(result.Error, "insert vote record")
		}
		if result.RowsAffected == 0 {
			existing, err := getVote(db, in.ProposalID, in.Principal)
			if err != nil {
				return errs.Wrap(err, "load existing vote")
			}
			return &governance.AlreadyVotedError{Existing: existing}
		}

		column := "yes_votes"
		if in.Choice == governance.VoteNo {
			column = "no_votes"
		}
		tally := db.Model(&model.Proposal{}).
			Where("proposal_id = ? AND status = ?", in.ProposalID, string(governance.ProposalActive)).
			Updates(map[string]any{
				column:        gorm.Expr(column+" + ?", int64(in.Weight)),
				"voter_count": gorm.Expr("voter_count + 1"),
				"updated_at":  in.CastAt.UTC(),
			})
		if tally.Error != nil {
			return errs.Wrap(tally.Error, "increment tally")
		}
		if tally.RowsAffected != 1 {
			return governance.ErrProposalNotActive
		}

		vote = mapVote(row)
		updated = p
		updated.YesVotes = yes
		updated.NoVotes = no
		updated.VoterCount = p.VoterCount + 1
		updated.UpdatedAt = in.CastAt.UTC()
		return nil
	})
	if err != nil {
		return governance.VoteRecord{}, governance.Proposal{}, err
	}
	return vote, updated, nil
}

func (r *GovernanceRepository) TransitionStatus(
	ctx context.Context,
	proposalID string,
	from governance.ProposalStatus,
	to governance.ProposalStatus,
	signal governance.SignalState,
	at time.Time,
) (bool, error) {
	if !governance.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", governance.ErrInvalidTransition, from, to)
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	updates := map[string]any{
		"status":     string(to),
		"updated_at": at.UTC(),
	}
	if signal != "" {
		updates["signal_state"] = string(signal)
	}

	result := db.Model(&model.Proposal{}).
		Where("proposal_id = ? AND status = ?", proposalID, string(from)).
		Updates(updates)
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "update proposal status")
	}
	return result.RowsAffected == 1, nil
}

func (r *GovernanceRepository) ClaimSignal(ctx context.Context, proposalID string, staleBefore time.Time, at time.Time) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.Proposal{}).
		Where("proposal_id = ? AND status IN ?", proposalID, []string{string(governance.ProposalPassed), string(governance.ProposalRejected)}).
		Where(
			db.Where("signal_state = ?", string(governance.SignalPending)).
				Or("signal_state = ? AND updated_at < ?", string(governance.SignalSending), staleBefore.UTC()),
		).
		Updates(map[string]any{
			"signal_state": string(governance.SignalSending),
			"updated_at":   at.UTC(),
		})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "claim signal")
	}
	return result.RowsAffected == 1, nil
}

func (r *GovernanceRepository) FinishSignal(ctx context.Context, proposalID string, outcome governance.SignalState, at time.Time) error {
	switch outcome {
	case governance.SignalSent, governance.SignalPending, governance.SignalFailed:
	default:
		return fmt.Errorf("invalid signal outcome %q", outcome)
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := db.Model(&model.Proposal{}).
		Where("proposal_id = ? AND signal_state = ?", proposalID, string(governance.SignalSending)).
		Updates(map[string]any{
			"signal_state": string(outcome),
			"updated_at":   at.UTC(),
		}).Error; err != nil {
		return errs.Wrap(err, "finish signal")
	}
	return nil
}

func getProposal(query *gorm.DB) (governance.Proposal, error) {
	var row model.Proposal
	if err := query.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return governance.Proposal{}, governance.ErrProposalNotFound
		}
		return governance.Proposal{}, errs.Wrap(err, "query proposal")
	}
	return mapProposal(row), nil
}

func getVote(db *gorm.DB, proposalID string, principal string) (governance.VoteRecord, error) {
	var row model.VoteRecord
	if err := db.Where("proposal_id = ? AND voter_principal = ?", proposalID, principal).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return governance.VoteRecord{}, ports.ErrVoteNotFound
		}
		return governance.VoteRecord{}, errs.Wrap(err, "query vote")
	}
	return mapVote(row), nil
}

func mapProposal(row model.Proposal) governance.Proposal {
	return governance.Proposal{
		ID:               row.ProposalID,
		ScopeID:          row.ScopeID,
		RequestID:        row.RequestID,
		OperationType:    row.OperationType,
		Category:         governance.OperationCategory(row.Category),
		ThresholdPct:     uint8(row.ThresholdPct),
		TotalVotingPower: uint64(row.TotalVotingPower),
		YesVotes:         uint64(row.YesVotes),
		NoVotes:          uint64(row.NoVotes),
		VoterCount:       uint64(row.VoterCount),
		Status:           governance.ProposalStatus(row.Status),
		SignalState:      governance.SignalState(row.SignalState),
		CreatedAt:        row.CreatedAt.UTC(),
		ExpiresAt:        row.ExpiresAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
}

func mapVote(row model.VoteRecord) governance.VoteRecord {
	return governance.VoteRecord{
		ID:         row.VoteID,
		ProposalID: row.ProposalID,
		Principal:  row.VoterPrincipal,
		Choice:     governance.VoteChoice(row.Choice),
		Weight:     uint64(row.Weight),
		CastAt:     row.CastAt.UTC(),
	}
}
