package governance

import "time"

type RiskTier string

const (
	RiskCritical       RiskTier = "critical"
	RiskHigh           RiskTier = "high"
	RiskHighGovernance RiskTier = "high-governance"
	RiskMediumHigh     RiskTier = "medium-high"
	RiskMedium         RiskTier = "medium"
	RiskLow            RiskTier = "low"
	RiskVeryLow        RiskTier = "very-low"
)

// DefaultThresholdPct applies to categories the resolver does not know.
const DefaultThresholdPct uint8 = 75

type Threshold struct {
	Pct  uint8
	Tier RiskTier
}

// ResolveThreshold returns the Yes percentage a category needs to pass.
func ResolveThreshold(c OperationCategory) Threshold {
	pct := thresholdPct(c)
	return Threshold{Pct: pct, Tier: TierForPct(pct)}
}

func thresholdPct(c OperationCategory) uint8 {
	switch c {
	case CategorySystemUpgrade, CategorySystemRestore, CategorySetDisasterRecovery, CategoryManageSystemInfo:
		return 90
	case CategoryTransfer, CategoryAddAccount, CategoryEditAccount:
		return 75
	case CategoryEditPermission, CategoryAddRequestPolicy, CategoryEditRequestPolicy, CategoryRemoveRequestPolicy:
		return 70
	case CategoryCreateExternalCanister, CategoryConfigureExternalCanister, CategoryChangeExternalCanister,
		CategoryCallExternalCanister, CategoryFundExternalCanister, CategoryMonitorExternalCanister,
		CategorySnapshotExternalCanister, CategoryRestoreExternalCanister, CategoryPruneExternalCanister,
		CategoryAddNamedRule, CategoryEditNamedRule, CategoryRemoveNamedRule:
		return 60
	case CategoryAddUser, CategoryEditUser, CategoryRemoveUser,
		CategoryAddUserGroup, CategoryEditUserGroup, CategoryRemoveUserGroup:
		return 50
	case CategoryAddAsset, CategoryEditAsset, CategoryRemoveAsset:
		return 40
	case CategoryAddAddressBookEntry, CategoryEditAddressBookEntry, CategoryRemoveAddressBookEntry:
		return 30
	default:
		return DefaultThresholdPct
	}
}

// TierForPct derives the display label from a threshold.
func TierForPct(pct uint8) RiskTier {
	switch {
	case pct >= 90:
		return RiskCritical
	case pct >= 75:
		return RiskHigh
	case pct >= 70:
		return RiskHighGovernance
	case pct >= 60:
		return RiskMediumHigh
	case pct >= 50:
		return RiskMedium
	case pct >= 40:
		return RiskLow
	default:
		return RiskVeryLow
	}
}

// VotingDuration is used for expires_at when the request carries no expiration.
func VotingDuration(c OperationCategory) time.Duration {
	switch c {
	case CategorySystemUpgrade, CategorySystemRestore:
		return 72 * time.Hour
	case CategoryTransfer, CategoryAddAccount, CategoryEditAccount:
		return 48 * time.Hour
	default:
		return 24 * time.Hour
	}
}
