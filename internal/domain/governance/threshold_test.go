package governance

import (
	"testing"
	"time"
)

func TestResolveThreshold(t *testing.T) {
	cases := []struct {
		category OperationCategory
		pct      uint8
		tier     RiskTier
	}{
		{CategorySystemUpgrade, 90, RiskCritical},
		{CategorySetDisasterRecovery, 90, RiskCritical},
		{CategoryManageSystemInfo, 90, RiskCritical},
		{CategoryTransfer, 75, RiskHigh},
		{CategoryEditAccount, 75, RiskHigh},
		{CategoryEditPermission, 70, RiskHighGovernance},
		{CategoryRemoveRequestPolicy, 70, RiskHighGovernance},
		{CategoryCallExternalCanister, 60, RiskMediumHigh},
		{CategoryPruneExternalCanister, 60, RiskMediumHigh},
		{CategoryEditNamedRule, 60, RiskMediumHigh},
		{CategoryAddUserGroup, 50, RiskMedium},
		{CategoryRemoveUser, 50, RiskMedium},
		{CategoryAddAsset, 40, RiskLow},
		{CategoryRemoveAddressBookEntry, 30, RiskVeryLow},
		{CategoryUnknown, 75, RiskHigh},
		{OperationCategory("SomethingNew"), 75, RiskHigh},
	}

	for _, tc := range cases {
		got := ResolveThreshold(tc.category)
		if got.Pct != tc.pct || got.Tier != tc.tier {
			t.Fatalf("ResolveThreshold(%s) = %+v, want pct=%d tier=%s", tc.category, got, tc.pct, tc.tier)
		}
	}
}

func TestEveryKnownCategoryHasThreshold(t *testing.T) {
	for _, c := range AllCategories() {
		if got := ResolveThreshold(c).Pct; got < 30 || got > 90 {
			t.Fatalf("ResolveThreshold(%s).Pct = %d", c, got)
		}
	}
}

func TestParseOperationCategory(t *testing.T) {
	if got := ParseOperationCategory("transfer"); got != CategoryTransfer {
		t.Fatalf("ParseOperationCategory(transfer) = %s", got)
	}
	if got := ParseOperationCategory(" SystemUpgrade "); got != CategorySystemUpgrade {
		t.Fatalf("ParseOperationCategory(SystemUpgrade) = %s", got)
	}
	if got := ParseOperationCategory("MintTokens"); got != CategoryUnknown {
		t.Fatalf("ParseOperationCategory(MintTokens) = %s, want Unknown", got)
	}
	if got := ParseOperationCategory(""); got != CategoryUnknown {
		t.Fatalf("ParseOperationCategory(\"\") = %s, want Unknown", got)
	}
	if len(AllCategories()) != 35 {
		t.Fatalf("AllCategories() len = %d", len(AllCategories()))
	}
}

func TestVotingDuration(t *testing.T) {
	if got := VotingDuration(CategorySystemRestore); got != 72*time.Hour {
		t.Fatalf("VotingDuration(SystemRestore) = %s", got)
	}
	if got := VotingDuration(CategoryAddAccount); got != 48*time.Hour {
		t.Fatalf("VotingDuration(AddAccount) = %s", got)
	}
	if got := VotingDuration(CategoryAddAsset); got != 24*time.Hour {
		t.Fatalf("VotingDuration(AddAsset) = %s", got)
	}
}
