package governance

import "strings"

// OperationCategory is the closed set of request operations a proposal can govern.
type OperationCategory string

const (
	CategoryTransfer    OperationCategory = "Transfer"
	CategoryAddAccount  OperationCategory = "AddAccount"
	CategoryEditAccount OperationCategory = "EditAccount"

	CategoryAddUser    OperationCategory = "AddUser"
	CategoryEditUser   OperationCategory = "EditUser"
	CategoryRemoveUser OperationCategory = "RemoveUser"

	CategoryAddUserGroup    OperationCategory = "AddUserGroup"
	CategoryEditUserGroup   OperationCategory = "EditUserGroup"
	CategoryRemoveUserGroup OperationCategory = "RemoveUserGroup"

	CategoryCreateExternalCanister    OperationCategory = "CreateExternalCanister"
	CategoryConfigureExternalCanister OperationCategory = "ConfigureExternalCanister"
	CategoryChangeExternalCanister    OperationCategory = "ChangeExternalCanister"
	CategoryCallExternalCanister      OperationCategory = "CallExternalCanister"
	CategoryFundExternalCanister      OperationCategory = "FundExternalCanister"
	CategoryMonitorExternalCanister   OperationCategory = "MonitorExternalCanister"
	CategorySnapshotExternalCanister  OperationCategory = "SnapshotExternalCanister"
	CategoryRestoreExternalCanister   OperationCategory = "RestoreExternalCanister"
	CategoryPruneExternalCanister     OperationCategory = "PruneExternalCanister"

	CategorySystemUpgrade       OperationCategory = "SystemUpgrade"
	CategorySystemRestore       OperationCategory = "SystemRestore"
	CategorySetDisasterRecovery OperationCategory = "SetDisasterRecovery"
	CategoryManageSystemInfo    OperationCategory = "ManageSystemInfo"

	CategoryEditPermission      OperationCategory = "EditPermission"
	CategoryAddRequestPolicy    OperationCategory = "AddRequestPolicy"
	CategoryEditRequestPolicy   OperationCategory = "EditRequestPolicy"
	CategoryRemoveRequestPolicy OperationCategory = "RemoveRequestPolicy"

	CategoryAddAsset    OperationCategory = "AddAsset"
	CategoryEditAsset   OperationCategory = "EditAsset"
	CategoryRemoveAsset OperationCategory = "RemoveAsset"

	CategoryAddNamedRule    OperationCategory = "AddNamedRule"
	CategoryEditNamedRule   OperationCategory = "EditNamedRule"
	CategoryRemoveNamedRule OperationCategory = "RemoveNamedRule"

	CategoryAddAddressBookEntry    OperationCategory = "AddAddressBookEntry"
	CategoryEditAddressBookEntry   OperationCategory = "EditAddressBookEntry"
	CategoryRemoveAddressBookEntry OperationCategory = "RemoveAddressBookEntry"

	CategoryUnknown OperationCategory = "Unknown"
)

var knownCategories = map[string]OperationCategory{}

func init() {
	for _, c := range AllCategories() {
		knownCategories[strings.ToLower(string(c))] = c
	}
}

// AllCategories lists every recognised category, excluding Unknown.
func AllCategories() []OperationCategory {
	return []OperationCategory{
		CategoryTransfer, CategoryAddAccount, CategoryEditAccount,
		CategoryAddUser, CategoryEditUser, CategoryRemoveUser,
		CategoryAddUserGroup, CategoryEditUserGroup, CategoryRemoveUserGroup,
		CategoryCreateExternalCanister, CategoryConfigureExternalCanister, CategoryChangeExternalCanister,
		CategoryCallExternalCanister, CategoryFundExternalCanister, CategoryMonitorExternalCanister,
		CategorySnapshotExternalCanister, CategoryRestoreExternalCanister, CategoryPruneExternalCanister,
		CategorySystemUpgrade, CategorySystemRestore, CategorySetDisasterRecovery, CategoryManageSystemInfo,
		CategoryEditPermission, CategoryAddRequestPolicy, CategoryEditRequestPolicy, CategoryRemoveRequestPolicy,
		CategoryAddAsset, CategoryEditAsset, CategoryRemoveAsset,
		CategoryAddNamedRule, CategoryEditNamedRule, CategoryRemoveNamedRule,
		CategoryAddAddressBookEntry, CategoryEditAddressBookEntry, CategoryRemoveAddressBookEntry,
	}
}

// ParseOperationCategory maps a request operation name to its category.
// Matching is case-insensitive; anything unrecognised is CategoryUnknown.
func ParseOperationCategory(name string) OperationCategory {
	if c, ok := knownCategories[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c
	}
	return CategoryUnknown
}

func (c OperationCategory) IsKnown() bool {
	_, ok := knownCategories[strings.ToLower(string(c))]
	return ok
}
