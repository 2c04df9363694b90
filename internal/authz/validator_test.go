package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func requireViolation(t *testing.T, err error, category string, perms ...string) {
	t.Helper()
	var invalid *InvalidPermissionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, perms, invalid.Violations[category])
}

func TestValidateAddEmptyBatch(t *testing.T) {
	require.ErrorIs(t, validateAdd(nil, nil, nil, nil), ErrEmptyBatch)
}

func TestValidateAddAcceptsCleanBatch(t *testing.T) {
	err := validateAdd(
		[]Permission{perm("app", "X", "view", ActionAllow)},
		[]Permission{perm("app", "X", "delete", ActionDeny)},
		nil, nil,
	)
	require.NoError(t, err)
}

func TestValidateAddDuplicateAllow(t *testing.T) {
	p := perm("app", "X", "view", ActionAllow)
	err := validateAdd([]Permission{p}, nil, []Permission{p}, nil)
	requireViolation(t, err, ViolationDuplicateAllow, "app/X.view")
}

func TestValidateAddDuplicateDeny(t *testing.T) {
	p := perm("app", "X", "view", ActionDeny)
	err := validateAdd(nil, []Permission{p}, nil, []Permission{p})
	requireViolation(t, err, ViolationDuplicateDeny, "app/X.view")
}

func TestValidateAddExistingDenyCannotBecomeAllow(t *testing.T) {
	err := validateAdd(
		[]Permission{perm("app", "X", "view", ActionAllow)},
		nil,
		nil,
		[]Permission{perm("app", "X", "view", ActionDeny)},
	)
	requireViolation(t, err, ViolationDenyAsAllow, "app/X.view")
}

func TestValidateAddExistingAllowCannotBecomeDeny(t *testing.T) {
	err := validateAdd(
		nil,
		[]Permission{perm("app", "X", "view", ActionDeny)},
		[]Permission{perm("app", "X", "view", ActionAllow)},
		nil,
	)
	requireViolation(t, err, ViolationAllowAsDeny, "app/X.view")
}

func TestValidateAddAllowAndDenyInSameBatch(t *testing.T) {
	err := validateAdd(
		[]Permission{perm("app", "X", "view", ActionAllow)},
		[]Permission{perm("app", "X", "view", ActionDeny)},
		nil, nil,
	)
	requireViolation(t, err, ViolationAllowAndDeny, "app/X.view")
}

func TestValidateAddReportsAllCategoriesTogether(t *testing.T) {
	dupAllow := perm("app", "X", "view", ActionAllow)
	both := perm("app", "X", "edit", ActionAllow)
	err := validateAdd(
		[]Permission{dupAllow, both},
		[]Permission{perm("app", "X", "edit", ActionDeny)},
		[]Permission{dupAllow},
		nil,
	)
	var invalid *InvalidPermissionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, addRejectedSummary, invalid.Summary)
	require.Len(t, invalid.Violations, 2)
	require.Equal(t, []string{"app/X.view"}, invalid.Violations[ViolationDuplicateAllow])
	require.Equal(t, []string{"app/X.edit"}, invalid.Violations[ViolationAllowAndDeny])
}

func TestValidateDeleteEmptyBatch(t *testing.T) {
	require.ErrorIs(t, validateDelete(nil, nil, nil, nil), ErrEmptyBatch)
}

func TestValidateDeleteAcceptsExistingPermissions(t *testing.T) {
	allow := perm("app", "X", "view", ActionAllow)
	deny := perm("app", "X", "delete", ActionDeny)
	err := validateDelete([]Permission{allow}, []Permission{deny}, []Permission{allow}, []Permission{deny})
	require.NoError(t, err)
}

func TestValidateDeleteMissingPermissions(t *testing.T) {
	err := validateDelete(
		[]Permission{perm("app", "X", "view", ActionAllow)},
		[]Permission{perm("app", "X", "edit", ActionDeny)},
		nil, nil,
	)
	var invalid *InvalidPermissionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, deleteRejectedSummary, invalid.Summary)
	require.Equal(t, []string{"app/X.view"}, invalid.Violations[ViolationDeleteMissingAllow])
	require.Equal(t, []string{"app/X.edit"}, invalid.Violations[ViolationDeleteMissingDeny])
}

func TestValidateDeleteWrongActionBeatsMissing(t *testing.T) {
	// The permission exists, just under the opposite action. That must be
	// reported as a wrong-action violation and not double-reported as
	// missing.
	err := validateDelete(
		[]Permission{perm("app", "X", "view", ActionAllow)},
		nil,
		nil,
		[]Permission{perm("app", "X", "view", ActionDeny)},
	)
	var invalid *InvalidPermissionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, []string{"app/X.view"}, invalid.Violations[ViolationDeleteAllowIsDeny])
	require.NotContains(t, invalid.Violations, ViolationDeleteMissingAllow)
}

func TestValidateDeleteDenySpecifiedForStoredAllow(t *testing.T) {
	err := validateDelete(
		nil,
		[]Permission{perm("app", "X", "view", ActionDeny)},
		[]Permission{perm("app", "X", "view", ActionAllow)},
		nil,
	)
	requireViolation(t, err, ViolationDeleteDenyIsAllow, "app/X.view")
}

func TestInvalidPermissionErrorMessageListsCategories(t *testing.T) {
	err := &InvalidPermissionError{
		Summary: addRejectedSummary,
		Violations: map[string][]string{
			ViolationDuplicateAllow: {"app/X.view", "app/X.edit"},
		},
	}
	msg := err.Error()
	require.Contains(t, msg, addRejectedSummary)
	require.Contains(t, msg, ViolationDuplicateAllow)
	require.Contains(t, msg, "app/X.view, app/X.edit")
}
