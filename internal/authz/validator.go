package authz

// Validation of granular permission mutations. Every check runs against the
// full batch and all violations are reported together, grouped by category;
// the caller gets one itemized rejection instead of the first failure.

const (
	addRejectedSummary    = "Cannot add the specified permissions, please correct the issues and attempt to add again."
	deleteRejectedSummary = "Cannot delete the specified permissions, please correct the issues and attempt to delete again."
)

// validateAdd checks a granular add request against the stored record. A
// permission can violate several categories at once; each is reported.
func validateAdd(toAllow, toDeny, existingAllow, existingDeny []Permission) error {
	if len(toAllow)+len(toDeny) == 0 {
		return ErrEmptyBatch
	}

	report := newViolationReport(addRejectedSummary)
	report.add(ViolationDuplicateAllow, intersectKeys(toAllow, existingAllow))
	report.add(ViolationDuplicateDeny, intersectKeys(toDeny, existingDeny))
	report.add(ViolationDenyAsAllow, intersectKeys(toAllow, existingDeny))
	report.add(ViolationAllowAsDeny, intersectKeys(toDeny, existingAllow))
	report.add(ViolationAllowAndDeny, intersectKeys(toAllow, toDeny))
	return report.err()
}

// validateDelete checks a granular delete request against the stored
// record. A delete naming a permission stored under the opposite action is
// reported as a wrong-action violation, not as missing.
func validateDelete(toAllow, toDeny, existingAllow, existingDeny []Permission) error {
	if len(toAllow)+len(toDeny) == 0 {
		return ErrEmptyBatch
	}

	report := newViolationReport(deleteRejectedSummary)

	wrongActionAllow := intersectKeys(toAllow, existingDeny)
	report.add(ViolationDeleteAllowIsDeny, wrongActionAllow)
	report.add(ViolationDeleteMissingAllow, subtractKeys(toAllow, existingAllow, wrongActionAllow))

	wrongActionDeny := intersectKeys(toDeny, existingAllow)
	report.add(ViolationDeleteDenyIsAllow, wrongActionDeny)
	report.add(ViolationDeleteMissingDeny, subtractKeys(toDeny, existingDeny, wrongActionDeny))

	return report.err()
}
