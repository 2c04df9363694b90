package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Sentinel errors for the resolution core.
var (
	// ErrEmptyBatch indicates a granular mutation carrying no permissions.
	ErrEmptyBatch = errors.New("authz: no permissions specified")
)

// NotFoundError indicates that a requested entity does not exist.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("authz: %s %q not found", e.Kind, e.Key)
}

// NewNotFoundError builds a NotFoundError for the given entity kind and key.
func NewNotFoundError(kind, key string) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: key}
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// CycleError indicates a parent-role cycle in stored hierarchy data. A
// cycle is corrupted data, never a supported configuration; the resolution
// call that discovers it fails outright.
type CycleError struct {
	RoleID uuid.UUID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("authz: role hierarchy cycle detected at role %s", e.RoleID)
}

// Violation categories reported by the granular permission validator. The
// wording is part of the API contract: callers render these verbatim.
const (
	ViolationDuplicateAllow = "The following permissions already exist as 'allow' permissions"
	ViolationDuplicateDeny  = "The following permissions already exist as 'deny' permissions"
	ViolationDenyAsAllow    = "The following permissions exist as 'deny' and cannot be added as 'allow'"
	ViolationAllowAsDeny    = "The following permissions exist as 'allow' and cannot be added as 'deny'"
	ViolationAllowAndDeny   = "The following permissions cannot be specified as both 'allow' and 'deny'"

	ViolationDeleteAllowIsDeny  = "The following permissions exist as 'deny' for user but 'allow' was specified"
	ViolationDeleteDenyIsAllow  = "The following permissions exist as 'allow' for user but 'deny' was specified"
	ViolationDeleteMissingAllow = "The following permissions do not exist as 'allow' permissions"
	ViolationDeleteMissingDeny  = "The following permissions do not exist as 'deny' permissions"
)

// InvalidPermissionError aggregates every violation found while validating a
// granular permission mutation. Violations are grouped by category and each
// category lists the offending permissions in canonical form. The batch is
// rejected as a whole; nothing is partially applied.
type InvalidPermissionError struct {
	Summary    string
	Violations map[string][]string
}

func (e *InvalidPermissionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Summary)
	for _, category := range e.Categories() {
		b.WriteString(" ")
		b.WriteString(category)
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Violations[category], ", "))
		b.WriteString(".")
	}
	return b.String()
}

// Categories returns the violation categories in a stable order.
func (e *InvalidPermissionError) Categories() []string {
	cats := make([]string, 0, len(e.Violations))
	for c := range e.Violations {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// violationReport accumulates violations across categories before deciding
// whether the mutation fails.
type violationReport struct {
	summary    string
	violations map[string][]string
}

func newViolationReport(summary string) *violationReport {
	return &violationReport{summary: summary, violations: make(map[string][]string)}
}

func (r *violationReport) add(category string, perms []Permission) {
	for _, p := range perms {
		r.violations[category] = append(r.violations[category], p.String())
	}
}

// err returns the aggregated error, or nil when no violation was recorded.
func (r *violationReport) err() error {
	if len(r.violations) == 0 {
		return nil
	}
	return &InvalidPermissionError{Summary: r.summary, Violations: r.violations}
}
