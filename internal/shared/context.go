package shared

import "context"

// Subject describes the authenticated principal attached to a request. The
// surrounding API gateway performs authentication; this service only reads
// the claims it forwards.
type Subject struct {
	SubjectID        string
	IdentityProvider string
	ClientID         string
	Groups           []string
}

type subjectContextKey struct{}

// ContextWithSubject stores the subject in context.
func ContextWithSubject(ctx context.Context, sub *Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, sub)
}

// SubjectFromContext extracts the subject from context.
func SubjectFromContext(ctx context.Context) *Subject {
	sub, _ := ctx.Value(subjectContextKey{}).(*Subject)
	return sub
}
