package usecase

import "context"

type submitterKey struct{}

// WithSubmitter tags ctx with the authenticated caller submitting a scan.
// The submitter is logged and carried on the scan.recorded event; it is not
// part of the ledger.
func WithSubmitter(ctx context.Context, subject string) context.Context {
	if subject == "" {
		return ctx
	}
	return context.WithValue(ctx, submitterKey{}, subject)
}

// SubmitterFrom returns the subject set by WithSubmitter, or "".
func SubmitterFrom(ctx context.Context) string {
	subject, _ := ctx.Value(submitterKey{}).(string)
	return subject
}
