package shared

import "context"

type orgContextKey struct{}

// ContextWithOrg stores the acting organization id in context. Every core
// operation is scoped to exactly one organization; there is no implicit
// "current" chart of accounts.
func ContextWithOrg(ctx context.Context, orgID int64) context.Context {
	return context.WithValue(ctx, orgContextKey{}, orgID)
}

// OrgFromContext extracts the organization scope from context.
func OrgFromContext(ctx context.Context) (int64, bool) {
	orgID, ok := ctx.Value(orgContextKey{}).(int64)
	return orgID, ok
}
