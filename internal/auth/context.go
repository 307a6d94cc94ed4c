package auth

import "context"

type contextKey struct{}

// AuthContext carries the caller's identity plus the platform access token
// forwarded for calendar reads. The service never stores platform tokens;
// each request brings its own.
type AuthContext struct {
	OrgID         string
	UserEmail     string
	PlatformToken string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func OrgID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.OrgID
}

func UserEmail(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserEmail
}
