package common

import "context"

// UserContext holds the authenticated caller's identity, resolved by the
// bearer-token auth middleware and attached to every request context. Job
// ownership checks (and the Forbidden classification in the error taxonomy)
// are all resolved against this.
type UserContext struct {
	UserID string
	Role   string // "user" or "admin"; admin can read/cancel jobs across owners
}

type contextKey int

const userContextKey contextKey = iota

// WithUserContext stores a UserContext in the request context.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, uc)
}

// UserContextFromContext retrieves the UserContext from context, or nil if absent.
func UserContextFromContext(ctx context.Context) *UserContext {
	uc, _ := ctx.Value(userContextKey).(*UserContext)
	return uc
}

// ResolveUserID returns the UserID from context, or "" when no user context is present.
func ResolveUserID(ctx context.Context) string {
	if uc := UserContextFromContext(ctx); uc != nil {
		return uc.UserID
	}
	return ""
}

// IsAdmin reports whether the caller in ctx has the admin role.
func IsAdmin(ctx context.Context) bool {
	uc := UserContextFromContext(ctx)
	return uc != nil && uc.Role == "admin"
}

// CanAccessJob reports whether the caller in ctx may read/cancel/retry a job
// owned by ownerID — either because they own it, or because they're an admin.
func CanAccessJob(ctx context.Context, ownerID string) bool {
	uc := UserContextFromContext(ctx)
	if uc == nil {
		return false
	}
	return uc.Role == "admin" || uc.UserID == ownerID
}
