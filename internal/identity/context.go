// Package identity carries the authenticated caller through request contexts.
package identity

import "context"

type ctxKey string

const (
	userKey ctxKey = "clinic.user_id"
	roleKey ctxKey = "clinic.role"
)

// RoleAdmin marks back-office users.
const RoleAdmin = "admin"

// WithUser stores the caller's user id and role in context.
func WithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

// UserIDFromContext extracts the user id if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userKey).(string)
	return userID, ok && userID != ""
}

// RoleFromContext extracts the caller role, empty when unauthenticated.
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}

// IsAdmin reports whether the caller carries the admin role.
func IsAdmin(ctx context.Context) bool {
	return RoleFromContext(ctx) == RoleAdmin
}
