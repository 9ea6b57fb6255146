package api

import (
	"context"

	"github.com/terra-clan/checklist-engine/internal/models"
)

type contextKey string

const adminContextKey contextKey = "admin_user"

// AdminFromContext extracts the signed-in admin from context
func AdminFromContext(ctx context.Context) *models.AdminUser {
	admin, ok := ctx.Value(adminContextKey).(*models.AdminUser)
	if !ok {
		return nil
	}
	return admin
}

// ContextWithAdmin adds the signed-in admin to context
func ContextWithAdmin(ctx context.Context, admin *models.AdminUser) context.Context {
	return context.WithValue(ctx, adminContextKey, admin)
}
