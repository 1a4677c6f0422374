package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/mwhitfield/ledgerline/internal/models"
	apperrors "github.com/mwhitfield/ledgerline/pkg/errors"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// accountOwnedBy verifies the account exists and belongs to the user.
func accountOwnedBy(ctx context.Context, db *gorm.DB, accountID, userID string) error {
	var count int64
	err := db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND user_id = ?", accountID, userID).
		Count(&count).Error
	if err != nil {
		return apperrors.Wrap(err, "Failed to verify account")
	}
	if count == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func normaliseIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func containsString(values []string, target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	for _, value := range values {
		if strings.TrimSpace(value) == target {
			return true
		}
	}
	return false
}
