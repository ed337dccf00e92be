package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/erp/catalogsync/internal/domain/shared"
	"gorm.io/gorm"
)

// translateError maps driver and GORM errors onto domain errors.
// Unique violations become shared.ErrAlreadyExists so callers can re-query.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", shared.ErrAlreadyExists, err)
	}
	return err
}

// isUniqueViolation catches unique violations from drivers that GORM did not translate
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "sqlstate 23505")
}
