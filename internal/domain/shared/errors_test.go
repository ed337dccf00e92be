package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	err := fmt.Errorf("find product: %w", NewDomainError("NOT_FOUND", "product 42 not found"))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrAlreadyExists)
	assert.False(t, errors.Is(errors.New("NOT_FOUND"), ErrNotFound))
	assert.Equal(t, "product 42 not found", err.(interface{ Unwrap() error }).Unwrap().Error())
}

func TestTenantAggregateRoot(t *testing.T) {
	tenantID := uuid.New()
	root := NewTenantAggregateRoot(tenantID)

	assert.NotEqual(t, uuid.Nil, root.GetID())
	assert.Equal(t, tenantID, root.TenantID)
	assert.Equal(t, 1, root.Version)
	assert.Equal(t, root.CreatedAt, root.UpdatedAt)

	created := root.UpdatedAt
	root.IncrementVersion()
	assert.Equal(t, 2, root.Version)
	assert.False(t, root.UpdatedAt.Before(created))
}
