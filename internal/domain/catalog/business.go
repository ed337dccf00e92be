package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
)

// AccountRoleBusinessOwner is the role given to synthetic business owner accounts
const AccountRoleBusinessOwner = "business_owner"

// Account is the owning account of a business (trademark).
// Accounts created by the synchronizer are synthetic and cannot log in until reset.
type Account struct {
	shared.TenantAggregateRoot
	Email        string `gorm:"type:varchar(200);not null"`
	Phone        string `gorm:"type:varchar(30);not null"`
	DisplayName  string `gorm:"type:varchar(200);not null"`
	PasswordHash string `gorm:"type:varchar(200);not null"`
	Role         string `gorm:"type:varchar(30);not null"`
	Synthetic    bool   `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (Account) TableName() string {
	return "accounts"
}

// NewSyntheticAccount creates an owner account that was not registered by a person
func NewSyntheticAccount(tenantID uuid.UUID, email, phone, displayName, passwordHash string) (*Account, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(phone) == "" {
		return nil, shared.NewDomainError("INVALID_ACCOUNT", "Account email and phone are required")
	}
	if passwordHash == "" {
		return nil, shared.NewDomainError("INVALID_ACCOUNT", "Account password hash is required")
	}
	return &Account{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Email:               strings.ToLower(email),
		Phone:               phone,
		DisplayName:         displayName,
		PasswordHash:        passwordHash,
		Role:                AccountRoleBusinessOwner,
		Synthetic:           true,
	}, nil
}

// Business is a brand or trademark a product is sold under
type Business struct {
	shared.TenantAggregateRoot
	RemoteID       *int64
	AccountID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Name           string    `gorm:"type:varchar(200);not null"`
	NormalizedName string    `gorm:"type:varchar(200);not null"`
	Slug           string    `gorm:"type:varchar(250);not null"`
	ActivatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (Business) TableName() string {
	return "businesses"
}

// NewRemoteBusiness creates a business bound to a remote trademark id
func NewRemoteBusiness(tenantID, accountID uuid.UUID, remoteID int64, name, normalizedName, slug string) (*Business, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Business %d", remoteID)
	}
	if normalizedName == "" || slug == "" {
		return nil, shared.NewDomainError("INVALID_BUSINESS", "Business normalized name and slug are required")
	}
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BUSINESS", "Business requires an owning account")
	}
	return &Business{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		RemoteID:            &remoteID,
		AccountID:           accountID,
		Name:                name,
		NormalizedName:      normalizedName,
		Slug:                slug,
		ActivatedAt:         time.Now(),
	}, nil
}

// BindRemote binds an unbound business to a remote id
func (b *Business) BindRemote(remoteID int64) bool {
	if b.RemoteID != nil {
		return false
	}
	b.RemoteID = &remoteID
	b.IncrementVersion()
	return true
}
