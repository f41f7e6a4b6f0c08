package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/clearledger/backoffice/pkg/enums"
)

// Account is a node in the chart of accounts. The parent reference is a weak
// id-based link; hierarchy is rebuilt by query, never embedded.
type Account struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code            string              `gorm:"column:code;type:varchar(4);not null;uniqueIndex:ux_accounts_code"`
	Name            string              `gorm:"column:name;type:varchar(200);not null"`
	Description     string              `gorm:"column:description;type:text"`
	Type            enums.AccountType   `gorm:"column:type;type:account_type_enum;not null"`
	NormalBalance   enums.NormalBalance `gorm:"column:normal_balance;type:normal_balance_enum;not null"`
	ParentAccountID *uuid.UUID          `gorm:"column:parent_account_id;type:uuid;index"`
	IsSystemAccount bool                `gorm:"column:is_system_account;not null;default:false"`
	Status          enums.AccountStatus `gorm:"column:status;type:account_status_enum;not null;default:'active'"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides GORM's pluralization.
func (Account) TableName() string {
	return "accounts"
}
