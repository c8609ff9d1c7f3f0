package model

import (
	"time"

	"gorm.io/gorm"
)

// TenantUser represents the association between users and tenants. It carries
// the member's role within the tenant plus a JSON permissions list.
type TenantUser struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    string         `json:"tenant_id" gorm:"type:varchar(36);index:idx_tenant_user,unique;not null"`
	UserID      uint           `json:"user_id" gorm:"index:idx_tenant_user,unique;not null"`
	Role        string         `json:"role" gorm:"type:varchar(50);not null;default:'member'"`
	Permissions JSONMap        `json:"permissions,omitempty" gorm:"type:jsonb"`
	IsActive    bool           `json:"is_active" gorm:"default:true"`
	JoinedAt    *time.Time     `json:"joined_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

// TableName specifies the table name
func (TenantUser) TableName() string {
	return "tenant_users"
}
