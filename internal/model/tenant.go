package model

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Membership roles within a tenant. Owner implies admin.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Settings key controlling whether row-scoped queries also return records not
// yet assigned to any tenant.
const SettingShowUnassignedRecords = "show_unassigned_records"

// Tenant represents a customer/organization boundary. Tenants are always
// stored in the central database, regardless of tenancy mode.
type Tenant struct {
	ID          string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name        string         `json:"name" gorm:"type:varchar(100);not null"`
	Slug        string         `json:"slug" gorm:"type:varchar(100);uniqueIndex"`
	Email       string         `json:"email,omitempty" gorm:"type:varchar(100)"`
	Avatar      string         `json:"avatar,omitempty" gorm:"type:varchar(255)"`
	Description string         `json:"description" gorm:"type:text"`
	OwnerID     uint           `json:"owner_id" gorm:"index;not null"`
	Database    string         `json:"database,omitempty" gorm:"type:varchar(120);index"`
	Data        JSONMap        `json:"data,omitempty" gorm:"type:jsonb"`
	Settings    JSONMap        `json:"settings,omitempty" gorm:"type:jsonb"`
	TrialEndsAt *time.Time     `json:"trial_ends_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Domains []Domain `json:"domains,omitempty" gorm:"foreignKey:TenantID"`
}

// TableName specifies the table name
func (Tenant) TableName() string {
	return "tenants"
}

// BeforeCreate fills in the generated identity fields: id and slug
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Slug == "" {
		t.Slug = Slugify(t.Name)
	}
	return nil
}

// DeriveDatabase fills Database from the slug when it was not set explicitly.
// The prefix/suffix come from tenancy configuration.
func (t *Tenant) DeriveDatabase(prefix, suffix string) {
	if t.Database == "" {
		t.Database = prefix + strings.ReplaceAll(t.Slug, "-", "_") + suffix
	}
}

// GetDatabaseName returns the physical database name for this tenant. Falls
// back to the slug when no database name was derived; callers must not assume
// the two are equal.
func (t *Tenant) GetDatabaseName() string {
	if t.Database != "" {
		return t.Database
	}
	return t.Slug
}

// AddUser attaches a user to the tenant with the given role. Re-attaching an
// existing member updates the role and permissions instead of duplicating the
// pivot row.
func (t *Tenant) AddUser(db *gorm.DB, user *User, role string, permissions []string) error {
	if role == "" {
		role = RoleMember
	}

	permMap := JSONMap{}
	for _, p := range permissions {
		permMap[p] = true
	}

	var existing TenantUser
	err := db.Where("tenant_id = ? AND user_id = ?", t.ID, user.ID).First(&existing).Error
	if err == nil {
		existing.Role = role
		existing.Permissions = permMap
		existing.IsActive = true
		return db.Save(&existing).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	now := time.Now()
	membership := TenantUser{
		TenantID:    t.ID,
		UserID:      user.ID,
		Role:        role,
		Permissions: permMap,
		IsActive:    true,
		JoinedAt:    &now,
	}
	return db.Create(&membership).Error
}

// RemoveUser detaches a user from the tenant
func (t *Tenant) RemoveUser(db *gorm.DB, user *User) error {
	return db.Where("tenant_id = ? AND user_id = ?", t.ID, user.ID).Delete(&TenantUser{}).Error
}

// IsOwner reports whether the user owns this tenant
func (t *Tenant) IsOwner(db *gorm.DB, user *User) bool {
	if t.OwnerID == user.ID {
		return true
	}
	return t.hasRole(db, user, RoleOwner)
}

// IsAdmin reports whether the user administers this tenant. Owners count as
// admins.
func (t *Tenant) IsAdmin(db *gorm.DB, user *User) bool {
	if t.IsOwner(db, user) {
		return true
	}
	return t.hasRole(db, user, RoleAdmin)
}

// IsMember reports whether the user belongs to this tenant in any role
func (t *Tenant) IsMember(db *gorm.DB, user *User) bool {
	var count int64
	db.Model(&TenantUser{}).
		Where("tenant_id = ? AND user_id = ? AND is_active = ?", t.ID, user.ID, true).
		Count(&count)
	return count > 0
}

func (t *Tenant) hasRole(db *gorm.DB, user *User, role string) bool {
	var count int64
	db.Model(&TenantUser{}).
		Where("tenant_id = ? AND user_id = ? AND role = ? AND is_active = ?", t.ID, user.ID, role, true).
		Count(&count)
	return count > 0
}

// OnTrial reports whether the tenant trial is still running. A tenant without
// a trial_ends_at is neither on trial nor trial-ended.
func (t *Tenant) OnTrial() bool {
	return t.TrialEndsAt != nil && t.TrialEndsAt.After(time.Now())
}

// TrialEnded reports whether the tenant trial has expired
func (t *Tenant) TrialEnded() bool {
	return t.TrialEndsAt != nil && !t.TrialEndsAt.After(time.Now())
}

// ShowUnassignedRecords reports whether row-scoped queries for this tenant
// should also return records with no tenant assigned.
func (t *Tenant) ShowUnassignedRecords() bool {
	return t.Settings.Bool(SettingShowUnassignedRecords)
}

// Slugify converts a display name into a URL/subdomain-safe slug
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true // trim leading dashes
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
