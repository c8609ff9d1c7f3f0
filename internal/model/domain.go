package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Domain represents one DNS name bound to a tenant. A tenant may have several
// domains but at most one is primary. Domains always live in the central
// database.
type Domain struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	Domain     string     `json:"domain" gorm:"type:varchar(255);uniqueIndex;not null"`
	TenantID   string     `json:"tenant_id" gorm:"type:varchar(36);index;not null"`
	IsPrimary  bool       `json:"is_primary" gorm:"default:false"`
	IsVerified bool       `json:"is_verified" gorm:"default:false"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Relations
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

// TableName specifies the table name
func (Domain) TableName() string {
	return "domains"
}

// IsSubdomainOf reports whether this domain is a subdomain of base.
// Hostnames are case-insensitive per RFC 4343, so the comparison folds ASCII
// case on both sides.
func (d *Domain) IsSubdomainOf(base string) bool {
	host := strings.ToLower(d.Domain)
	suffix := "." + strings.ToLower(base)
	return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
}

// GetSubdomain returns the label before "."+base, or false when this domain is
// not a subdomain of base.
func (d *Domain) GetSubdomain(base string) (string, bool) {
	if !d.IsSubdomainOf(base) {
		return "", false
	}
	return d.Domain[:len(d.Domain)-len(base)-1], true
}

// CreateSubdomain composes "<subdomain>.<baseDomain>" and stores it for the
// tenant. Subdomains are issued by the system itself, so unlike custom domains
// they are verified immediately.
func CreateSubdomain(db *gorm.DB, tenant *Tenant, subdomain, baseDomain string, isPrimary bool) (*Domain, error) {
	now := time.Now()
	domain := &Domain{
		Domain:     strings.ToLower(subdomain + "." + baseDomain),
		TenantID:   tenant.ID,
		IsPrimary:  isPrimary,
		IsVerified: true,
		VerifiedAt: &now,
	}
	if err := db.Create(domain).Error; err != nil {
		return nil, err
	}
	return domain, nil
}

// FindTenantByDomain resolves the owning tenant for an exact host string.
// Returns (nil, nil) when no domain matches; the caller decides whether an
// unresolved host is fatal.
func FindTenantByDomain(db *gorm.DB, host string) (*Tenant, error) {
	var domain Domain
	err := db.Where("domain = ?", strings.ToLower(host)).First(&domain).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var tenant Tenant
	if err := db.First(&tenant, "id = ?", domain.TenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

// Verify stamps the domain as verified
func (d *Domain) Verify(db *gorm.DB) error {
	now := time.Now()
	d.IsVerified = true
	d.VerifiedAt = &now
	return db.Model(d).Updates(map[string]interface{}{
		"is_verified": true,
		"verified_at": now,
	}).Error
}

// MakePrimary promotes this domain to the tenant's primary domain, demoting
// any sibling inside the same transaction so at most one primary exists.
func (d *Domain) MakePrimary(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Domain{}).
			Where("tenant_id = ? AND id <> ?", d.TenantID, d.ID).
			Update("is_primary", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&Domain{}).
			Where("id = ?", d.ID).
			Update("is_primary", true).Error; err != nil {
			return err
		}
		d.IsPrimary = true
		return nil
	})
}
