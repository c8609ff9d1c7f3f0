package tenancy

import (
	"fmt"

	"gorm.io/gorm"

	"tenancy-service/internal/model"
)

// Ownership describes how a resource's rows relate to a tenant: either a
// direct foreign-key column or a many-to-many pivot. The pivot table and
// column names are explicit configuration, never inferred from the resource
// name.
type Ownership struct {
	// Column is the direct tenant foreign-key column, e.g. "team_id".
	// Empty means the resource relates through a pivot instead.
	Column string

	// Table is the resource table, needed to correlate pivot subqueries.
	Table string

	// KeyColumn is the resource primary key column, "id" by default.
	KeyColumn string

	// PivotTable / PivotTenantColumn / PivotRecordColumn describe the
	// many-to-many association when Column is empty.
	PivotTable        string
	PivotTenantColumn string
	PivotRecordColumn string
}

func (o Ownership) key() string {
	if o.KeyColumn != "" {
		return o.KeyColumn
	}
	return "id"
}

// TenantOwned is implemented by records carrying a direct tenant foreign key.
// The pointer distinguishes "never assigned" from an explicitly set value, so
// auto-association can refuse to overwrite even a zero value that a caller
// set on purpose.
type TenantOwned interface {
	GetTenantID() *string
	SetTenantID(id string)
}

// ApplyTenantScope adds the row-level tenant filter to a listing query.
// The filter applies only when the panel opts in, a tenant is resolved, and
// the panel runs in single-database mode; multi-database isolation is
// structural, so no filter is added there.
func ApplyTenantScope(db *gorm.DB, panel *Panel, tenant *model.Tenant, own Ownership) *gorm.DB {
	if panel == nil || !panel.ResourceScopingEnabled() || tenant == nil {
		return db
	}
	if panel.Mode().IsMultiDatabase() {
		return db
	}
	return db.Scopes(ForTenant(tenant, own))
}

// ForTenant is the gorm scope enforcing tenant ownership. With the tenant's
// show_unassigned_records setting on, rows not assigned to any tenant are
// included as well; rows owned by other tenants never are.
func ForTenant(tenant *model.Tenant, own Ownership) func(*gorm.DB) *gorm.DB {
	includeUnassigned := tenant.ShowUnassignedRecords()

	return func(db *gorm.DB) *gorm.DB {
		if own.Column != "" {
			if includeUnassigned {
				return db.Where(
					fmt.Sprintf("%s = ? OR %s IS NULL", own.Column, own.Column),
					tenant.ID,
				)
			}
			return db.Where(fmt.Sprintf("%s = ?", own.Column), tenant.ID)
		}

		owned := fmt.Sprintf(
			"EXISTS (SELECT 1 FROM %s WHERE %s.%s = %s.%s AND %s.%s = ?)",
			own.PivotTable,
			own.PivotTable, own.PivotRecordColumn,
			own.Table, own.key(),
			own.PivotTable, own.PivotTenantColumn,
		)
		if includeUnassigned {
			unassigned := fmt.Sprintf(
				"NOT EXISTS (SELECT 1 FROM %s WHERE %s.%s = %s.%s)",
				own.PivotTable,
				own.PivotTable, own.PivotRecordColumn,
				own.Table, own.key(),
			)
			return db.Where(owned+" OR "+unassigned, tenant.ID)
		}
		return db.Where(owned, tenant.ID)
	}
}

// AssignTenant stamps the record's tenant foreign key with the active tenant,
// but only when no value was ever set. An explicitly assigned id, even an
// empty one, is left alone.
func AssignTenant(record TenantOwned, tenant *model.Tenant) {
	if tenant == nil || record.GetTenantID() != nil {
		return
	}
	record.SetTenantID(tenant.ID)
}

// AttachTenant links a saved record to the tenant through the pivot table.
// Attaching an already-linked record is a no-op, so the operation can run
// after every save without duplicating rows.
func AttachTenant(db *gorm.DB, tenant *model.Tenant, recordID interface{}, own Ownership) error {
	if tenant == nil {
		return nil
	}

	var count int64
	err := db.Table(own.PivotTable).
		Where(
			fmt.Sprintf("%s = ? AND %s = ?", own.PivotTenantColumn, own.PivotRecordColumn),
			tenant.ID, recordID,
		).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return db.Table(own.PivotTable).Create(map[string]interface{}{
		own.PivotTenantColumn: tenant.ID,
		own.PivotRecordColumn: recordID,
	}).Error
}
