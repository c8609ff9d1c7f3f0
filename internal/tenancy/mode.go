package tenancy

// Mode selects the isolation strategy a panel runs under.
type Mode string

const (
	// Single keeps every tenant in the shared database and isolates rows by
	// tenant id filters.
	Single Mode = "single"

	// MultiDatabase gives every tenant its own physical database, selected by
	// repointing the "tenant" connection alias.
	MultiDatabase Mode = "multi"
)

// DefaultMode is the mode panels use unless configured otherwise.
func DefaultMode() Mode {
	return Single
}

// ParseMode maps a configuration string onto a Mode, defaulting to Single for
// anything unrecognized.
func ParseMode(s string) Mode {
	if Mode(s) == MultiDatabase {
		return MultiDatabase
	}
	return Single
}

// IsSingle reports whether the mode is shared-database row scoping.
func (m Mode) IsSingle() bool {
	return m == Single
}

// IsMultiDatabase reports whether the mode is database-per-tenant.
func (m Mode) IsMultiDatabase() bool {
	return m == MultiDatabase
}

// Label returns the short display name of the mode.
func (m Mode) Label() string {
	if m.IsMultiDatabase() {
		return "Multi Database"
	}
	return "Single Database"
}

// Description returns the long display text of the mode.
func (m Mode) Description() string {
	if m.IsMultiDatabase() {
		return "Each tenant gets a dedicated physical database"
	}
	return "All tenants share one database, isolated by tenant id"
}
