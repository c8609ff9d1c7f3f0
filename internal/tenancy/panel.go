package tenancy

// Panel is the builder-style surface an admin panel uses to declare its
// tenancy behaviour: which mode it runs in, which models are tenant-scoped,
// which base domain serves tenant subdomains, and which pages handle tenant
// registration and profile editing.
type Panel struct {
	id   string
	mode Mode

	tenantModels  []string
	centralModels []string

	domain           string
	registrationPage string
	profilePage      string
	scopingEnabled   bool
}

// NewPanel creates a panel with row-scoped (single database) tenancy and
// resource scoping enabled.
func NewPanel(id string) *Panel {
	return &Panel{
		id:             id,
		mode:           DefaultMode(),
		scopingEnabled: true,
	}
}

// ID returns the panel identifier.
func (p *Panel) ID() string {
	return p.id
}

// Tenancy sets the isolation mode.
func (p *Panel) Tenancy(mode Mode) *Panel {
	p.mode = mode
	return p
}

// Mode returns the configured isolation mode.
func (p *Panel) Mode() Mode {
	return p.mode
}

// TenantModel declares models as tenant-scoped for this panel.
func (p *Panel) TenantModel(models ...interface{}) *Panel {
	for _, model := range models {
		p.tenantModels = append(p.tenantModels, ModelKey(model))
	}
	return p
}

// CentralModel declares models as central for this panel.
func (p *Panel) CentralModel(models ...interface{}) *Panel {
	for _, model := range models {
		p.centralModels = append(p.centralModels, ModelKey(model))
	}
	return p
}

// TenantModels returns the panel's tenant model keys.
func (p *Panel) TenantModels() []string {
	return p.tenantModels
}

// CentralModels returns the panel's central model keys.
func (p *Panel) CentralModels() []string {
	return p.centralModels
}

// Domain sets the base domain tenant subdomains are served under.
func (p *Panel) Domain(domain string) *Panel {
	p.domain = domain
	return p
}

// BaseDomain returns the panel's base domain.
func (p *Panel) BaseDomain() string {
	return p.domain
}

// RegistrationPage sets the route name of the tenant registration page.
func (p *Panel) RegistrationPage(name string) *Panel {
	p.registrationPage = name
	return p
}

// ProfilePage sets the route name of the tenant profile page.
func (p *Panel) ProfilePage(name string) *Panel {
	p.profilePage = name
	return p
}

// RegistrationPageName returns the registration page route name.
func (p *Panel) RegistrationPageName() string {
	return p.registrationPage
}

// ProfilePageName returns the profile page route name.
func (p *Panel) ProfilePageName() string {
	return p.profilePage
}

// DisableResourceScoping opts the panel's resources out of automatic tenant
// filters. Resources are opted in by default.
func (p *Panel) DisableResourceScoping() *Panel {
	p.scopingEnabled = false
	return p
}

// ResourceScopingEnabled reports whether row-level tenant filters apply.
func (p *Panel) ResourceScopingEnabled() bool {
	return p.scopingEnabled
}
