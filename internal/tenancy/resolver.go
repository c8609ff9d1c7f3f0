package tenancy

import (
	"fmt"
	"sync"
)

// TenantScoped is the marker an entity implements to declare that it lives in
// the tenant database. The marker wins over any configuration list.
type TenantScoped interface {
	TenantScoped()
}

// CentralScoped is the marker an entity implements to declare that it lives in
// the central database.
type CentralScoped interface {
	CentralScoped()
}

// TenantConnectionName is the reserved logical connection alias that always
// points at the currently initialized tenant database.
const TenantConnectionName = "tenant"

// ClassificationCache memoizes tenant/central verdicts per model type. It is
// an explicit dependency of the resolver (not package state) so panel changes
// and tests can reset it cleanly.
type ClassificationCache struct {
	mu      sync.RWMutex
	entries map[string]bool
}

// NewClassificationCache returns an empty cache.
func NewClassificationCache() *ClassificationCache {
	return &ClassificationCache{entries: make(map[string]bool)}
}

// Get returns the memoized verdict for a key and whether one exists.
func (c *ClassificationCache) Get(key string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[key]
	return value, ok
}

// Set memoizes a verdict for a key.
func (c *ClassificationCache) Set(key string, value bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Clear drops every memoized verdict.
func (c *ClassificationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]bool)
}

// ResolverConfig is the global (panel-independent) classification config.
type ResolverConfig struct {
	// TenantModels and CentralModels list model type keys (as produced by
	// ModelKey) that are classified without a marker on the type itself.
	TenantModels  []string
	CentralModels []string

	// CentralConnection is the logical name returned for central models.
	CentralConnection string
}

// ModelResolver answers, for any model, whether it belongs to the tenant
// database or the central one. Unconfigured models default to central: that is
// the safe answer for a classifier that must never block a query.
type ModelResolver struct {
	cache  *ClassificationCache
	global ResolverConfig

	mu    sync.RWMutex
	panel *Panel
}

// NewModelResolver builds a resolver over an injectable cache. A nil cache
// gets a fresh one.
func NewModelResolver(cache *ClassificationCache, global ResolverConfig) *ModelResolver {
	if cache == nil {
		cache = NewClassificationCache()
	}
	if global.CentralConnection == "" {
		global.CentralConnection = "central"
	}
	return &ModelResolver{cache: cache, global: global}
}

// ModelKey derives the cache/config key for a model value.
func ModelKey(model interface{}) string {
	if named, ok := model.(string); ok {
		return named
	}
	return fmt.Sprintf("%T", model)
}

// UsePanel switches the active panel. The cache is cleared because panel
// config participates in classification.
func (r *ModelResolver) UsePanel(panel *Panel) {
	r.mu.Lock()
	r.panel = panel
	r.mu.Unlock()
	r.cache.Clear()
}

// ActivePanel returns the currently active panel, or nil.
func (r *ModelResolver) ActivePanel() *Panel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.panel
}

// IsTenantModel reports whether the model lives in the tenant database.
// Precedence: memoized verdict, marker on the type, active panel list, global
// list; anything else is not a tenant model.
func (r *ModelResolver) IsTenantModel(model interface{}) bool {
	key := ModelKey(model)
	if verdict, ok := r.cache.Get("tenant:" + key); ok {
		return verdict
	}

	verdict := r.resolveTenant(model, key)
	r.cache.Set("tenant:"+key, verdict)
	return verdict
}

func (r *ModelResolver) resolveTenant(model interface{}, key string) bool {
	if _, ok := model.(TenantScoped); ok {
		return true
	}
	if panel := r.ActivePanel(); panel != nil && contains(panel.TenantModels(), key) {
		return true
	}
	return contains(r.global.TenantModels, key)
}

// IsCentralModel reports whether the model lives in the central database.
// Mirrors IsTenantModel, but an entirely unconfigured model is central: that
// asymmetry makes central the default home for new models.
func (r *ModelResolver) IsCentralModel(model interface{}) bool {
	key := ModelKey(model)
	if verdict, ok := r.cache.Get("central:" + key); ok {
		return verdict
	}

	verdict := r.resolveCentral(model, key)
	r.cache.Set("central:"+key, verdict)
	return verdict
}

func (r *ModelResolver) resolveCentral(model interface{}, key string) bool {
	if _, ok := model.(CentralScoped); ok {
		return true
	}
	if panel := r.ActivePanel(); panel != nil && contains(panel.CentralModels(), key) {
		return true
	}
	if contains(r.global.CentralModels, key) {
		return true
	}
	return !r.IsTenantModel(model)
}

// GetConnectionName returns the logical connection a model's queries should
// run on: the reserved "tenant" alias or the configured central connection.
func (r *ModelResolver) GetConnectionName(model interface{}) string {
	if r.IsTenantModel(model) {
		return TenantConnectionName
	}
	return r.global.CentralConnection
}

// GetTenantModels returns the de-duplicated union of the global and active
// panel tenant model lists.
func (r *ModelResolver) GetTenantModels() []string {
	panelModels := []string(nil)
	if panel := r.ActivePanel(); panel != nil {
		panelModels = panel.TenantModels()
	}
	return dedupe(r.global.TenantModels, panelModels)
}

// GetCentralModels returns the de-duplicated union of the global and active
// panel central model lists.
func (r *ModelResolver) GetCentralModels() []string {
	panelModels := []string(nil)
	if panel := r.ActivePanel(); panel != nil {
		panelModels = panel.CentralModels()
	}
	return dedupe(r.global.CentralModels, panelModels)
}

// RegisterTenantModel force-classifies a model as tenant-scoped at runtime,
// bypassing markers and config. The opposite verdict is cleared so the model
// is unambiguous.
func (r *ModelResolver) RegisterTenantModel(model interface{}) {
	key := ModelKey(model)
	r.cache.Set("tenant:"+key, true)
	r.cache.Set("central:"+key, false)
}

// RegisterCentralModel force-classifies a model as central at runtime.
func (r *ModelResolver) RegisterCentralModel(model interface{}) {
	key := ModelKey(model)
	r.cache.Set("central:"+key, true)
	r.cache.Set("tenant:"+key, false)
}

// ClearCache drops all memoized verdicts. Needed between test cases and when
// panel context changes out from under the resolver.
func (r *ModelResolver) ClearCache() {
	r.cache.Clear()
}

func contains(list []string, key string) bool {
	for _, item := range list {
		if item == key {
			return true
		}
	}
	return false
}

func dedupe(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, item := range list {
			if !seen[item] {
				seen[item] = true
				out = append(out, item)
			}
		}
	}
	return out
}
