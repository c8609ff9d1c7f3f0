package tenancy

import (
	"sync"

	"tenancy-service/internal/model"
)

// Event names emitted on completed tenant state transitions. Subscribers are
// notified after the fact; events are not part of the control flow.
const (
	EventTenantCreated         = "tenant.created"
	EventTenantDeleted         = "tenant.deleted"
	EventTenantDatabaseCreated = "tenant.database_created"
)

// Event carries the tenant a lifecycle transition completed for.
type Event struct {
	Name   string
	Tenant *model.Tenant
}

// Listener receives lifecycle events.
type Listener func(Event)

// Dispatcher is a minimal in-process pub/sub for tenant lifecycle events.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[string][]Listener)}
}

// Subscribe registers a listener for an event name.
func (d *Dispatcher) Subscribe(name string, listener Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[name] = append(d.listeners[name], listener)
}

// Dispatch synchronously notifies all listeners of the event.
func (d *Dispatcher) Dispatch(event Event) {
	d.mu.RLock()
	listeners := d.listeners[event.Name]
	d.mu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}
