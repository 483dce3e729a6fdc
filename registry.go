package eventstore

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog/log"
)

var registry = NewRegistry()

type typeBuilder func() interface{}

// Registry is a type registry meant to be used as a way to get interfaces from type names
type Registry struct {
	mu      sync.RWMutex
	entries map[string]typeBuilder
}

// NewRegistry creates an empty type registry
func NewRegistry() *Registry {
	return &Registry{
		entries: map[string]typeBuilder{},
	}
}

// Register adds the given interface to the registry of known types
func (r *Registry) Register(i EventPayload) error {
	t := reflect.TypeOf(i)
	if t.Kind() == reflect.Ptr {
		return fmt.Errorf("Pointers not allowed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := i.PayloadType()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("Event payload already registered with name '%s'", name)
	}

	r.entries[name] = func() interface{} {
		return reflect.New(t).Interface()
	}

	return nil
}

// ResolveType looks for a registered type and returns a new pointer to it
func (r *Registry) ResolveType(name string) (interface{}, error) {
	r.mu.RLock()
	resolve, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("No type registered for '%s'", name)
	}

	return resolve(), nil
}

// Registered reports whether a type name is known
func (r *Registry) Registered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Register event type with payload value
func Register(i EventPayload) {
	err := registry.Register(i)
	if err != nil {
		log.
			Fatal().
			Err(err).
			Msg("Failed registering event type")
	}
}

func resolveType(name string) (interface{}, error) {
	return registry.ResolveType(name)
}

func checkRegistered(events []*Event) error {
	for _, event := range events {
		if !registry.Registered(event.Type) {
			return fmt.Errorf("No type registered for '%s'", event.Type)
		}
	}
	return nil
}
