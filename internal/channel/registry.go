// ABOUTME: Registry resolves a package path's last element to a channel factory; the closed tagged-sum DESIGN.md describes in place of the original's duck-typed class predicates.
// ABOUTME: An unregistered type is a Usage error: an invalid object class passed to schema parse.

package channel

import (
	"fmt"

	"github.com/loomwork/chanstore/internal/dstore"
)

// Kind is the closed tagged sum replacing the original's
// isDataObjectClass/isSharedObjectKind duck-typed predicates: every
// registrable channel type is one of these two shapes.
type Kind int

const (
	// KindSharedObject is a bare shared-object channel (no factory method
	// beyond construction), e.g. KV.
	KindSharedObject Kind = iota
	// KindDataObject is a channel that participates in the object-class
	// factory path, e.g. Note.
	KindDataObject
)

// Registry maps a package path's type tag to a constructor.
type Registry struct {
	factories map[string]dstore.ChannelFactory
	kinds     map[string]Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]dstore.ChannelFactory),
		kinds:     make(map[string]Kind),
	}
}

// Register associates typeName (the last element of a package path) with a
// factory and its kind.
func (r *Registry) Register(typeName string, kind Kind, factory dstore.ChannelFactory) {
	r.factories[typeName] = factory
	r.kinds[typeName] = kind
}

// Resolve implements dstore.Registry: the factory registered for the last
// element of packagePath, or a Usage-shaped error if none is registered.
func (r *Registry) Resolve(packagePath []string) (dstore.ChannelFactory, error) {
	if len(packagePath) == 0 {
		return nil, fmt.Errorf("empty package path")
	}
	typeName := packagePath[len(packagePath)-1]
	factory, ok := r.factories[typeName]
	if !ok {
		return nil, fmt.Errorf("no registered channel for type %q", typeName)
	}
	return factory, nil
}

// KindOf reports the registered Kind for typeName, defaulting to
// KindSharedObject if typeName was never registered.
func (r *Registry) KindOf(typeName string) Kind {
	return r.kinds[typeName]
}

// NewDefaultRegistry returns a Registry with the two reference channels
// registered under their conventional type tags.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("kv", KindSharedObject, NewKV)
	r.Register("note", KindDataObject, NewNote)
	return r
}
