package di

import (
	"reflect"
	"strconv"
	"strings"
)

// Lifetime controls how long a resolved service lives.
type Lifetime int

const (
	// Singleton services are created once per Container.
	Singleton Lifetime = iota
	// Scoped services are created once per Scope.
	Scoped
	// Transient services are created on every request.
	Transient
)

func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	case Transient:
		return "transient"
	default:
		return "lifetime(" + strconv.Itoa(int(l)) + ")"
	}
}

// Factory creates a service instance.
type Factory func(sp ServiceProvider) (any, error)

// GenericFactory creates an instance of the closed type t for an open-generic
// registration.
type GenericFactory func(sp ServiceProvider, t reflect.Type) (any, error)

// Registration describes how a service type is provided.
type Registration struct {
	ServiceType reflect.Type
	Lifetime    Lifetime

	// Generic is true when the registration matched through an open-generic
	// registration rather than an exact one.
	Generic bool

	key     string
	factory Factory
}

// IsSingleton reports whether the registration has singleton lifetime.
func (r Registration) IsSingleton() bool { return r.Lifetime == Singleton }

// RegistrationSource reports the registrations that would satisfy a request
// for a type. Pipeline generation depends only on this interface.
type RegistrationSource interface {
	Registrations(t reflect.Type) []Registration
}

// ServiceProvider resolves services.
type ServiceProvider interface {
	// GetService returns the last registered service for t. Requests for a
	// slice type with no registration of their own resolve every registration
	// of the element type, and an empty slice when there are none.
	GetService(t reflect.Type) (any, error)

	// GetServices resolves every registration for t in registration order.
	GetServices(t reflect.Type) ([]any, error)
}

type genericRegistration struct {
	family   string
	lifetime Lifetime
	factory  GenericFactory
	id       int
}

// ServiceCollection is the list of service registrations a Container is built
// from. It is not safe for concurrent modification.
type ServiceCollection struct {
	regs     []Registration
	byType   map[reflect.Type][]int
	generics []genericRegistration
}

// NewServiceCollection creates an empty collection.
func NewServiceCollection() *ServiceCollection {
	return &ServiceCollection{byType: make(map[reflect.Type][]int)}
}

// Add registers factory for t.
func (c *ServiceCollection) Add(t reflect.Type, lifetime Lifetime, factory Factory) error {
	if factory == nil {
		return ErrNilFactory
	}
	id := len(c.regs)
	c.regs = append(c.regs, Registration{
		ServiceType: t,
		Lifetime:    lifetime,
		key:         "svc:" + strconv.Itoa(id) + ":" + t.String(),
		factory:     factory,
	})
	c.byType[t] = append(c.byType[t], id)
	return nil
}

// AddOpenGeneric registers factory for every instantiation of the generic type
// exemplar belongs to. Any instantiation serves as the exemplar, e.g.
// reflect.TypeFor[Options[struct{}]]().
//
// Exact registrations always take precedence over open-generic ones.
func (c *ServiceCollection) AddOpenGeneric(exemplar reflect.Type, lifetime Lifetime, factory GenericFactory) error {
	if factory == nil {
		return ErrNilFactory
	}
	c.generics = append(c.generics, genericRegistration{
		family:   genericFamily(exemplar),
		lifetime: lifetime,
		factory:  factory,
		id:       len(c.generics),
	})
	return nil
}

// Registrations implements RegistrationSource.
func (c *ServiceCollection) Registrations(t reflect.Type) []Registration {
	if ids := c.byType[t]; len(ids) > 0 {
		out := make([]Registration, len(ids))
		for i, id := range ids {
			out[i] = c.regs[id]
		}
		return out
	}

	family := genericFamily(t)
	if family == "" {
		return nil
	}
	var out []Registration
	for _, g := range c.generics {
		if g.family != family {
			continue
		}
		out = append(out, Registration{
			ServiceType: t,
			Lifetime:    g.lifetime,
			Generic:     true,
			key:         "generic:" + strconv.Itoa(g.id) + ":" + t.String(),
			factory: func(sp ServiceProvider) (any, error) {
				return g.factory(sp, t)
			},
		})
	}
	return out
}

// Len returns the number of exact registrations.
func (c *ServiceCollection) Len() int { return len(c.regs) }

// genericFamily identifies the generic type t is an instantiation of, or
// returns "" for non-generic types.
func genericFamily(t reflect.Type) string {
	prefix := ""
	for t.Kind() == reflect.Pointer {
		prefix += "*"
		t = t.Elem()
	}
	name := t.Name()
	i := strings.IndexByte(name, '[')
	if i < 0 {
		return ""
	}
	return prefix + t.PkgPath() + "." + name[:i]
}

// AddSingleton registers a singleton factory for T.
func AddSingleton[T any](c *ServiceCollection, factory func(sp ServiceProvider) (T, error)) error {
	return c.Add(reflect.TypeFor[T](), Singleton, wrap(factory))
}

// AddScoped registers a scoped factory for T.
func AddScoped[T any](c *ServiceCollection, factory func(sp ServiceProvider) (T, error)) error {
	return c.Add(reflect.TypeFor[T](), Scoped, wrap(factory))
}

// AddTransient registers a transient factory for T.
func AddTransient[T any](c *ServiceCollection, factory func(sp ServiceProvider) (T, error)) error {
	return c.Add(reflect.TypeFor[T](), Transient, wrap(factory))
}

// AddValue registers an existing value as a singleton T.
func AddValue[T any](c *ServiceCollection, v T) error {
	return c.Add(reflect.TypeFor[T](), Singleton, func(ServiceProvider) (any, error) {
		return v, nil
	})
}

func wrap[T any](factory func(sp ServiceProvider) (T, error)) Factory {
	if factory == nil {
		return nil
	}
	return func(sp ServiceProvider) (any, error) {
		return factory(sp)
	}
}
