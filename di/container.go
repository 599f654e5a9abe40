package di

import (
	"errors"
	"io"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/samber/do"
)

// Container resolves services registered on a ServiceCollection.
// It is safe for concurrent use.
type Container struct {
	source   *ServiceCollection
	injector *do.Injector

	mu       sync.Mutex
	provided map[string]bool

	root   *Scope
	closed atomic.Bool
}

// Build creates a Container. Later changes to the collection are not seen by
// the container.
func (c *ServiceCollection) Build() *Container {
	snapshot := &ServiceCollection{
		regs:     append([]Registration(nil), c.regs...),
		byType:   make(map[reflect.Type][]int, len(c.byType)),
		generics: append([]genericRegistration(nil), c.generics...),
	}
	for t, ids := range c.byType {
		snapshot.byType[t] = append([]int(nil), ids...)
	}

	ctr := &Container{
		source:   snapshot,
		injector: do.New(),
		provided: make(map[string]bool),
	}
	ctr.root = &Scope{container: ctr, instances: make(map[string]any)}
	return ctr
}

// Registrations implements RegistrationSource.
func (c *Container) Registrations(t reflect.Type) []Registration {
	return c.source.Registrations(t)
}

// GetService implements ServiceProvider using the root scope.
func (c *Container) GetService(t reflect.Type) (any, error) {
	return c.root.GetService(t)
}

// GetServices implements ServiceProvider using the root scope.
func (c *Container) GetServices(t reflect.Type) ([]any, error) {
	return c.root.GetServices(t)
}

// CreateScope starts a new scope. Scoped services resolved through it are
// shared until the scope is closed.
func (c *Container) CreateScope() *Scope {
	return &Scope{container: c, instances: make(map[string]any)}
}

// Close shuts down every singleton that implements do.Shutdownable and closes
// the root scope.
func (c *Container) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return errors.Join(c.root.Close(), c.injector.Shutdown())
}

func (c *Container) singleton(reg Registration) (any, error) {
	c.mu.Lock()
	if !c.provided[reg.key] {
		do.ProvideNamed[any](c.injector, reg.key, func(*do.Injector) (any, error) {
			return create(reg, c.root)
		})
		c.provided[reg.key] = true
	}
	c.mu.Unlock()

	return do.InvokeNamed[any](c.injector, reg.key)
}

// Scope resolves scoped services for one unit of work, typically one operation.
type Scope struct {
	container *Container

	mu        sync.Mutex
	instances map[string]any
	order     []any
}

// GetService implements ServiceProvider.
func (s *Scope) GetService(t reflect.Type) (any, error) {
	if s.container.closed.Load() {
		return nil, ErrClosed
	}
	regs := s.container.Registrations(t)
	if len(regs) == 0 {
		if t.Kind() == reflect.Slice {
			return s.resolveSlice(t)
		}
		return nil, &MissingServiceError{Type: t}
	}
	return s.resolve(regs[len(regs)-1])
}

// GetServices implements ServiceProvider.
func (s *Scope) GetServices(t reflect.Type) ([]any, error) {
	if s.container.closed.Load() {
		return nil, ErrClosed
	}
	regs := s.container.Registrations(t)
	out := make([]any, 0, len(regs))
	for _, reg := range regs {
		v, err := s.resolve(reg)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Scope) resolveSlice(t reflect.Type) (any, error) {
	all, err := s.GetServices(t.Elem())
	if err != nil {
		return nil, err
	}
	slice := reflect.MakeSlice(t, len(all), len(all))
	for i, v := range all {
		if v != nil {
			slice.Index(i).Set(reflect.ValueOf(v))
		}
	}
	return slice.Interface(), nil
}

func (s *Scope) resolve(reg Registration) (any, error) {
	switch reg.Lifetime {
	case Singleton:
		return s.container.singleton(reg)
	case Scoped:
		s.mu.Lock()
		v, ok := s.instances[reg.key]
		s.mu.Unlock()
		if ok {
			return v, nil
		}
		// The factory runs unlocked so it can resolve other scoped services.
		v, err := create(reg, s)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.instances[reg.key]; ok {
			return existing, nil
		}
		s.instances[reg.key] = v
		s.order = append(s.order, v)
		return v, nil
	default:
		return create(reg, s)
	}
}

// Close closes scoped instances implementing io.Closer, newest first.
func (s *Scope) Close() error {
	s.mu.Lock()
	order := s.order
	s.order = nil
	s.instances = make(map[string]any)
	s.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		if c, ok := order[i].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func create(reg Registration, sp ServiceProvider) (any, error) {
	v, err := reg.factory(sp)
	if err != nil {
		return nil, &ResolveError{Type: reg.ServiceType, Err: err}
	}
	if v != nil && !reflect.TypeOf(v).AssignableTo(reg.ServiceType) {
		return nil, &WrongTypeError{Type: reg.ServiceType, GotType: reflect.TypeOf(v)}
	}
	return v, nil
}
