package pipeline

import (
	"reflect"

	"github.com/broady/blueprint/codegen"
	"github.com/broady/blueprint/di"
)

// InstanceFrameProvider decides how a generated pipeline obtains a service:
// a constructor-injected field for a lone singleton, a per-call resolve for
// anything else, and an empty slice for slice requests nothing provides.
type InstanceFrameProvider struct {
	source di.RegistrationSource
}

// NewInstanceFrameProvider creates a provider over source.
func NewInstanceFrameProvider(source di.RegistrationSource) *InstanceFrameProvider {
	return &InstanceFrameProvider{source: source}
}

// ArgumentName is the field or local name used for a service of type t.
func ArgumentName(t reflect.Type) string {
	return codegen.DefaultName(t)
}

// VariableFromContainer is like TryGetVariableFromContainer but fails with
// *di.MissingServiceError when nothing provides t.
func (p *InstanceFrameProvider) VariableFromContainer(typ *codegen.GeneratedType, services *codegen.Variable, t reflect.Type) (*codegen.Variable, error) {
	v, err := p.TryGetVariableFromContainer(typ, services, t)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &di.MissingServiceError{Type: t}
	}
	return v, nil
}

// TryGetVariableFromContainer returns a variable holding a t, injecting a
// field on typ when t is a single singleton. It returns nil, nil when nothing
// provides t. services is the di.ServiceProvider variable per-call resolves
// read from.
func (p *InstanceFrameProvider) TryGetVariableFromContainer(typ *codegen.GeneratedType, services *codegen.Variable, t reflect.Type) (*codegen.Variable, error) {
	regs := p.source.Registrations(t)
	switch {
	case len(regs) == 0:
		if t.Kind() != reflect.Slice {
			return nil, nil
		}
		if len(p.source.Registrations(t.Elem())) == 0 {
			return codegen.EmptySlice(t), nil
		}
		return NewGetServiceFrame(services, t).Out, nil

	case len(regs) == 1 && regs[0].IsSingleton():
		f, err := typ.InjectField(ArgumentName(t), t)
		if err != nil {
			return nil, err
		}
		return f.Variable, nil

	default:
		return NewGetServiceFrame(services, t).Out, nil
	}
}
