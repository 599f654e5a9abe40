package blueprint

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
)

// OperationDescriptor describes one operation type: its name, flags, links and
// responses. Descriptors are created at configuration time and registered with
// a DataModel.
type OperationDescriptor struct {
	operationType reflect.Type
	handlerType   reflect.Type

	// Name is the operation type name with any Query or Command suffix removed.
	Name string

	// Source records where the descriptor came from, for diagnostics.
	Source string

	// Properties are the exported fields of a struct operation.
	Properties []reflect.StructField

	// PropertyTags maps each property name to its struct tag.
	PropertyTags map[string]reflect.StructTag

	AnonymousAccessAllowed   bool
	IsExposed                bool
	ShouldAudit              bool
	RecordPerformanceMetrics bool
	AllowMultipleHandlers    bool
	RequiresReturnValue      bool

	Links     []*Link
	Responses []ResponseDescriptor

	features map[reflect.Type]any
}

// ResponseDescriptor documents one possible outcome of an operation.
type ResponseDescriptor struct {
	Type        reflect.Type
	Code        ErrorCode // empty for successful responses
	Description string
}

// DescriptorOption configures an OperationDescriptor.
type DescriptorOption func(*OperationDescriptor) error

// Describe creates a descriptor for operation type T.
// T is either a struct, in which case operations are passed around as *T, or
// an interface implemented by several concrete operation types.
func Describe[T any](source string, opts ...DescriptorOption) (*OperationDescriptor, error) {
	t := reflect.TypeFor[T]()
	d, err := NewOperationDescriptor(t, source)
	if err != nil {
		return nil, err
	}
	if t.Kind() == reflect.Interface {
		d.handlerType = reflect.TypeFor[Handler[T]]()
	} else {
		d.handlerType = reflect.TypeFor[Handler[*T]]()
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, fmt.Errorf("describe %s: %w", t, err)
		}
	}
	return d, nil
}

// MustDescribe is like Describe but panics on error.
func MustDescribe[T any](source string, opts ...DescriptorOption) *OperationDescriptor {
	d, err := Describe[T](source, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// NewOperationDescriptor creates a descriptor for t without a handler type.
// Pointer types are dereferenced.
func NewOperationDescriptor(t reflect.Type, source string) (*OperationDescriptor, error) {
	if t == nil {
		return nil, fmt.Errorf("blueprint: nil operation type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct && t.Kind() != reflect.Interface {
		return nil, fmt.Errorf("blueprint: operation type %s must be a struct or interface", t)
	}
	if t.Name() == "" {
		return nil, fmt.Errorf("blueprint: operation type %s must be a named type", t)
	}

	d := &OperationDescriptor{
		operationType:       t,
		Name:                OperationName(t),
		Source:              source,
		PropertyTags:        map[string]reflect.StructTag{},
		IsExposed:           true,
		RequiresReturnValue: strings.HasSuffix(baseName(t), "Query"),
		features:            map[reflect.Type]any{},
	}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			d.Properties = append(d.Properties, f)
			d.PropertyTags[f.Name] = f.Tag
		}
	}
	return d, nil
}

// OperationName derives an operation's name from its type: the Query or
// Command suffix is removed and the result is pascal-cased.
func OperationName(t reflect.Type) string {
	name := baseName(t)
	for _, suffix := range []string{"Query", "Command"} {
		if trimmed, ok := strings.CutSuffix(name, suffix); ok && trimmed != "" {
			name = trimmed
			break
		}
	}
	return strcase.ToCamel(name)
}

// baseName is the type name without generic arguments.
func baseName(t reflect.Type) string {
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name
}

// OperationType is the type this descriptor was created for.
func (d *OperationDescriptor) OperationType() reflect.Type {
	return d.operationType
}

// HandlerType is the Handler interface type resolved for this operation, or nil
// if the descriptor was created with NewOperationDescriptor.
func (d *OperationDescriptor) HandlerType() reflect.Type {
	return d.handlerType
}

// ValueType is the type operation values have at runtime: *T for struct
// operations, the interface type itself otherwise.
func (d *OperationDescriptor) ValueType() reflect.Type {
	if d.operationType.Kind() == reflect.Interface {
		return d.operationType
	}
	return reflect.PointerTo(d.operationType)
}

// IsInterface reports whether the descriptor covers every type implementing
// an interface.
func (d *OperationDescriptor) IsInterface() bool {
	return d.operationType.Kind() == reflect.Interface
}

// Matches reports whether t is handled by this descriptor.
func (d *OperationDescriptor) Matches(t reflect.Type) bool {
	if t == d.operationType || t == reflect.PointerTo(d.operationType) {
		return true
	}
	return d.IsInterface() && t.Implements(d.operationType)
}

// AddLink attaches a link created against this descriptor.
func (d *OperationDescriptor) AddLink(l *Link) error {
	if l == nil || l.Operation != d {
		return ErrForeignLink
	}
	d.Links = append(d.Links, l)
	return nil
}

// AddResponse records a possible response.
func (d *OperationDescriptor) AddResponse(r ResponseDescriptor) {
	d.Responses = append(d.Responses, r)
}

// SetFeature stores data for an extension keyed by key.
// Each key may be written once.
func (d *OperationDescriptor) SetFeature(key reflect.Type, v any) error {
	if _, exists := d.features[key]; exists {
		return fmt.Errorf("%w: %s on %s", ErrFeatureAlreadySet, key, d.operationType)
	}
	d.features[key] = v
	return nil
}

// Feature returns the data stored for key.
func (d *OperationDescriptor) Feature(key reflect.Type) (any, bool) {
	v, ok := d.features[key]
	return v, ok
}

// SetFeatureData stores v keyed by its own type K.
func SetFeatureData[K any](d *OperationDescriptor, v K) error {
	return d.SetFeature(reflect.TypeFor[K](), v)
}

// FeatureData returns the value of type K stored on d.
func FeatureData[K any](d *OperationDescriptor) (K, bool) {
	v, ok := d.features[reflect.TypeFor[K]()]
	if !ok {
		var zero K
		return zero, false
	}
	return v.(K), true
}

func (d *OperationDescriptor) String() string {
	return d.Name + " (" + d.operationType.String() + ")"
}

// AllowAnonymous marks the operation as not requiring an authenticated user.
func AllowAnonymous() DescriptorOption {
	return func(d *OperationDescriptor) error {
		d.AnonymousAccessAllowed = true
		return nil
	}
}

// Audit marks the operation for auditing.
func Audit() DescriptorOption {
	return func(d *OperationDescriptor) error {
		d.ShouldAudit = true
		return nil
	}
}

// RecordMetrics enables performance logging for the operation.
func RecordMetrics() DescriptorOption {
	return func(d *OperationDescriptor) error {
		d.RecordPerformanceMetrics = true
		return nil
	}
}

// Internal hides the operation from external callers.
func Internal() DescriptorOption {
	return func(d *OperationDescriptor) error {
		d.IsExposed = false
		return nil
	}
}

// AllowMultipleHandlers allows more than one handler to be registered.
func AllowMultipleHandlers() DescriptorOption {
	return func(d *OperationDescriptor) error {
		d.AllowMultipleHandlers = true
		return nil
	}
}

// RequireReturnValue overrides the default derived from the type name.
func RequireReturnValue(required bool) DescriptorOption {
	return func(d *OperationDescriptor) error {
		d.RequiresReturnValue = required
		return nil
	}
}

// WithLink attaches a link. resourceType may be nil for links that are not
// associated with a resource.
func WithLink(urlFormat, rel string, resourceType reflect.Type) DescriptorOption {
	return func(d *OperationDescriptor) error {
		l, err := NewLink(d, urlFormat, rel, resourceType)
		if err != nil {
			return err
		}
		return d.AddLink(l)
	}
}

// WithResponse documents a response.
func WithResponse(t reflect.Type, code ErrorCode, description string) DescriptorOption {
	return func(d *OperationDescriptor) error {
		d.AddResponse(ResponseDescriptor{Type: t, Code: code, Description: description})
		return nil
	}
}

// WithFeature stores extension data.
func WithFeature(key reflect.Type, v any) DescriptorOption {
	return func(d *OperationDescriptor) error {
		return d.SetFeature(key, v)
	}
}
