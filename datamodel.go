package blueprint

import (
	"fmt"
	"reflect"
)

// DataModel is the registry of operations and links.
//
// It is populated during configuration and only read afterwards, so reads take
// no locks. Registering while other goroutines read is not supported.
type DataModel struct {
	operations []*OperationDescriptor
	byType     map[reflect.Type]*OperationDescriptor

	links           []*Link
	linksByResource map[reflect.Type][]*Link
	linksByOp       map[reflect.Type][]*Link
}

// NewDataModel creates an empty data model.
func NewDataModel() *DataModel {
	return &DataModel{
		byType:          make(map[reflect.Type]*OperationDescriptor),
		linksByResource: make(map[reflect.Type][]*Link),
		linksByOp:       make(map[reflect.Type][]*Link),
	}
}

// RegisterOperation adds a descriptor and all of its links.
// Links are checked before anything is stored, so a failed registration leaves
// the model unchanged.
func (m *DataModel) RegisterOperation(d *OperationDescriptor) error {
	if existing, ok := m.byType[d.OperationType()]; ok {
		return &DuplicateOperationError{Type: d.OperationType(), Source: d.Source, ExistingSource: existing.Source}
	}
	for i, l := range d.Links {
		if l == nil {
			return fmt.Errorf("%w: nil link on %s", ErrForeignLink, d)
		}
		if l.Operation != d {
			return fmt.Errorf("%w: link %s is attached to %s", ErrForeignLink, l, d)
		}
		if err := m.checkLink(l); err != nil {
			return err
		}
		for _, prev := range d.Links[:i] {
			if err := conflict(l, prev); err != nil {
				return err
			}
		}
	}

	m.operations = append(m.operations, d)
	m.byType[d.OperationType()] = d
	for _, l := range d.Links {
		m.storeLink(l)
	}
	return nil
}

// RegisterLink adds a link to an already registered operation.
// The link is also attached to its descriptor.
func (m *DataModel) RegisterLink(l *Link) error {
	if l == nil || l.Operation == nil {
		return ErrForeignLink
	}
	if m.byType[l.Operation.OperationType()] != l.Operation {
		return &MissingOperationError{Type: l.Operation.OperationType()}
	}
	if err := m.checkLink(l); err != nil {
		return err
	}
	if err := l.Operation.AddLink(l); err != nil {
		return err
	}
	m.storeLink(l)
	return nil
}

func (m *DataModel) checkLink(l *Link) error {
	if l.Operation == nil {
		return ErrForeignLink
	}
	for _, existing := range m.linksByResource[l.ResourceType] {
		if err := conflict(l, existing); err != nil {
			return err
		}
	}
	return nil
}

// conflict applies the uniqueness rules to two links.
func conflict(l, existing *Link) error {
	if l.ResourceType != existing.ResourceType {
		return nil
	}
	if l.URLFormat == existing.URLFormat && l.Operation.Name == existing.Operation.Name {
		return &DuplicateLinkError{Link: l, Existing: existing}
	}
	if l.ResourceType != nil && l.Rel == existing.Rel {
		return &DuplicateLinkError{Link: l, Existing: existing, Rel: true}
	}
	return nil
}

func (m *DataModel) storeLink(l *Link) {
	m.links = append(m.links, l)
	m.linksByResource[l.ResourceType] = append(m.linksByResource[l.ResourceType], l)
	opType := l.Operation.OperationType()
	m.linksByOp[opType] = append(m.linksByOp[opType], l)
}

// Operations returns all descriptors in registration order.
func (m *DataModel) Operations() []*OperationDescriptor {
	return m.operations
}

// Links returns every registered link.
func (m *DataModel) Links() []*Link {
	return m.links
}

// GetLinksForResource returns the links attached to a resource type.
// The result is never nil and must not be modified.
func (m *DataModel) GetLinksForResource(resourceType reflect.Type) []*Link {
	for resourceType != nil && resourceType.Kind() == reflect.Pointer {
		resourceType = resourceType.Elem()
	}
	if links, ok := m.linksByResource[resourceType]; ok {
		return links
	}
	return []*Link{}
}

// GetLinksForOperation returns the links that point at an operation type.
func (m *DataModel) GetLinksForOperation(operationType reflect.Type) []*Link {
	if d, ok := m.TryFindOperation(operationType); ok {
		if links, ok := m.linksByOp[d.OperationType()]; ok {
			return links
		}
	}
	return []*Link{}
}

// FindOperation returns the descriptor for t. A concrete type that implements
// a registered interface operation resolves to that interface's descriptor.
func (m *DataModel) FindOperation(t reflect.Type) (*OperationDescriptor, error) {
	if d, ok := m.TryFindOperation(t); ok {
		return d, nil
	}
	return nil, &MissingOperationError{Type: t}
}

// TryFindOperation is like FindOperation but reports a miss with false.
func (m *DataModel) TryFindOperation(t reflect.Type) (*OperationDescriptor, bool) {
	if t == nil {
		return nil, false
	}
	elem := t
	for elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if d, ok := m.byType[elem]; ok {
		return d, true
	}
	// Operation counts are small; a linear scan over interface descriptors is
	// cheaper than maintaining an implements index.
	for _, d := range m.operations {
		if d.IsInterface() && (t.Implements(d.OperationType()) || reflect.PointerTo(elem).Implements(d.OperationType())) {
			return d, true
		}
	}
	return nil, false
}
