package binding

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/danmuck/clusternode/internal/runtime"
)

var (
	ErrManualField   = errors.New("binding: field is manually updated")
	ErrValueType     = errors.New("binding: value does not fit field")
	ErrTargetType    = errors.New("binding: target is not the bound context type")
	ErrNoFieldSetter = errors.New("binding: tag has no field")
)

// Shape is how a field value is constructed from a raw reference.
type Shape uint8

const (
	// ShapeIdentity stores the raw reference as-is.
	ShapeIdentity Shape = iota
	// ShapeAdapter wraps the reference into a runtime.InterfacedRef-based type.
	ShapeAdapter
	// ShapeCustom passes the reference to a single-argument constructor.
	ShapeCustom
	// ShapeUnresolved has no constructor; only a context hook can supply a value.
	ShapeUnresolved
	// ShapeManualOnly has no field at all.
	ShapeManualOnly
)

func (s Shape) String() string {
	switch s {
	case ShapeIdentity:
		return "identity"
	case ShapeAdapter:
		return "adapter"
	case ShapeCustom:
		return "custom"
	case ShapeUnresolved:
		return "unresolved"
	case ShapeManualOnly:
		return "manual-only"
	default:
		return fmt.Sprintf("shape(%d)", uint8(s))
	}
}

type Option func(*Field)

// ManualUpdate keeps the tag monitored but never lets the binder write the field.
func ManualUpdate() Option {
	return func(f *Field) {
		f.manual = true
	}
}

// Field is the declared (constructor, setter, manual) triple for one tag.
type Field struct {
	tag       string
	shape     Shape
	manual    bool
	fieldType string
	construct func(runtime.Ref) any
	set       func(target any, value any) error
	clear     func(target any) error
}

func (f Field) Tag() string {
	return f.tag
}

func (f Field) Shape() Shape {
	return f.shape
}

func (f Field) Manual() bool {
	return f.manual
}

// FieldType names the Go type of the bound field, empty for manual-only tags.
func (f Field) FieldType() string {
	return f.fieldType
}

// Resolvable reports whether the field has a constructor.
func (f Field) Resolvable() bool {
	return f.construct != nil
}

// Construct builds the field value for ref; nil when there is no constructor.
func (f Field) Construct(ref runtime.Ref) any {
	if f.construct == nil || ref == nil {
		return nil
	}
	return f.construct(ref)
}

// Set writes value into the bound field of target.
func (f Field) Set(target any, value any) error {
	if f.manual {
		return fmt.Errorf("%w: %s", ErrManualField, f.tag)
	}
	if f.set == nil {
		return fmt.Errorf("%w: %s", ErrNoFieldSetter, f.tag)
	}
	return f.set(target, value)
}

// Clear resets the bound field of target to its zero value.
func (f Field) Clear(target any) error {
	if f.manual {
		return fmt.Errorf("%w: %s", ErrManualField, f.tag)
	}
	if f.clear == nil {
		return fmt.Errorf("%w: %s", ErrNoFieldSetter, f.tag)
	}
	return f.clear(target)
}

// Ref binds tag to a field holding the raw reference.
func Ref[C any](tag string, field func(C) *runtime.Ref, opts ...Option) Field {
	return bind(tag, ShapeIdentity, field, func(ref runtime.Ref) any { return ref }, opts)
}

// Adapted binds tag to a typed reference wrapper built from runtime.InterfacedRef.
func Adapted[C any, T any](tag string, field func(C) *T, wrap func(runtime.InterfacedRef) T, opts ...Option) Field {
	if wrap == nil {
		return bind[C, T](tag, ShapeUnresolved, field, nil, opts)
	}
	return bind(tag, ShapeAdapter, field, func(ref runtime.Ref) any {
		return wrap(runtime.Interfaced(ref))
	}, opts)
}

// Wrapped binds tag to a field whose value is built by a single-argument constructor.
func Wrapped[C any, T any](tag string, field func(C) *T, ctor func(runtime.Ref) T, opts ...Option) Field {
	if ctor == nil {
		return bind[C, T](tag, ShapeUnresolved, field, nil, opts)
	}
	return bind(tag, ShapeCustom, field, func(ref runtime.Ref) any {
		return ctor(ref)
	}, opts)
}

// Unresolved binds tag to a field with no constructor. The binder leaves it
// unset unless the context hook supplies a value; Registry.Validate reports it.
func Unresolved[C any, T any](tag string, field func(C) *T, opts ...Option) Field {
	return bind[C, T](tag, ShapeUnresolved, field, nil, opts)
}

// Manual declares a monitored tag without a field. The owning context reacts
// to it through its reference hooks.
func Manual(tag string) Field {
	return Field{tag: tag, shape: ShapeManualOnly, manual: true}
}

func bind[C any, T any](tag string, shape Shape, field func(C) *T, construct func(runtime.Ref) any, opts []Option) Field {
	f := Field{
		tag:       tag,
		shape:     shape,
		fieldType: typeName[T](),
		construct: construct,
	}
	if field != nil {
		f.set = func(target any, value any) error {
			c, ok := target.(C)
			if !ok {
				return fmt.Errorf("%w: %s want %s got %T", ErrTargetType, tag, typeName[C](), target)
			}
			v, ok := value.(T)
			if !ok {
				return fmt.Errorf("%w: %s want %s got %T", ErrValueType, tag, f.fieldType, value)
			}
			*field(c) = v
			return nil
		}
		f.clear = func(target any) error {
			c, ok := target.(C)
			if !ok {
				return fmt.Errorf("%w: %s want %s got %T", ErrTargetType, tag, typeName[C](), target)
			}
			var zero T
			*field(c) = zero
			return nil
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&f)
		}
	}
	return f
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
