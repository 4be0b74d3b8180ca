package binding

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrDuplicateTag          = errors.New("binding: duplicate tag")
	ErrEmptyTag              = errors.New("binding: empty tag")
	ErrUnresolvedConstructor = errors.New("binding: no constructor for bound field")
)

// DuplicateTagError means two fields of one context declare the same tag.
type DuplicateTagError struct {
	Tag string
}

func (e DuplicateTagError) Error() string {
	return fmt.Sprintf("binding: duplicate tag %q", e.Tag)
}

func (e DuplicateTagError) Is(target error) bool {
	return target == ErrDuplicateTag
}

// Registry is the immutable binding set of one context type.
type Registry struct {
	fields map[string]Field
	tags   []string
}

var empty = &Registry{fields: map[string]Field{}}

// Empty returns the registry of a context with no bound fields.
func Empty() *Registry {
	return empty
}

// NewRegistry builds a registry; tags must be unique and non-empty.
func NewRegistry(fields ...Field) (*Registry, error) {
	r := &Registry{
		fields: make(map[string]Field, len(fields)),
		tags:   make([]string, 0, len(fields)),
	}
	for i, f := range fields {
		if strings.TrimSpace(f.tag) == "" {
			return nil, fmt.Errorf("%w: field[%d]", ErrEmptyTag, i)
		}
		if _, exists := r.fields[f.tag]; exists {
			return nil, DuplicateTagError{Tag: f.tag}
		}
		r.fields[f.tag] = f
		r.tags = append(r.tags, f.tag)
	}
	sort.Strings(r.tags)
	return r, nil
}

// MustRegistry panics on error; intended for package-level declarations.
func MustRegistry(fields ...Field) *Registry {
	r, err := NewRegistry(fields...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tags)
}

// Tags returns the declared tags, sorted.
func (r *Registry) Tags() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.tags...)
}

func (r *Registry) Lookup(tag string) (Field, bool) {
	if r == nil {
		return Field{}, false
	}
	f, ok := r.fields[tag]
	return f, ok
}

// Fields returns the declared fields ordered by tag.
func (r *Registry) Fields() []Field {
	if r == nil {
		return nil
	}
	out := make([]Field, 0, len(r.tags))
	for _, tag := range r.tags {
		out = append(out, r.fields[tag])
	}
	return out
}

// Validate is the strict check: it fails when a non-manual field has no
// constructor, a field the binder could otherwise only ever leave unset.
func (r *Registry) Validate() error {
	var unresolved []string
	for _, f := range r.Fields() {
		if f.manual || f.shape == ShapeManualOnly {
			continue
		}
		if f.construct == nil {
			unresolved = append(unresolved, fmt.Sprintf("%s(%s)", f.tag, f.fieldType))
		}
	}
	if len(unresolved) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnresolvedConstructor, strings.Join(unresolved, ", "))
}
