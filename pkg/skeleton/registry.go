package skeleton

import (
	"fmt"

	"github.com/Faultbox/skelconv/pkg/formats"
)

// Registry maps bone names to their PSA bone list position. Bones enter
// the list in first-use order and keep their index for the whole export.
type Registry struct {
	stored      map[string]formats.Bone
	index       map[string]int
	used        []formats.Bone
	synthesized int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		stored: make(map[string]formats.Bone),
		index:  make(map[string]int),
	}
}

// Store records a flattened bone without adding it to the list.
func (r *Registry) Store(b formats.Bone) error {
	if _, dup := r.stored[b.Name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateBone, b.Name)
	}
	r.stored[b.Name] = b
	return nil
}

// Use returns the list index of name, appending the bone on first use. A
// name that was never stored is appended as a synthesized bone at the
// origin.
func (r *Registry) Use(name string) int {
	if i, ok := r.index[name]; ok {
		return i
	}
	b, ok := r.stored[name]
	if !ok {
		b = formats.Bone{
			Name:        name,
			Flags:       formats.BoneFlagSynthesized,
			Orientation: formats.Quat{W: 1},
		}
		r.synthesized++
	}
	i := len(r.used)
	r.index[name] = i
	r.used = append(r.used, b)
	return i
}

// Index returns the list index of name if it has been used.
func (r *Registry) Index(name string) (int, bool) {
	i, ok := r.index[name]
	return i, ok
}

// Bones returns the used bones in index order.
func (r *Registry) Bones() []formats.Bone {
	return r.used
}

// Synthesized returns how many used bones were not stored.
func (r *Registry) Synthesized() int {
	return r.synthesized
}
