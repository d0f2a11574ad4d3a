// Package geometry turns triangulated meshes into the deduplicated point,
// wedge and face tables of a PSK file.
package geometry

// Table interns values by equality. Indices are dense and follow first
// insertion order.
type Table[T comparable] struct {
	index map[T]int
	items []T
}

// Intern returns the index of v, adding it if it is new.
func (t *Table[T]) Intern(v T) int {
	if i, ok := t.index[v]; ok {
		return i
	}
	if t.index == nil {
		t.index = make(map[T]int)
	}
	i := len(t.items)
	t.index[v] = i
	t.items = append(t.items, v)
	return i
}

// Lookup returns the index of v without adding it.
func (t *Table[T]) Lookup(v T) (int, bool) {
	i, ok := t.index[v]
	return i, ok
}

// Len returns the number of distinct values.
func (t *Table[T]) Len() int {
	return len(t.items)
}

// Items returns the values in index order. The slice is shared with the
// table.
func (t *Table[T]) Items() []T {
	return t.items
}
