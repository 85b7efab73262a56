package ads111x

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// pattern pairs one variant with its bits inside a field mask.
type pattern[T constraints.Unsigned] struct {
	v    T
	bits uint16
}

// field is the table-driven mapping between a closed set of variants and
// their bit patterns within one mask of the configuration register.
type field[T constraints.Unsigned] struct {
	name  string
	mask  uint16
	table []pattern[T]
}

// encode returns the bits for v, confined to the mask.
// Encoding an undeclared variant is a programming error.
func (f *field[T]) encode(v T) uint16 {
	for _, p := range f.table {
		if p.v == v {
			return p.bits
		}
	}
	panic(fmt.Sprintf("ads111x: %s has no variant %d", f.name, v))
}

// decode matches the masked bits of reg against the table.
func (f *field[T]) decode(reg uint16) (T, bool) {
	bits := reg & f.mask
	for _, p := range f.table {
		if p.bits == bits {
			return p.v, true
		}
	}
	var zero T
	return zero, false
}

func (f *field[T]) valid(v T) bool {
	for _, p := range f.table {
		if p.v == v {
			return true
		}
	}
	return false
}

// with clears the field in reg and sets the bits for v.
func (f *field[T]) with(reg uint16, v T) uint16 {
	return reg&^f.mask | f.encode(v)
}

// must decodes a register that was already validated. A miss means the
// tables are inconsistent.
func (f *field[T]) must(reg uint16) T {
	v, ok := f.decode(reg)
	if !ok {
		panic(fmt.Sprintf("ads111x: %s: undecodable bits %#04x", f.name, reg&f.mask))
	}
	return v
}

// check verifies the table: every pattern within the mask, no duplicate
// patterns, no duplicate variants.
func (f *field[T]) check() error {
	if len(f.table) == 0 {
		return fmt.Errorf("%s: empty table", f.name)
	}
	seenBits := make(map[uint16]bool, len(f.table))
	seenVals := make(map[T]bool, len(f.table))
	for _, p := range f.table {
		if p.bits&^f.mask != 0 {
			return fmt.Errorf("%s: pattern %#04x outside mask %#04x", f.name, p.bits, f.mask)
		}
		if seenBits[p.bits] {
			return fmt.Errorf("%s: duplicate pattern %#04x", f.name, p.bits)
		}
		if seenVals[p.v] {
			return fmt.Errorf("%s: duplicate variant %d", f.name, p.v)
		}
		seenBits[p.bits] = true
		seenVals[p.v] = true
	}
	return nil
}

// layout is the type-erased view of one field used by register-wide checks.
type layout struct {
	name   string
	mask   uint16
	check  func() error
	decode func(reg uint16) bool
}

func (f *field[T]) layout() layout {
	return layout{
		name:  f.name,
		mask:  f.mask,
		check: f.check,
		decode: func(reg uint16) bool {
			_, ok := f.decode(reg)
			return ok
		},
	}
}

// checkLayout verifies every table and that the masks are pairwise
// disjoint and together cover want.
func checkLayout(fields []layout, want uint16) error {
	var union uint16
	for _, l := range fields {
		if err := l.check(); err != nil {
			return err
		}
		if union&l.mask != 0 {
			return fmt.Errorf("%s: mask %#04x overlaps %#04x", l.name, l.mask, union&l.mask)
		}
		union |= l.mask
	}
	if union != want {
		return fmt.Errorf("field masks cover %#04x, want %#04x", union, want)
	}
	return nil
}
