package types

import (
	"errors"
	"fmt"
)

// ErrUnresolved is wrapped by UnresolvedError.
var ErrUnresolved = errors.New("unresolved class")

// UnresolvedError reports a class whose supertype chain could not be loaded.
type UnresolvedError struct {
	Class string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved class %s", e.Class)
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolved }

// Hierarchy answers superclass queries. Implementations are shared by every
// analysis worker and must be safe for concurrent reads.
type Hierarchy interface {
	// Super returns the direct superclass of class. ok is false when the class
	// is not known. java/lang/Object reports ("", true).
	Super(class string) (super string, ok bool)
}

// ClassTable is a map-backed Hierarchy from class to direct superclass.
// It must not be mutated once shared.
type ClassTable map[string]string

// Super implements Hierarchy.
func (c ClassTable) Super(class string) (string, bool) {
	if class == ObjectClass {
		return "", true
	}
	s, ok := c[class]
	return s, ok
}

// maxChain bounds superclass walks so a cyclic table cannot hang a join.
const maxChain = 256

// Lattice joins types. The zero value treats every class as a direct
// subclass of java/lang/Object.
type Lattice struct {
	h Hierarchy
}

// NewLattice creates a Lattice over the given class hierarchy (may be nil).
func NewLattice(h Hierarchy) *Lattice {
	return &Lattice{h: h}
}

// Join returns the least upper bound of a and b. When a class in a reference
// join cannot be resolved the result degrades to Unknown and the returned
// error is an *UnresolvedError; callers treat that as a warning.
func (l *Lattice) Join(a, b Type) (Type, error) {
	switch {
	case a == b:
		return a, nil
	case a.Kind == KindBottom:
		return b, nil
	case b.Kind == KindBottom:
		return a, nil
	case a.Kind == KindUnknown || b.Kind == KindUnknown:
		return Unknown, nil
	case a.IsIntLike() && b.IsIntLike():
		return joinIntLike(a, b), nil
	case a.IsNumeric() && b.IsNumeric():
		if numericRank(a) >= numericRank(b) {
			return promote(a), nil
		}
		return promote(b), nil
	case a.Kind == KindNull && b.IsReference():
		return b, nil
	case b.Kind == KindNull && a.IsReference():
		return a, nil
	case a.Kind == KindRef && b.Kind == KindRef:
		name, err := l.commonSuper(a.Name, b.Name)
		if err != nil {
			return Unknown, err
		}
		return Ref(name), nil
	case a.Kind == KindArray && b.Kind == KindArray:
		return l.joinArrays(a, b)
	case a.IsReference() && b.IsReference():
		// array with class reference
		return Object, nil
	}
	return Unknown, nil
}

// Leq reports whether a is below or equal to b in the lattice.
func (l *Lattice) Leq(a, b Type) bool {
	j, err := l.Join(a, b)
	return err == nil && j == b
}

func joinIntLike(a, b Type) Type {
	if a.Kind == KindInt || b.Kind == KindInt {
		return Int
	}
	if a.Kind == KindBoolean || b.Kind == KindBoolean {
		return Int
	}
	if a.Kind == KindChar || b.Kind == KindChar {
		return Int
	}
	// byte and short
	return Short
}

func numericRank(t Type) int {
	switch t.Kind {
	case KindLong:
		return 1
	case KindFloat:
		return 2
	case KindDouble:
		return 3
	}
	return 0
}

func promote(t Type) Type {
	if t.IsIntLike() {
		return Int
	}
	return t
}

func (l *Lattice) joinArrays(a, b Type) (Type, error) {
	if a.Dims != b.Dims {
		return Object, nil
	}
	if a.Elem != KindRef || b.Elem != KindRef {
		// distinct primitive element kinds
		return Object, nil
	}
	name, err := l.commonSuper(a.Name, b.Name)
	if err != nil {
		return Unknown, err
	}
	return Type{Kind: KindArray, Dims: a.Dims, Elem: KindRef, Name: name}, nil
}

func (l *Lattice) commonSuper(a, b string) (string, error) {
	if a == b {
		return a, nil
	}
	chainA, err := l.ancestors(a)
	if err != nil {
		return "", err
	}
	seen := make(map[string]struct{}, len(chainA))
	for _, c := range chainA {
		seen[c] = struct{}{}
	}
	chainB, err := l.ancestors(b)
	if err != nil {
		return "", err
	}
	for _, c := range chainB {
		if _, ok := seen[c]; ok {
			return c, nil
		}
	}
	return ObjectClass, nil
}

// ancestors lists class and its superclasses, ending at java/lang/Object.
func (l *Lattice) ancestors(class string) ([]string, error) {
	chain := []string{class}
	if l == nil || l.h == nil {
		if class != ObjectClass {
			chain = append(chain, ObjectClass)
		}
		return chain, nil
	}
	cur := class
	for i := 0; cur != ObjectClass; i++ {
		if i == maxChain {
			return nil, &UnresolvedError{Class: class}
		}
		super, ok := l.h.Super(cur)
		if !ok {
			return nil, &UnresolvedError{Class: cur}
		}
		if super == "" {
			break
		}
		chain = append(chain, super)
		cur = super
	}
	return chain, nil
}
