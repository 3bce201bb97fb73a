// Package types defines the value types tracked by the dataflow engine.
// It covers primitive kinds, class references, arrays, null and subroutine
// return addresses, plus descriptor parsing and the join lattice.
package types

import (
	"fmt"
	"strings"
)

// Kind identifies the shape of a Type.
type Kind uint8

const (
	KindBottom        Kind = iota // No information yet
	KindBoolean                   // boolean
	KindByte                      // byte
	KindChar                      // char
	KindShort                     // short
	KindInt                       // int
	KindLong                      // long (wide)
	KindFloat                     // float
	KindDouble                    // double (wide)
	KindNull                      // The null reference
	KindRef                       // Class or interface reference
	KindArray                     // Array of Elem
	KindReturnAddress             // JSR return address
	KindVoid                      // Method return only
	KindUnknown                   // Opaque, top of the lattice
)

var kindNames = [...]string{
	KindBottom:        "bottom",
	KindBoolean:       "boolean",
	KindByte:          "byte",
	KindChar:          "char",
	KindShort:         "short",
	KindInt:           "int",
	KindLong:          "long",
	KindFloat:         "float",
	KindDouble:        "double",
	KindNull:          "null",
	KindRef:           "ref",
	KindArray:         "array",
	KindReturnAddress: "retaddr",
	KindVoid:          "void",
	KindUnknown:       "unknown",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Well-known class names.
const (
	ObjectClass    = "java/lang/Object"
	ThrowableClass = "java/lang/Throwable"
	StringClass    = "java/lang/String"
	ClassClass     = "java/lang/Class"
)

// Type is a comparable value type. Arrays keep their dimension count and the
// element kind (plus the element class name for reference elements).
type Type struct {
	Kind Kind   `json:"kind" yaml:"kind" msgpack:"kind"`
	Name string `json:"name,omitempty" yaml:"name,omitempty" msgpack:"name,omitempty"`
	Dims uint8  `json:"dims,omitempty" yaml:"dims,omitempty" msgpack:"dims,omitempty"`
	Elem Kind   `json:"elem,omitempty" yaml:"elem,omitempty" msgpack:"elem,omitempty"`
}

var (
	Bottom        = Type{Kind: KindBottom}
	Boolean       = Type{Kind: KindBoolean}
	Byte          = Type{Kind: KindByte}
	Char          = Type{Kind: KindChar}
	Short         = Type{Kind: KindShort}
	Int           = Type{Kind: KindInt}
	Long          = Type{Kind: KindLong}
	Float         = Type{Kind: KindFloat}
	Double        = Type{Kind: KindDouble}
	Null          = Type{Kind: KindNull}
	ReturnAddress = Type{Kind: KindReturnAddress}
	Void          = Type{Kind: KindVoid}
	Unknown       = Type{Kind: KindUnknown}
	Object        = Ref(ObjectClass)
	Throwable     = Ref(ThrowableClass)
	String        = Ref(StringClass)
)

// Ref returns the reference type for an internal class name (a/b/C).
func Ref(name string) Type {
	return Type{Kind: KindRef, Name: name}
}

// ArrayOf returns an array type with t as component type.
func ArrayOf(t Type) Type {
	switch t.Kind {
	case KindArray:
		return Type{Kind: KindArray, Dims: t.Dims + 1, Elem: t.Elem, Name: t.Name}
	case KindBottom, KindNull, KindVoid, KindReturnAddress, KindUnknown:
		return Unknown
	default:
		return Type{Kind: KindArray, Dims: 1, Elem: t.Kind, Name: t.Name}
	}
}

// Component returns the component type of an array type, or Unknown.
func (t Type) Component() Type {
	if t.Kind != KindArray {
		return Unknown
	}
	if t.Dims > 1 {
		return Type{Kind: KindArray, Dims: t.Dims - 1, Elem: t.Elem, Name: t.Name}
	}
	return Type{Kind: t.Elem, Name: t.Name}
}

// IsWide reports whether t occupies two register slots.
func (t Type) IsWide() bool {
	return t.Kind == KindLong || t.Kind == KindDouble
}

// IsIntLike reports whether t is int or one of the narrower int kinds.
func (t Type) IsIntLike() bool {
	switch t.Kind {
	case KindBoolean, KindByte, KindChar, KindShort, KindInt:
		return true
	}
	return false
}

// IsNumeric reports whether t takes part in numeric promotion.
func (t Type) IsNumeric() bool {
	return t.IsIntLike() || t.Kind == KindLong || t.Kind == KindFloat || t.Kind == KindDouble
}

// IsReference reports whether t is null, a class reference or an array.
func (t Type) IsReference() bool {
	return t.Kind == KindNull || t.Kind == KindRef || t.Kind == KindArray
}

// IsKnown reports whether t carries any information below the top element.
func (t Type) IsKnown() bool {
	return t.Kind != KindBottom && t.Kind != KindUnknown
}

// Descriptor renders t in JVM descriptor syntax.
func (t Type) Descriptor() string {
	switch t.Kind {
	case KindBoolean:
		return "Z"
	case KindByte:
		return "B"
	case KindChar:
		return "C"
	case KindShort:
		return "S"
	case KindInt:
		return "I"
	case KindLong:
		return "J"
	case KindFloat:
		return "F"
	case KindDouble:
		return "D"
	case KindVoid:
		return "V"
	case KindRef:
		return "L" + t.Name + ";"
	case KindArray:
		return strings.Repeat("[", int(t.Dims)) + t.Component().baseDescriptor()
	}
	return "?"
}

func (t Type) baseDescriptor() string {
	for t.Kind == KindArray {
		t = t.Component()
	}
	return t.Descriptor()
}

func (t Type) String() string {
	switch t.Kind {
	case KindRef:
		return t.Name
	case KindArray:
		return t.Component().String() + "[]"
	}
	return t.Kind.String()
}

// Parse parses a single field descriptor such as "I", "[J" or "Ljava/lang/String;".
func Parse(desc string) (Type, error) {
	t, n, err := parseAt(desc, 0)
	if err != nil {
		return Unknown, err
	}
	if n != len(desc) {
		return Unknown, fmt.Errorf("trailing characters in descriptor %q", desc)
	}
	return t, nil
}

// MustParse is Parse for descriptors known to be valid.
func MustParse(desc string) Type {
	t, err := Parse(desc)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseMethod splits a method descriptor "(IJ)V" into parameter and return types.
func ParseMethod(desc string) ([]Type, Type, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, Unknown, fmt.Errorf("method descriptor %q must start with '('", desc)
	}
	var params []Type
	i := 1
	for i < len(desc) && desc[i] != ')' {
		t, n, err := parseAt(desc, i)
		if err != nil {
			return nil, Unknown, err
		}
		params = append(params, t)
		i = n
	}
	if i >= len(desc) {
		return nil, Unknown, fmt.Errorf("method descriptor %q is missing ')'", desc)
	}
	ret, err := Parse(desc[i+1:])
	if err != nil {
		return nil, Unknown, fmt.Errorf("return type of %q: %w", desc, err)
	}
	return params, ret, nil
}

func parseAt(desc string, i int) (Type, int, error) {
	if i >= len(desc) {
		return Unknown, i, fmt.Errorf("unexpected end of descriptor %q", desc)
	}
	switch desc[i] {
	case 'Z':
		return Boolean, i + 1, nil
	case 'B':
		return Byte, i + 1, nil
	case 'C':
		return Char, i + 1, nil
	case 'S':
		return Short, i + 1, nil
	case 'I':
		return Int, i + 1, nil
	case 'J':
		return Long, i + 1, nil
	case 'F':
		return Float, i + 1, nil
	case 'D':
		return Double, i + 1, nil
	case 'V':
		return Void, i + 1, nil
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end < 2 {
			return Unknown, i, fmt.Errorf("malformed class descriptor in %q", desc)
		}
		return Ref(desc[i+1 : i+end]), i + end + 1, nil
	case '[':
		elem, n, err := parseAt(desc, i+1)
		if err != nil {
			return Unknown, n, err
		}
		if elem.Kind == KindVoid {
			return Unknown, n, fmt.Errorf("array of void in %q", desc)
		}
		return ArrayOf(elem), n, nil
	}
	return Unknown, i, fmt.Errorf("invalid descriptor character %q in %q", desc[i], desc)
}
