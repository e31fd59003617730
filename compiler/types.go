package compiler

import "strings"

// TypeKind classifies a Type.
type TypeKind int

const (
	TypeUnresolved TypeKind = iota
	TypeVoid
	TypeInt
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeDouble
	TypeBool
	TypeAny
	TypeID
	TypePointer
	TypeFunction
	TypeComplex
	TypeEnum
)

// Type is a yo type. Types are values; shared instances must not be
// modified.
type Type struct {
	Kind   TypeKind
	Name   string  // complex and enum types
	Elem   *Type   // pointer element type
	Return *Type   // function return type
	Params []*Type // function parameter types
}

var (
	Unresolved = &Type{Kind: TypeUnresolved}
	Void       = &Type{Kind: TypeVoid}
	Int        = &Type{Kind: TypeInt}
	I8         = &Type{Kind: TypeI8}
	I16        = &Type{Kind: TypeI16}
	I32        = &Type{Kind: TypeI32}
	I64        = &Type{Kind: TypeI64}
	Double     = &Type{Kind: TypeDouble}
	Bool       = &Type{Kind: TypeBool}
	Any        = &Type{Kind: TypeAny}
	ID         = &Type{Kind: TypeID}
)

var primitiveTypes = map[string]*Type{
	"int":    Int,
	"i8":     I8,
	"i16":    I16,
	"i32":    I32,
	"i64":    I64,
	"double": Double,
	"bool":   Bool,
	"any":    Any,
	"id":     ID,
	"void":   Void,
}

// PointerTo returns the type *elem.
func PointerTo(elem *Type) *Type {
	return &Type{Kind: TypePointer, Elem: elem}
}

// FunctionOf returns the type fn(params): ret.
func FunctionOf(ret *Type, params ...*Type) *Type {
	return &Type{Kind: TypeFunction, Return: ret, Params: params}
}

// Complex returns the struct type with the given name.
func Complex(name string) *Type {
	return &Type{Kind: TypeComplex, Name: name}
}

// EnumType returns the enum type with the given name.
func EnumType(name string) *Type {
	return &Type{Kind: TypeEnum, Name: name}
}

// Named returns the primitive type spelled name, or a complex type.
func Named(name string) *Type {
	if t, ok := primitiveTypes[name]; ok {
		return t
	}
	return Complex(name)
}

func (t *Type) String() string {
	switch t.Kind {
	case TypeUnresolved:
		return "<unresolved>"
	case TypePointer:
		return "*" + t.Elem.String()
	case TypeFunction:
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = p.String()
		}
		return "fn(" + strings.Join(params, ", ") + "): " + t.Return.String()
	case TypeComplex, TypeEnum:
		return t.Name
	}
	for name, p := range primitiveTypes {
		if p.Kind == t.Kind {
			return name
		}
	}
	return "<invalid>"
}

// Equal reports structural equality.
func (t *Type) Equal(o *Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TypePointer:
		return t.Elem.Equal(o.Elem)
	case TypeFunction:
		if len(t.Params) != len(o.Params) || !t.Return.Equal(o.Return) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(o.Params[i]) {
				return false
			}
		}
		return true
	case TypeComplex, TypeEnum:
		return t.Name == o.Name
	}
	return true
}

// IsResolved reports whether t and every type it is built from are known.
func (t *Type) IsResolved() bool {
	switch t.Kind {
	case TypeUnresolved:
		return false
	case TypePointer:
		return t.Elem.IsResolved()
	case TypeFunction:
		if !t.Return.IsResolved() {
			return false
		}
		for _, p := range t.Params {
			if !p.IsResolved() {
				return false
			}
		}
	}
	return true
}

// IsInteger reports whether t is one of the integer widths.
func (t *Type) IsInteger() bool {
	switch t.Kind {
	case TypeInt, TypeI8, TypeI16, TypeI32, TypeI64:
		return true
	}
	return false
}

// IsIntegral reports whether values of t are plain integers: integer
// widths, bools and enum ordinals.
func (t *Type) IsIntegral() bool {
	return t.IsInteger() || t.Kind == TypeBool || t.Kind == TypeEnum
}

// IsComplex reports whether t names a struct.
func (t *Type) IsComplex() bool {
	return t.Kind == TypeComplex
}

// Size is the number of bytes a value of t occupies in a struct or array.
func (t *Type) Size() int {
	switch t.Kind {
	case TypeI8:
		return 1
	case TypeI16:
		return 2
	case TypeI32:
		return 4
	}
	return 8
}

// IsCompatible reports whether a value of type t may be used where o is
// expected. any is compatible with everything.
func (t *Type) IsCompatible(o *Type) bool {
	if t.Equal(o) || t.Kind == TypeAny || o.Kind == TypeAny {
		return true
	}
	switch {
	case t.IsIntegral() && o.IsIntegral():
		return true
	case t.Kind == TypePointer && o.Kind == TypePointer:
		return t.Elem.Kind == TypeAny || o.Elem.Kind == TypeAny || t.Elem.IsCompatible(o.Elem)
	case t.Kind == TypeFunction && o.Kind == TypeFunction:
		if len(t.Params) != len(o.Params) || !t.Return.IsCompatible(o.Return) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].IsCompatible(o.Params[i]) {
				return false
			}
		}
		return true
	case t.Kind == TypeID:
		return o.Kind == TypeComplex || o.Kind == TypeFunction
	case o.Kind == TypeID:
		return t.Kind == TypeComplex || t.Kind == TypeFunction
	}
	return false
}

// replaceNamed returns t with every complex type called name replaced by
// with. Protocol signatures use it to substitute Self.
func (t *Type) replaceNamed(name string, with *Type) *Type {
	switch t.Kind {
	case TypeComplex:
		if t.Name == name {
			return with
		}
	case TypePointer:
		return PointerTo(t.Elem.replaceNamed(name, with))
	case TypeFunction:
		params := make([]*Type, len(t.Params))
		for i, p := range t.Params {
			params[i] = p.replaceNamed(name, with)
		}
		return FunctionOf(t.Return.replaceNamed(name, with), params...)
	}
	return t
}
