package compiler

import "github.com/agreefuture/yo/vm"

// Attribute is a struct field with its byte offset from the object start.
type Attribute struct {
	Name   string
	Type   *Type
	Offset int
}

// TypeEntry is the layout of a registered struct.
type TypeEntry struct {
	Name       string
	Attributes []Attribute
	Size       int
	Index      int // 1-based type id written into object headers
}

// Attribute returns the attribute called name.
func (e *TypeEntry) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// TypeCache holds the layouts of every struct and the cases of every enum.
type TypeCache struct {
	entries []*TypeEntry
	byName  map[string]*TypeEntry
	enums   map[string][]string
}

// NewTypeCache returns an empty cache.
func NewTypeCache() *TypeCache {
	return &TypeCache{
		byName: make(map[string]*TypeEntry),
		enums:  make(map[string][]string),
	}
}

// RegisterEnum records the cases of an enum.
func (tc *TypeCache) RegisterEnum(decl *EnumDeclaration) {
	if tc.IsKnown(decl.Name) {
		failAt(decl.Span().Start, "type '%s' declared more than once", decl.Name)
	}
	tc.enums[decl.Name] = decl.Cases
}

// Declare reserves a struct name so that attribute types may refer to
// structs registered later.
func (tc *TypeCache) Declare(decl *TypeDeclaration) {
	if tc.IsKnown(decl.Name) {
		failAt(decl.Span().Start, "type '%s' declared more than once", decl.Name)
	}
	entry := &TypeEntry{Name: decl.Name, Index: len(tc.entries) + 1}
	tc.entries = append(tc.entries, entry)
	tc.byName[decl.Name] = entry
}

// Register computes the layout of a declared struct. Offsets start after
// the object header and grow by each attribute's size.
func (tc *TypeCache) Register(decl *TypeDeclaration) *TypeEntry {
	entry, ok := tc.byName[decl.Name]
	if !ok {
		tc.Declare(decl)
		entry = tc.byName[decl.Name]
	}
	entry.Attributes = entry.Attributes[:0]
	offset := vm.HeaderSize
	for _, attr := range decl.Attributes {
		if _, dup := entry.Attribute(attr.Name); dup {
			failAt(decl.Span().Start, "attribute '%s' declared more than once in type '%s'", attr.Name, decl.Name)
		}
		t := tc.Resolve(attr.Type, decl.Span().Start)
		entry.Attributes = append(entry.Attributes, Attribute{Name: attr.Name, Type: t, Offset: offset})
		offset += t.Size()
	}
	entry.Size = offset
	return entry
}

// IsKnown reports whether name is a registered struct or enum.
func (tc *TypeCache) IsKnown(name string) bool {
	_, isStruct := tc.byName[name]
	_, isEnum := tc.enums[name]
	return isStruct || isEnum
}

// Entry returns the layout of a struct.
func (tc *TypeCache) Entry(name string) (*TypeEntry, bool) {
	e, ok := tc.byName[name]
	return e, ok
}

// Entries returns all structs in type id order.
func (tc *TypeCache) Entries() []*TypeEntry {
	return tc.entries
}

// Enum returns the cases of an enum.
func (tc *TypeCache) Enum(name string) ([]string, bool) {
	cases, ok := tc.enums[name]
	return cases, ok
}

// EnumCase returns the ordinal of a case.
func (tc *TypeCache) EnumCase(enum, name string) (int, bool) {
	for i, c := range tc.enums[enum] {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// Resolve turns named types into struct or enum types, failing on names
// that are neither.
func (tc *TypeCache) Resolve(t *Type, pos Position) *Type {
	switch t.Kind {
	case TypeComplex:
		if _, ok := tc.enums[t.Name]; ok {
			return EnumType(t.Name)
		}
		if _, ok := tc.byName[t.Name]; !ok {
			failAt(pos, "unknown type '%s'", t.Name)
		}
	case TypePointer:
		return PointerTo(tc.Resolve(t.Elem, pos))
	case TypeFunction:
		params := make([]*Type, len(t.Params))
		for i, p := range t.Params {
			params[i] = tc.Resolve(p, pos)
		}
		return FunctionOf(tc.Resolve(t.Return, pos), params...)
	}
	return t
}

// SupportsARC reports whether values of t are reference counted.
func (tc *TypeCache) SupportsARC(t *Type) bool {
	switch t.Kind {
	case TypeComplex:
		_, ok := tc.byName[t.Name]
		return ok
	case TypeFunction, TypeID:
		return true
	}
	return false
}

// HasMember reports whether struct typeName has an attribute called member.
func (tc *TypeCache) HasMember(typeName, member string) bool {
	e, ok := tc.byName[typeName]
	if !ok {
		return false
	}
	_, ok = e.Attribute(member)
	return ok
}

// Offset returns the byte offset of an attribute.
func (tc *TypeCache) Offset(typeName, member string) (int, bool) {
	e, ok := tc.byName[typeName]
	if !ok {
		return 0, false
	}
	a, ok := e.Attribute(member)
	return a.Offset, ok
}

// TypeOfMember returns the type of an attribute.
func (tc *TypeCache) TypeOfMember(typeName, member string) (*Type, bool) {
	e, ok := tc.byName[typeName]
	if !ok {
		return nil, false
	}
	a, ok := e.Attribute(member)
	return a.Type, ok
}
