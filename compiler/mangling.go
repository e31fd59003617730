package compiler

import "strings"

// Symbol names:
//
//	fn name()              name
//	impl T { static fn s } T_Ss
//	impl T { fn i }        T_Ii
//	T(...)                 T_Sinit

// MangleGlobal returns the symbol of a free function.
func MangleGlobal(name string) string {
	return name
}

// MangleStatic returns the symbol of a static member of typeName.
func MangleStatic(typeName, member string) string {
	return typeName + "_S" + member
}

// MangleInstance returns the symbol of an instance method of typeName.
func MangleInstance(typeName, member string) string {
	return typeName + "_I" + member
}

// MangleInitializer returns the symbol of the synthesized initializer.
func MangleInitializer(typeName string) string {
	return MangleStatic(typeName, "init")
}

// instanceSelector splits an instance method symbol of typeName into its
// selector.
func instanceSelector(typeName, symbol string) (string, bool) {
	return strings.CutPrefix(symbol, typeName+"_I")
}
