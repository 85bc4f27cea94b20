package ooxcheck

import "fmt"

// Value is a tagged union over the runtime values the engine manipulates.
// Values are immutable; every mutation produces a new Value rather than
// editing one in place.
type Value interface {
	value()
	String() string
}

func (IntLit) value()         {}
func (BoolLit) value()        {}
func (NullLit) value()        {}
func (RefVal) value()         {}
func (SymbolicRefVal) value() {}
func (ObjectVal) value()      {}
func (ArrayVal) value()       {}
func (SymbolicVal) value()    {}

// IntLit is a concrete integer literal.
type IntLit struct {
	Value int64
}

func (v IntLit) String() string { return fmt.Sprintf("%d", v.Value) }

// BoolLit is a concrete boolean literal.
type BoolLit struct {
	Value bool
}

func (v BoolLit) String() string { return fmt.Sprintf("%t", v.Value) }

// NullLit is the null reference literal.
type NullLit struct{}

func (NullLit) String() string { return "null" }

// RefVal is a concrete reference into the Heap.
type RefVal struct {
	Ref Reference
}

func (v RefVal) String() string { return v.Ref.String() }

// SymbolicRefVal names a symbolic reference (or symbolic array) variable
// whose concrete identity is resolved lazily through the AliasMap.
type SymbolicRefVal struct {
	Name string
	// IsArray distinguishes a symbolic array from a symbolic object/null
	// reference, since arrays additionally require a concretised length.
	IsArray bool
	// ElemType is populated when IsArray is true.
	ElemType string
}

func (v SymbolicRefVal) String() string { return "sym-ref:" + v.Name }

// ObjectVal is an allocated object: a mapping from field name to Value,
// plus its declared type. Values are copy-on-write: With* methods return
// a new ObjectVal rather than mutating the receiver.
type ObjectVal struct {
	Class  string
	Fields map[string]Value
}

func (v ObjectVal) String() string { return fmt.Sprintf("%s@{%d fields}", v.Class, len(v.Fields)) }

// WithField returns a copy of v with field set to val.
func (v ObjectVal) WithField(field string, val Value) ObjectVal {
	fields := make(map[string]Value, len(v.Fields))
	for k, fv := range v.Fields {
		fields[k] = fv
	}
	fields[field] = val
	return ObjectVal{Class: v.Class, Fields: fields}
}

// ArrayVal is an allocated array: a sequence of Value plus its declared
// element type.
type ArrayVal struct {
	ElemType string
	Elems    []Value
}

func (v ArrayVal) String() string { return fmt.Sprintf("%s[%d]", v.ElemType, len(v.Elems)) }

// WithElem returns a copy of v with Elems[i] set to val.
func (v ArrayVal) WithElem(i int, val Value) ArrayVal {
	elems := make([]Value, len(v.Elems))
	copy(elems, v.Elems)
	elems[i] = val
	return ArrayVal{ElemType: v.ElemType, Elems: elems}
}

// SymbolicVal wraps a symbolic expression tree standing in for a value
// whose concrete form is not (yet) known — the result of evaluating an
// expression with at least one non-literal operand.
type SymbolicVal struct {
	Expr Expr
}

func (v SymbolicVal) String() string { return v.Expr.String() }

// Reference is an opaque integer handle identifying a heap allocation.
type Reference int

// NullRef is the distinguished null reference.
const NullRef Reference = 0

// UnknownRef is the distinguished "bottom" reference used when a
// symbolic reference's aliases have not yet been resolved. POR treats
// it as pessimistically dependent with anything non-empty.
const UnknownRef Reference = -1

func (r Reference) String() string {
	switch r {
	case NullRef:
		return "null"
	case UnknownRef:
		return "unknown"
	default:
		return fmt.Sprintf("ref#%d", int(r))
	}
}

// defaultValueForType returns the default value of the given OOX type
// name, used by Declare and by object/array allocation to initialise
// fields/elements.
func defaultValueForType(ty string) Value {
	switch ty {
	case "int":
		return IntLit{Value: 0}
	case "bool":
		return BoolLit{Value: false}
	default:
		// Reference types (classes, arrays) default to null.
		return NullLit{}
	}
}
