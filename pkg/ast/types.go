// Package ast defines the expression, statement, type, and query trees that
// flow through the synthesis driver, along with free-variable computation,
// capture-avoiding substitution, and bottom-up rewriting.
package ast

import "fmt"

// Type is a closed algebra of value types over which expressions and
// statements are built: booleans, integers, handles, bags, sets, maps, and
// records.
type Type interface {
	isType()
	// Key returns a canonical string encoding used for type equality and
	// for expression/statement structural keys.
	Key() string
}

// TBool is the boolean type.
type TBool struct{}

func (TBool) isType()      {}
func (TBool) Key() string  { return "bool" }

// TInt is the integer type.
type TInt struct{}

func (TInt) isType()     {}
func (TInt) Key() string { return "int" }

// THandle is a value-cell type: a handle has an identity distinct from its
// value, so two handles with equal values are not necessarily equal.
type THandle struct {
	Name      string
	ValueType Type
}

func (THandle) isType() {}
func (t THandle) Key() string {
	return fmt.Sprintf("handle<%s,%s>", t.Name, t.ValueType.Key())
}

// TBag is an unordered collection type that permits duplicates.
type TBag struct{ Elem Type }

func (TBag) isType()     {}
func (t TBag) Key() string { return fmt.Sprintf("bag<%s>", t.Elem.Key()) }

// TSet is an unordered collection type without duplicates.
type TSet struct{ Elem Type }

func (TSet) isType()     {}
func (t TSet) Key() string { return fmt.Sprintf("set<%s>", t.Elem.Key()) }

// TMap is a finite-support function type.
type TMap struct {
	Key_  Type
	Value Type
}

func (TMap) isType() {}
func (t TMap) Key() string {
	return fmt.Sprintf("map<%s,%s>", t.Key_.Key(), t.Value.Key())
}

// TRecord is a fixed-field record type; Fields is ordered so Key() is stable.
type TRecord struct {
	Fields []RecordField
}

// RecordField is a single named, typed field of a TRecord.
type RecordField struct {
	Name string
	Type Type
}

func (TRecord) isType() {}
func (t TRecord) Key() string {
	s := "record{"
	for i, f := range t.Fields {
		if i > 0 {
			s += ","
		}
		s += f.Name + ":" + f.Type.Key()
	}
	return s + "}"
}

// TFunc is the type of an extern (uninterpreted) function.
type TFunc struct {
	Args []Type
	Ret  Type
}

func (TFunc) isType() {}
func (t TFunc) Key() string {
	s := "func("
	for i, a := range t.Args {
		if i > 0 {
			s += ","
		}
		s += a.Key()
	}
	return s + ")->" + t.Ret.Key()
}

// FieldType looks up a field's type on a record, returning (type, true) or
// (nil, false) if no such field exists.
func FieldType(t TRecord, name string) (Type, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}
