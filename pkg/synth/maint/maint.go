// Package maint declares the small data shapes shared by every consumer
// of Implementation's maintenance-statement bookkeeping (the garbage
// collector and the update scheduler both need to read the same
// per-variable and per-handle-type update statements).
package maint

import "github.com/izgzhen/synthctl/pkg/ast"

// UpdateEntry is one (concrete variable, operation) maintenance statement.
type UpdateEntry struct {
	Var ast.EVar
	Op  string
	Stm ast.Stm
}

// HandleUpdateEntry is one (handle type, operation) maintenance statement.
type HandleUpdateEntry struct {
	Type ast.Type
	Op   string
	Stm  ast.Stm
}
