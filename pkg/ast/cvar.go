package ast

// CVarBinding pairs a candidate concrete state variable with the abstract
// expression it is meant to track. A representation (rep) is a list of
// these, together with a return expression over the bound variables.
type CVarBinding struct {
	Var     EVar
	Meaning Exp
}
