package errs

// Incomplete is an informational marker, never returned as an error,
// reported when the driver's wall-clock budget expired, or its context was
// cancelled, before every improver reached local optimality. The assembled
// Implementation at that point is always a correct (if not optimal) result,
// because the initial implementation is correct and every installed
// representation preserves semantics (spec.md 7, "Global timeout").
type Incomplete struct {
	// Reason is a short human-readable explanation of why the run stopped.
	Reason string
	// Queries lists the queries whose improvement search was still running
	// when the run was cut short.
	Queries []string
}
