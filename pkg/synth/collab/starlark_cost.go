package collab

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"

	"github.com/izgzhen/synthctl/pkg/ast"
)

// StarlarkCostModel is a reference CostModel backed by a small Starlark
// script, so an operator can tune how candidate representations are scored
// without recompiling the driver. The script must declare a top-level
// function named "cost" taking three integers (rep_size, ret_size,
// num_bindings) and returning a number; the default script this package
// ships (DefaultCostScript) reproduces the sum-of-sizes behavior of
// synthtest's SizeCost.
type StarlarkCostModel struct {
	script  string
	timeout time.Duration
}

// DefaultCostScript scores a candidate by the total number of AST nodes in
// its representation bindings plus its return expression, matching
// pick_rep's min-cost-over-candidates shape.
const DefaultCostScript = `
def cost(rep_size, ret_size, num_bindings):
    return rep_size + ret_size
`

// NewStarlarkCostModel compiles script once and validates that it exports a
// callable "cost" function. script is re-executed on every Cost call against
// a fresh thread, since starlark.Thread is not safe for concurrent reuse and
// the improver may call Cost from several goroutines.
func NewStarlarkCostModel(script string, timeout time.Duration) (*StarlarkCostModel, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	globals, err := runStarlarkScript(script)
	if err != nil {
		return nil, fmt.Errorf("compile starlark cost script: %w", err)
	}
	if _, ok := globals["cost"].(starlark.Callable); !ok {
		return nil, fmt.Errorf("starlark cost script does not export a callable 'cost'")
	}
	return &StarlarkCostModel{script: script, timeout: timeout}, nil
}

// Cost runs the cost script against rep and ret's sizes under a timeout,
// matching the teacher's StarlarkEvaluator.Evaluate deadline pattern.
func (m *StarlarkCostModel) Cost(rep []ast.CVarBinding, ret ast.Exp) (float64, error) {
	repSize := 0
	for _, b := range rep {
		repSize += ast.Size(b.Meaning)
	}
	retSize := ast.Size(ret)

	globals, err := runStarlarkScript(m.script)
	if err != nil {
		return 0, err
	}
	fn, ok := globals["cost"].(starlark.Callable)
	if !ok {
		return 0, fmt.Errorf("starlark cost script does not export a callable 'cost'")
	}

	args := starlark.Tuple{
		starlark.MakeInt(repSize),
		starlark.MakeInt(retSize),
		starlark.MakeInt(len(rep)),
	}
	thread := &starlark.Thread{Name: "cost-model"}
	resultCh := make(chan starlark.Value, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := starlark.Call(thread, fn, args, nil)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- v
	}()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	select {
	case <-ctx.Done():
		thread.Cancel("cost script timeout")
		return 0, fmt.Errorf("starlark cost script exceeded %s", m.timeout)
	case err := <-errCh:
		return 0, fmt.Errorf("starlark cost script failed: %w", err)
	case v := <-resultCh:
		return starlarkNumberToFloat(v)
	}
}

// runStarlarkScript executes script on a fresh thread and returns its
// globals, used both to validate the script at construction time and to
// recompile it per Cost call (starlark.Thread is not safe for concurrent
// reuse, and the improver may call Cost from several goroutines at once).
func runStarlarkScript(script string) (starlark.StringDict, error) {
	thread := &starlark.Thread{
		Name:  "cost-model-compile",
		Print: func(_ *starlark.Thread, msg string) {},
	}
	return starlark.ExecFile(thread, "cost.star", script, nil)
}

func starlarkNumberToFloat(v starlark.Value) (float64, error) {
	switch n := v.(type) {
	case starlark.Int:
		f, _ := n.Float().Float64()
		return f, nil
	case starlark.Float:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("cost script returned a %s, want a number", v.Type())
	}
}
