package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/serial"
)

// specGraph is the dependency graph between a specification's queries,
// operations, and state variables: which state variables each query reads,
// and which each operation's body touches (by free-variable membership,
// since pkg/ast has no separate mutation-effect analysis).
type specGraph struct {
	Name       string        `yaml:"name"`
	StateVars  []string      `yaml:"state_vars"`
	Queries    []graphQuery  `yaml:"queries"`
	Operations []graphOpNode `yaml:"operations"`
}

type graphQuery struct {
	Name  string   `yaml:"name"`
	Reads []string `yaml:"reads"`
}

type graphOpNode struct {
	Name    string   `yaml:"name"`
	Touches []string `yaml:"touches"`
}

func newGraphCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <spec.json>",
		Short: "Print the dependency graph between queries, operations, and state",
		Long: `Decode a specification and print which state variables each query
reads and each operation touches, as either a Graphviz DOT digraph or a
YAML document.`,
		Example: `  # Print a DOT graph
  synthctl graph spec.json

  # Print the same graph as YAML
  synthctl graph spec.json --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readSpecFile(args[0])
			if err != nil {
				return err
			}
			spec, err := serial.Decode(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			g := buildSpecGraph(spec)
			switch format {
			case "dot":
				return writeDOT(os.Stdout, g)
			case "yaml":
				enc := yaml.NewEncoder(os.Stdout)
				defer enc.Close()
				return enc.Encode(g)
			default:
				return fmt.Errorf("unknown format %q (want dot or yaml)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "dot", "output format: dot or yaml")
	return cmd
}

func buildSpecGraph(spec *ast.Specification) specGraph {
	stateVarNames := make(map[string]bool, len(spec.StateVars))
	var stateVars []string
	for _, sv := range spec.StateVars {
		stateVarNames[sv.Name] = true
		stateVars = append(stateVars, sv.Name)
	}
	sort.Strings(stateVars)

	g := specGraph{Name: spec.Name, StateVars: stateVars}

	for _, q := range spec.Queries {
		reads := filterStateVars(ast.FreeVarsQuery(q), stateVarNames)
		g.Queries = append(g.Queries, graphQuery{Name: q.Name, Reads: reads})
	}
	for _, op := range spec.Operations {
		touches := filterStateVars(ast.FreeVarsStm(op.Body), stateVarNames)
		g.Operations = append(g.Operations, graphOpNode{Name: op.Name, Touches: touches})
	}
	return g
}

func filterStateVars(free map[string]ast.Type, stateVarNames map[string]bool) []string {
	var out []string
	for name := range free {
		if stateVarNames[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func writeDOT(out *os.File, g specGraph) error {
	fmt.Fprintf(out, "digraph %q {\n", g.Name)
	for _, sv := range g.StateVars {
		fmt.Fprintf(out, "  %q [shape=box];\n", sv)
	}
	for _, q := range g.Queries {
		node := "query_" + q.Name
		fmt.Fprintf(out, "  %q [shape=ellipse, label=%q];\n", node, q.Name)
		for _, sv := range q.Reads {
			fmt.Fprintf(out, "  %q -> %q [label=reads];\n", sv, node)
		}
	}
	for _, op := range g.Operations {
		node := "op_" + op.Name
		fmt.Fprintf(out, "  %q [shape=diamond, label=%q];\n", node, op.Name)
		for _, sv := range op.Touches {
			fmt.Fprintf(out, "  %q -> %q [label=touches];\n", node, sv)
		}
	}
	fmt.Fprintln(out, "}")
	return nil
}
