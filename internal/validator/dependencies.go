package validator

import (
	"fmt"
	"sort"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/rhema"
)

// checkDependencies enforces spec.md §4.B check 5: build the scope
// dependency graph from scope definitions, detect cycles by DFS with an
// explicit recursion stack, detect missing targets, and detect version
// conflicts for the same dependency resolved differently across scopes.
// The graph holds only the dependencies declared in each scope definition;
// the Lock's resolved dependencies are not added to it. The DFS keeps a
// white/gray/black color map and a path stack for reporting cycles, and
// recurses once per level of dependency depth.
func checkDependencies(result *loader.Result, acc *accumulator) ([]string, error) {
	graph := make(map[string][]rhema.ScopeDependency, len(result.Scopes))
	for path, data := range result.Scopes {
		graph[path] = data.Scope.Dependencies
	}

	for path, deps := range graph {
		for _, dep := range deps {
			if _, ok := result.Scopes[dep.Path]; !ok {
				acc.addError(rhema.ValidationIssue{
					Category: "dependency",
					Message:  fmt.Sprintf("dependency target %q does not exist", dep.Path),
					Scope:    path,
					Details:  map[string]interface{}{"target": dep.Path, "constraint": dep.Constraint},
				})
			}
		}
	}

	cycles := detectCycles(graph)
	for _, cycle := range cycles {
		acc.addError(rhema.ValidationIssue{
			Category: "dependency",
			Message:  fmt.Sprintf("circular dependency: %v", cycle),
			Details:  map[string]interface{}{"cycle": cycle},
		})
	}

	checkVersionConflicts(result, acc)

	var err error
	if len(cycles) > 0 {
		err = fmt.Errorf("%d circular dependency chain(s) detected", len(cycles))
	}

	flattened := make([]string, 0, len(cycles))
	for _, c := range cycles {
		flattened = append(flattened, fmt.Sprintf("%v", c))
	}
	return flattened, err
}

// detectCycles runs DFS with an explicit recursion stack over the scope
// dependency graph and returns each distinct cycle found, as an ordered
// path of scope paths.
func detectCycles(graph map[string][]rhema.ScopeDependency) [][]string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(graph))

	var cycles [][]string
	var stack []string

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	var visit func(node string)
	visit = func(node string) {
		color[node] = gray
		stack = append(stack, node)

		deps := graph[node]
		sortedDeps := make([]rhema.ScopeDependency, len(deps))
		copy(sortedDeps, deps)
		sort.Slice(sortedDeps, func(i, j int) bool { return sortedDeps[i].Path < sortedDeps[j].Path })

		for _, dep := range sortedDeps {
			switch color[dep.Path] {
			case white:
				if _, ok := graph[dep.Path]; ok {
					visit(dep.Path)
				}
			case gray:
				cycle := cycleFromStack(stack, dep.Path)
				cycles = append(cycles, cycle)
			}
		}

		stack = stack[:len(stack)-1]
		color[node] = black
	}

	for _, n := range nodes {
		if color[n] == white {
			visit(n)
		}
	}
	return cycles
}

func cycleFromStack(stack []string, target string) []string {
	for i, n := range stack {
		if n == target {
			cycle := make([]string, len(stack[i:]))
			copy(cycle, stack[i:])
			return append(cycle, target)
		}
	}
	return []string{target}
}

// checkVersionConflicts flags the same dependency path resolved to
// different version constraints across scopes.
func checkVersionConflicts(result *loader.Result, acc *accumulator) {
	constraintsByTarget := make(map[string]map[string][]string) // target -> constraint -> scopes requiring it

	for scopePath, data := range result.Scopes {
		for _, dep := range data.Scope.Dependencies {
			if constraintsByTarget[dep.Path] == nil {
				constraintsByTarget[dep.Path] = make(map[string][]string)
			}
			constraintsByTarget[dep.Path][dep.Constraint] = append(constraintsByTarget[dep.Path][dep.Constraint], scopePath)
		}
	}

	targets := make([]string, 0, len(constraintsByTarget))
	for t := range constraintsByTarget {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	for _, target := range targets {
		byConstraint := constraintsByTarget[target]
		if len(byConstraint) < 2 {
			continue
		}
		acc.addWarning(rhema.ValidationIssue{
			Category: "dependency",
			Message:  fmt.Sprintf("dependency %q requested with conflicting version constraints", target),
			Details:  map[string]interface{}{"target": target, "constraints": byConstraint},
		})
	}
}
