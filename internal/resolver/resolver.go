// Package resolver computes a deterministic install order for a
// formula's dependency closure: DFS closure followed by a lexicographic
// Kahn topological sort.
package resolver

import (
	"sort"

	zberrors "github.com/zb-pm/zb/internal/errors"
	"github.com/zb-pm/zb/internal/formula"
	"github.com/zb-pm/zb/internal/logger"
)

// ResolveClosure computes the install order for root's dependency
// closure given the available formulas (keyed by name). Missing
// dependencies are logged and skipped; a missing root fails with
// MissingFormula. The returned order places every dependency before its
// dependents; ties are broken lexicographically by name.
func ResolveClosure(root string, formulas map[string]*formula.Formula) ([]string, error) {
	if _, ok := formulas[root]; !ok {
		return nil, zberrors.NewMissingFormula(root)
	}

	closure := make(map[string]bool)
	var collect func(name string)
	collect = func(name string) {
		if closure[name] {
			return
		}
		closure[name] = true
		f, ok := formulas[name]
		if !ok {
			return
		}
		for _, dep := range f.EffectiveDependencies() {
			if _, ok := formulas[dep]; !ok {
				logger.Warn("dependency %s of %s not found, skipping", dep, name)
				continue
			}
			collect(dep)
		}
	}
	collect(root)

	inDegree := make(map[string]int)
	dependents := make(map[string][]string)
	for name := range closure {
		inDegree[name] = 0
	}
	for name := range closure {
		f := formulas[name]
		for _, dep := range f.EffectiveDependencies() {
			if !closure[dep] {
				continue
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := make([]string, 0, len(closure))
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dependent := range dependents[next] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(closure) {
		var cycle []string
		for name, deg := range inDegree {
			if deg > 0 {
				cycle = append(cycle, name)
			}
		}
		sort.Strings(cycle)
		return nil, zberrors.NewDependencyCycle(cycle)
	}

	return order, nil
}
