// Package checks holds the built-in C rules: memory safety, logic errors,
// embedded pitfalls and style. Each rule is a syntactic heuristic over the
// tree-sitter tree; none of them performs data-flow analysis.
package checks

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/chris-regnier/ctrap/internal/rules"
)

//go:embed catalog.yaml
var catalogYAML []byte

var catalog = mustLoadCatalog()

func mustLoadCatalog() map[string]rules.Metadata {
	var entries []rules.Metadata
	if err := yaml.Unmarshal(catalogYAML, &entries); err != nil {
		panic(fmt.Sprintf("parsing rule catalog: %v", err))
	}
	out := make(map[string]rules.Metadata, len(entries))
	for _, m := range entries {
		out[m.ID] = m
	}
	return out
}

// base returns a rules.Base carrying the catalog metadata for id.
func base(id string) rules.Base {
	m, ok := catalog[id]
	if !ok {
		panic("rule " + id + " missing from catalog")
	}
	return rules.Base{Metadata: m}
}
