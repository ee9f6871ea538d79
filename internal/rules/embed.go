package rules

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var builtinTemplatesYAML []byte

type templateFile struct {
	Templates map[string]*Template `yaml:"templates"`
}

// builtinTemplates parses the embedded template set. The file is part of
// the binary, so a parse failure is a programming error.
func builtinTemplates() []*Template {
	var tf templateFile
	if err := yaml.Unmarshal(builtinTemplatesYAML, &tf); err != nil {
		panic(fmt.Sprintf("parsing built-in templates: %v", err))
	}
	keys := make([]string, 0, len(tf.Templates))
	for k := range tf.Templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Template, 0, len(keys))
	for _, k := range keys {
		t := tf.Templates[k]
		t.Key = k
		out = append(out, t)
	}
	return out
}
