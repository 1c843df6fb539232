package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// expandConfigEnv substitutes ${VAR} references in every scalar value of the
// YAML document, leaving keys untouched. Unset variables expand to the empty
// string and are reported back so the loader can warn about them.
func expandConfigEnv(raw []byte) (string, []string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return "", nil, fmt.Errorf("parse config: %w", err)
	}

	missing := make(map[string]struct{})
	expandValues(&root, missing)

	expanded, err := yaml.Marshal(&root)
	if err != nil {
		return "", nil, fmt.Errorf("encode expanded config: %w", err)
	}

	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return string(expanded), names, nil
}

func expandValues(node *yaml.Node, missing map[string]struct{}) {
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, child := range node.Content {
			expandValues(child, missing)
		}
	case yaml.MappingNode:
		// Content alternates key, value; only values are expanded.
		for i := 1; i < len(node.Content); i += 2 {
			expandValues(node.Content[i], missing)
		}
	case yaml.ScalarNode:
		if !strings.Contains(node.Value, "$") {
			return
		}
		node.Value = os.Expand(node.Value, func(key string) string {
			if value, ok := os.LookupEnv(key); ok {
				return value
			}
			missing[key] = struct{}{}
			return ""
		})
	}
}
