package localize

import "sort"

// leafRef is a string leaf in a parsed document tree together with a
// setter that writes a replacement back into the tree. Setters must be
// invoked sequentially; replacements are computed in parallel but
// applied by a single goroutine.
type leafRef struct {
	value string
	set   func(string)
}

// collectLeaves gathers every string leaf of a document tree in
// deterministic order. Map keys are never treated as leaves, only
// values.
func collectLeaves(doc any) []leafRef {
	var leaves []leafRef
	walk(doc, &leaves)
	return leaves
}

func walk(node any, leaves *[]leafRef) {
	switch n := node.(type) {
	case map[string]any:
		for _, k := range sortedKeys(n) {
			if s, ok := n[k].(string); ok {
				*leaves = append(*leaves, leafRef{value: s, set: func(v string) { n[k] = v }})
				continue
			}
			walk(n[k], leaves)
		}
	case []any:
		for i := range n {
			if s, ok := n[i].(string); ok {
				*leaves = append(*leaves, leafRef{value: s, set: func(v string) { n[i] = v }})
				continue
			}
			walk(n[i], leaves)
		}
	case [][]string:
		for _, row := range n {
			for j := range row {
				*leaves = append(*leaves, leafRef{value: row[j], set: func(v string) { row[j] = v }})
			}
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
