package graph

import (
	"fmt"
	"hash/fnv"
	"strings"
)

const edgeSeparator = "->"

// NodeID derives the element ID used for a person name.
//
// Names made only of ASCII letters and digits are used as-is. Any other name
// is normalized by replacing every other character with an underscore and
// suffixed with a hash of the raw name, so "Anne Marie" and "Anne-Marie"
// never share an ID.
//
// Example:
//
//	graph.NodeID("Alice")      // "Alice"
//	graph.NodeID("Anne Marie") // "Anne_Marie-a426cfb9"
func NodeID(name string) string {
	if isPlain(name) {
		return name
	}

	var b strings.Builder
	b.Grow(len(name) + 9)
	for _, r := range name {
		if isAlnum(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	fmt.Fprintf(&b, "-%08x", h.Sum32())
	return b.String()
}

// EdgeID derives the element ID of the edge between two node IDs. The
// separator never occurs inside a node ID.
func EdgeID(source, target string) string {
	return source + edgeSeparator + target
}

func isPlain(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !isAlnum(r) {
			return false
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
