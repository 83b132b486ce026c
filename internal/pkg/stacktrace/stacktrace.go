// Package stacktrace trims goroutine dumps down to this module's own frames.
package stacktrace

import "strings"

// InternalPaths returns the "internal/...go:line" frames of a debug.Stack dump.
func InternalPaths(stack []byte) []string {
	var paths []string
	for line := range strings.Lines(string(stack)) {
		file, _, _ := strings.Cut(strings.TrimSpace(line), " ")
		if !strings.Contains(file, ".go:") {
			continue
		}
		if _, rest, ok := strings.Cut(file, "/internal/"); ok {
			paths = append(paths, "internal/"+rest)
		}
	}
	return paths
}
