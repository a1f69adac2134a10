// Package bundle packs a workflow's sub-workflow imports into a zip
// archive that can be handed to the engine alongside the main
// workflow source.
package bundle

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// importRe matches one import statement per line and captures the
// imported path.
var importRe = regexp.MustCompile(`^\s*import\s+["'](.+)["']`)

// depthLimit bounds import recursion so cyclic imports fail instead
// of looping.
const depthLimit = 20

// Imports returns the import paths declared in a workflow document,
// in declaration order.
func Imports(contents string) []string {
	var out []string
	for _, line := range strings.Split(contents, "\n") {
		if m := importRe.FindStringSubmatch(line); m != nil {
			out = append(out, strings.TrimSpace(m[1]))
		}
	}
	return out
}

// isURL reports whether an import is fetched by the engine itself
// rather than shipped in the archive.
func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Zip collects the workflow's relative imports, recursively, and
// returns them as a zip archive whose entry paths are relative to the
// main workflow's directory. URL imports are left for the engine to
// fetch; absolute-path imports are rejected because the engine cannot
// mirror them into a working directory. Returns nil when the workflow
// has no relative imports.
func Zip(workflowPath string) ([]byte, error) {
	absPath, err := filepath.Abs(workflowPath)
	if err != nil {
		return nil, fmt.Errorf("bundle: resolve path: %w", err)
	}
	rootDir := filepath.Dir(absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("bundle: read workflow: %w", err)
	}

	// entries maps archive path → file contents.
	entries := map[string][]byte{}
	if err := collect(rootDir, rootDir, string(data), entries, 0); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("bundle: zip entry %s: %w", name, err)
		}
		if _, err := w.Write(entries[name]); err != nil {
			return nil, fmt.Errorf("bundle: zip entry %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// collect walks one document's imports and records each relative
// import under its path relative to rootDir. curDir is the directory
// of the document being scanned, so nested imports resolve the way
// the engine resolves them.
func collect(rootDir, curDir, contents string, entries map[string][]byte, depth int) error {
	if depth > depthLimit {
		return fmt.Errorf("bundle: import recursion limit reached, cyclic import?")
	}

	for _, ref := range Imports(contents) {
		if isURL(ref) {
			continue
		}
		if filepath.IsAbs(ref) {
			return fmt.Errorf("bundle: absolute import %q not allowed, use a path relative to the workflow", ref)
		}

		path := filepath.Join(curDir, ref)
		rel, err := filepath.Rel(rootDir, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("bundle: import %q escapes the workflow directory", ref)
		}
		name := filepath.ToSlash(rel)
		if _, seen := entries[name]; seen {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("bundle: read import %q: %w", ref, err)
		}
		entries[name] = data

		if err := collect(rootDir, filepath.Dir(path), string(data), entries, depth+1); err != nil {
			return err
		}
	}
	return nil
}
