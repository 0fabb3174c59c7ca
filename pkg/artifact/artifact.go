// Package artifact manages the files the export collaborator leaves behind:
// the <name>.zip / <name>.xlsx pair derived from the configured export
// filename.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var Extensions = []string{".zip", ".xlsx"}

// ErrNotFound is returned by Resolve when no artifact exists.
var ErrNotFound = errors.New("artifact not found")

// Outcome is the result of a single removal attempt.
type Outcome string

const (
	Removed Outcome = "removed"
	Absent  Outcome = "absent"
	Failed  Outcome = "failed"
)

// Removal reports what happened to one artifact path during cleanup.
type Removal struct {
	Path    string
	Outcome Outcome
	Err     error
}

// Paths derives the artifact paths for name under baseDir, in Extensions
// order. An empty name still yields ".zip" and ".xlsx".
func Paths(baseDir, name string) []string {
	paths := make([]string, 0, len(Extensions))
	for _, ext := range Extensions {
		paths = append(paths, filepath.Join(baseDir, name+ext))
	}
	return paths
}

// Cleanup removes every path one after another, best effort. Results are
// returned in input order; a failure on one path never prevents the others.
func Cleanup(paths []string) []Removal {
	if len(paths) == 0 {
		return nil
	}

	results := make([]Removal, 0, len(paths))
	for _, path := range paths {
		results = append(results, remove(path))
	}
	return results
}

func remove(path string) Removal {
	err := os.Remove(path)
	switch {
	case err == nil:
		return Removal{Path: path, Outcome: Removed}
	case errors.Is(err, fs.ErrNotExist):
		return Removal{Path: path, Outcome: Absent}
	default:
		return Removal{Path: path, Outcome: Failed, Err: err}
	}
}

// Resolve finds the artifact the load collaborator should consume.
//
// hint is the path the export collaborator reported (relative paths are
// taken against baseDir); it wins when it names a regular file. Otherwise
// the conventional <name>.zip / <name>.xlsx pair is used, preferring the
// zip only when it is strictly newer.
func Resolve(baseDir, name, hint string) (string, error) {
	if hint != "" {
		path := hint
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		if isRegular(path) {
			return path, nil
		}
	}

	paths := Paths(baseDir, name)
	zipPath, xlsxPath := paths[0], paths[1]
	zipInfo, zipErr := os.Stat(zipPath)
	xlsxInfo, xlsxErr := os.Stat(xlsxPath)
	zipOK := zipErr == nil && zipInfo.Mode().IsRegular()
	xlsxOK := xlsxErr == nil && xlsxInfo.Mode().IsRegular()

	switch {
	case zipOK && xlsxOK:
		if zipInfo.ModTime().After(xlsxInfo.ModTime()) {
			return zipPath, nil
		}
		return xlsxPath, nil
	case zipOK:
		return zipPath, nil
	case xlsxOK:
		return xlsxPath, nil
	default:
		return "", fmt.Errorf("%w: neither %s nor %s exists", ErrNotFound, zipPath, xlsxPath)
	}
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
