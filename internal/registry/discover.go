package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Discover lists the modules directly inside dir, mapping module name to
// file path. Only regular files (or symlinks to them) with one of exts are
// considered; names starting with '_' or '.' are ignored. Subdirectories are
// not searched. When two files share a base name the first in directory
// order wins.
//
// An empty result is reported as ErrNoModules.
func Discover(dir string, exts ...string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("registry: discover %s: %w", dir, err)
	}

	found := make(map[string]string)
	for _, de := range entries {
		path := filepath.Join(dir, de.Name())
		name, ok := ModuleName(path, exts...)
		if !ok || !isRegular(de, path) {
			continue
		}

		if _, dup := found[name]; dup {
			continue
		}
		found[name] = path
	}

	if len(found) == 0 {
		return nil, ErrNoModules
	}
	return found, nil
}

func isRegular(de fs.DirEntry, path string) bool {
	if de.Type().IsRegular() {
		return true
	}
	if de.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ModuleName returns the module name a path would be discovered under, and
// false if the file would be ignored.
func ModuleName(path string, exts ...string) (string, bool) {
	file := filepath.Base(path)
	if strings.HasPrefix(file, "_") || strings.HasPrefix(file, ".") {
		return "", false
	}
	ext := filepath.Ext(file)
	if !slices.Contains(exts, ext) {
		return "", false
	}
	name := strings.TrimSuffix(file, ext)
	return name, name != ""
}
