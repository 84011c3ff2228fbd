package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists checks if the given path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// ErrOutsideRoot is returned when a relative reference escapes its root.
var ErrOutsideRoot = errors.New("path escapes root")

// ResolveUnder joins rel onto root and rejects results outside root.
func ResolveUnder(root, rel string) (string, error) {
	if root == "" {
		return "", errors.New("empty root")
	}
	rel = strings.TrimLeft(filepath.FromSlash(rel), `/\`)
	p := filepath.Join(root, rel)
	r, err := filepath.Rel(filepath.Clean(root), p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return p, nil
}
