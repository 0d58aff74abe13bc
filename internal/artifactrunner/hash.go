// Package artifactrunner materializes React/Vue template projects, serves
// them as local dev-server previews, and tears them down.
package artifactrunner

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
)

// excludedNames are skipped entirely when hashing a template source tree:
// dependency output, VCS metadata, build caches, and OS housekeeping files.
var excludedNames = []string{
	"node_modules",
	".git",
	"dist",
	"build",
	".cache",
	".tmp",
	".temp",
	".DS_Store",
	"Thumbs.db",
	".gitignore",
	"bun.lockb",
	".vite",
	".turbo",
	"coverage",
}

func isExcluded(name string) bool {
	for _, pattern := range excludedNames {
		if name == pattern {
			return true
		}
	}
	return false
}

// filesHash walks dir depth-first in sorted order, hashing each file's path
// (relative to dir) and content. componentFile is the dynamically-written
// component (e.g. "UserComponent.tsx") and is excluded since it changes on
// every run and must not perturb the cache key.
func filesHash(dir, componentFile string) (string, error) {
	h := sha256.New()
	if err := hashDir(dir, dir, componentFile, h); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// combinedFilesHash folds a template source tree and the shared/ directory
// into a single files_hash, since every materialized template receives both.
func combinedFilesHash(templateDir, sharedDir, componentFile string) (string, error) {
	h := sha256.New()
	if err := hashDir(templateDir, templateDir, componentFile, h); err != nil {
		return "", err
	}
	if dirExists(sharedDir) {
		if err := hashDir(sharedDir, sharedDir, componentFile, h); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashDir(root, dir, componentFile string, h interface{ Write([]byte) (int, error) }) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if isExcluded(name) || name == componentFile {
			continue
		}
		path := filepath.Join(dir, name)
		if entry.IsDir() {
			if err := hashDir(root, path, componentFile, h); err != nil {
				return err
			}
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		h.Write([]byte(rel))
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		h.Write(content)
	}
	return nil
}

// depsHash hashes package.json and bun.lock alone, so a files_hash-unaffecting
// dependency bump still triggers a reinstall.
func depsHash(dir string) (string, error) {
	h := sha256.New()
	for _, name := range []string{"package.json", "bun.lock"} {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
