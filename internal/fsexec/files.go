// Package fsexec implements the built-in filesystem and shell tools
// (read_file, write_file, edit_file, list_directory, execute_bash,
// get_bash_output), with permission gating and read-before-write safety.
package fsexec

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aipp-workbench/engine/internal/engineerr"
)

const (
	defaultReadLimit  = 2000
	maxLineLen        = 2000
	truncatedLineTail = "...[truncated]"
)

// Files implements the read_file/write_file/edit_file/list_directory
// operations, tracking which absolute paths have been read this session so
// write_file/edit_file can enforce read-before-write.
type Files struct {
	mu       sync.Mutex
	readSeen map[string]bool
}

// NewFiles creates an empty Files tool state.
func NewFiles() *Files {
	return &Files{readSeen: make(map[string]bool)}
}

func requireAbs(path string) error {
	if !filepath.IsAbs(path) {
		return engineerr.New(engineerr.KindValidation, fmt.Sprintf("path %q must be absolute", path))
	}
	return nil
}

// ReadFile reads path (1-indexed line-numbered output), marks it as read,
// and enforces the engine's line-count and line-length limits.
func (f *Files) ReadFile(path string, offset, limit int) (string, error) {
	if err := requireAbs(path); err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", engineerr.Wrap(engineerr.KindNotFound, fmt.Sprintf("stat %q", path), err)
	}
	if info.IsDir() {
		return "", engineerr.New(engineerr.KindValidation, fmt.Sprintf("%q is a directory", path))
	}
	if limit <= 0 {
		limit = defaultReadLimit
	}

	file, err := os.Open(path)
	if err != nil {
		return "", engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("open %q", path), err)
	}
	defer file.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	emitted := 0
	for scanner.Scan() {
		lineNum++
		if lineNum <= offset {
			continue
		}
		if emitted >= limit {
			break
		}
		line := scanner.Text()
		if len(line) > maxLineLen {
			line = line[:maxLineLen] + truncatedLineTail
		}
		fmt.Fprintf(&b, "%6d\t%s\n", lineNum, line)
		emitted++
	}
	if err := scanner.Err(); err != nil {
		return "", engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("read %q", path), err)
	}

	f.mu.Lock()
	f.readSeen[path] = true
	f.mu.Unlock()

	return b.String(), nil
}

// WriteFile writes content to path. If the file already exists, ReadFile
// must have been called on it earlier in this Files' lifetime.
func (f *Files) WriteFile(path, content string) error {
	if err := requireAbs(path); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		f.mu.Lock()
		seen := f.readSeen[path]
		f.mu.Unlock()
		if !seen {
			return engineerr.New(engineerr.KindSafetyViolation, fmt.Sprintf("%q must be read before it can be overwritten", path))
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("create parent directories for %q", path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("write %q", path), err)
	}
	f.mu.Lock()
	f.readSeen[path] = true
	f.mu.Unlock()
	return nil
}

// EditFile replaces oldString with newString in path (once, or every
// occurrence if replaceAll), requiring a prior ReadFile on the same path.
// Returns the number of replacements made.
func (f *Files) EditFile(path, oldString, newString string, replaceAll bool) (int, error) {
	if err := requireAbs(path); err != nil {
		return 0, err
	}
	f.mu.Lock()
	seen := f.readSeen[path]
	f.mu.Unlock()
	if !seen {
		return 0, engineerr.New(engineerr.KindSafetyViolation, fmt.Sprintf("%q must be read before it can be edited", path))
	}
	if oldString == newString {
		return 0, engineerr.New(engineerr.KindValidation, "old_string and new_string must differ")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.KindNotFound, fmt.Sprintf("read %q", path), err)
	}
	content := string(raw)
	count := strings.Count(content, oldString)
	if count == 0 {
		return 0, engineerr.New(engineerr.KindValidation, fmt.Sprintf("%q not found in %s", oldString, path))
	}
	if count > 1 && !replaceAll {
		return 0, engineerr.New(engineerr.KindValidation, fmt.Sprintf("%q occurs %d times in %s; pass replace_all to replace them all", oldString, count, path))
	}

	var replaced string
	replacedCount := count
	if replaceAll {
		replaced = strings.ReplaceAll(content, oldString, newString)
	} else {
		replaced = strings.Replace(content, oldString, newString, 1)
		replacedCount = 1
	}
	if err := os.WriteFile(path, []byte(replaced), 0o644); err != nil {
		return 0, engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("write %q", path), err)
	}
	return replacedCount, nil
}

// DirEntry is one row of a ListDirectory result.
type DirEntry struct {
	Name    string
	IsDir   bool
	ModTime int64 // unix seconds
}

// ListDirectory lists path, optionally filtered by a glob pattern rooted at
// path and optionally recursive, sorted by modified time descending.
func ListDirectory(path, pattern string, recursive bool) ([]DirEntry, error) {
	if err := requireAbs(path); err != nil {
		return nil, err
	}
	var out []DirEntry
	walk := func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			name := e.Name()
			if pattern != "" {
				if matched, _ := filepath.Match(pattern, name); !matched {
					continue
				}
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			rel, _ := filepath.Rel(path, filepath.Join(dir, name))
			out = append(out, DirEntry{Name: rel, IsDir: e.IsDir(), ModTime: info.ModTime().Unix()})
		}
		return nil
	}

	if recursive {
		err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil || p == path {
				return err
			}
			name := d.Name()
			if pattern != "" {
				if matched, _ := filepath.Match(pattern, name); !matched {
					return nil
				}
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			rel, _ := filepath.Rel(path, p)
			out = append(out, DirEntry{Name: rel, IsDir: d.IsDir(), ModTime: info.ModTime().Unix()})
			return nil
		})
		if err != nil {
			return nil, engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("walk %q", path), err)
		}
	} else {
		if err := walk(path); err != nil {
			return nil, engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("list %q", path), err)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ModTime > out[j].ModTime })
	return out, nil
}
