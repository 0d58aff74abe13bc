// Package skillloader implements the supplemented skill scanner: resolving
// markdown skill files/folders from a configured list of source roots, and
// loading the winning file's content for the load_skill operation.
package skillloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aipp-workbench/engine/internal/engineerr"
	"gopkg.in/yaml.v3"
)

// Source is one configured root to scan for skills, expanding "~" and
// "{app_data}" prefixes the way the original scanner does.
type Source struct {
	Name    string // display name, e.g. "user", "project", "builtin"
	Paths   []string
	Enabled bool
}

// Metadata is a skill's SKILL.md frontmatter.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Skill is one discovered skill.
type Skill struct {
	Identifier   string // "<source>:<relative_path>"
	SourceName   string
	FilePath     string
	RelativePath string
	DisplayName  string
	Metadata     Metadata
}

// MakeIdentifier builds the "<source>:<relative_path>" identifier.
func MakeIdentifier(sourceName, relativePath string) string {
	return sourceName + ":" + relativePath
}

// ParseIdentifier splits an identifier back into its source name and
// relative path.
func ParseIdentifier(identifier string) (sourceName, relativePath string, ok bool) {
	parts := strings.SplitN(identifier, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Loader scans a fixed set of Sources for skills.
type Loader struct {
	homeDir    string
	appDataDir string
	sources    []Source
}

// New builds a Loader. homeDir/appDataDir are used to expand "~" and
// "{app_data}" path prefixes in each Source's Paths.
func New(homeDir, appDataDir string, sources []Source) *Loader {
	return &Loader{homeDir: homeDir, appDataDir: appDataDir, sources: sources}
}

func (l *Loader) expandPath(p string) string {
	switch {
	case strings.HasPrefix(p, "~/"):
		return filepath.Join(l.homeDir, p[2:])
	case strings.HasPrefix(p, "~"):
		return filepath.Join(l.homeDir, p[1:])
	case strings.HasPrefix(p, "{app_data}/"):
		return filepath.Join(l.appDataDir, p[len("{app_data}/"):])
	case strings.HasPrefix(p, "{app_data}"):
		return filepath.Join(l.appDataDir, p[len("{app_data}"):])
	default:
		return p
	}
}

// ScanSources scans every enabled Source and returns all discovered skills.
func (l *Loader) ScanSources() []Skill {
	var all []Skill
	for _, src := range l.sources {
		if !src.Enabled {
			continue
		}
		for _, pattern := range src.Paths {
			expanded := l.expandPath(pattern)
			info, err := os.Stat(expanded)
			if err != nil {
				continue
			}
			if info.IsDir() {
				all = append(all, l.scanDirectory(expanded, src)...)
			} else {
				if skill, ok := l.scanFile(expanded, src); ok {
					all = append(all, skill)
				}
			}
		}
	}
	return all
}

func (l *Loader) scanFile(path string, src Source) (Skill, bool) {
	name := filepath.Base(path)
	relative := name
	meta, err := parseMetadata(path)
	if err != nil {
		return Skill{}, false
	}
	display := meta.Name
	if display == "" {
		display = strings.TrimSuffix(name, ".md")
	}
	return Skill{
		Identifier:   MakeIdentifier(src.Name, relative),
		SourceName:   src.Name,
		FilePath:     path,
		RelativePath: relative,
		DisplayName:  display,
		Metadata:     meta,
	}, true
}

func (l *Loader) scanDirectory(dir string, src Source) []Skill {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []Skill
	for _, e := range entries {
		name := e.Name()
		full := filepath.Join(dir, name)
		if e.IsDir() {
			if strings.HasPrefix(name, ".") && name != ".system" {
				continue
			}
			if skill, ok := l.scanSkillFolder(full, src); ok {
				out = append(out, skill)
			}
			continue
		}
		if strings.HasSuffix(name, ".md") {
			if skill, ok := l.scanFile(full, src); ok {
				out = append(out, skill)
			}
		}
	}
	return out
}

// scanSkillFolder looks for SKILL.md first, then README.md, then any .md
// file in the folder, per the original scanner's priority order.
func (l *Loader) scanSkillFolder(folder string, src Source) (Skill, bool) {
	folderName := filepath.Base(folder)

	candidates := []string{filepath.Join(folder, "SKILL.md"), filepath.Join(folder, "README.md")}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return l.buildFolderSkill(candidate, folderName, src)
		}
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return Skill{}, false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			return l.buildFolderSkill(filepath.Join(folder, e.Name()), folderName, src)
		}
	}
	return Skill{}, false
}

func (l *Loader) buildFolderSkill(file, folderName string, src Source) (Skill, bool) {
	meta, err := parseMetadata(file)
	if err != nil {
		return Skill{}, false
	}
	display := meta.Name
	if display == "" {
		display = folderName
	}
	return Skill{
		Identifier:   MakeIdentifier(src.Name, folderName),
		SourceName:   src.Name,
		FilePath:     file,
		RelativePath: folderName,
		DisplayName:  display,
		Metadata:     meta,
	}, true
}

// parseMetadata extracts the "---\n...\n---" YAML frontmatter block from a
// skill markdown file, if present.
func parseMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	content := string(raw)
	var meta Metadata
	if strings.HasPrefix(content, "---\n") {
		rest := content[4:]
		if end := strings.Index(rest, "\n---"); end >= 0 {
			if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
				return Metadata{}, fmt.Errorf("parse frontmatter of %s: %w", path, err)
			}
		}
	}
	return meta, nil
}

// LoadSkill resolves identifier against the configured sources and returns
// the full markdown content of the winning file.
func (l *Loader) LoadSkill(identifier string) (string, error) {
	sourceName, relativePath, ok := ParseIdentifier(identifier)
	if !ok {
		return "", engineerr.New(engineerr.KindValidation, fmt.Sprintf("malformed skill identifier %q", identifier))
	}
	for _, src := range l.sources {
		if src.Name != sourceName {
			continue
		}
		for _, pattern := range src.Paths {
			expanded := l.expandPath(pattern)
			info, err := os.Stat(expanded)
			if err != nil {
				continue
			}
			var target string
			if info.IsDir() {
				target = filepath.Join(expanded, relativePath)
				if stat, err := os.Stat(target); err == nil && stat.IsDir() {
					for _, name := range []string{"SKILL.md", "README.md"} {
						candidate := filepath.Join(target, name)
						if _, err := os.Stat(candidate); err == nil {
							target = candidate
							break
						}
					}
				}
			} else {
				target = expanded
			}
			raw, err := os.ReadFile(target)
			if err == nil {
				return string(raw), nil
			}
		}
	}
	return "", engineerr.New(engineerr.KindNotFound, fmt.Sprintf("skill %q not found", identifier))
}
