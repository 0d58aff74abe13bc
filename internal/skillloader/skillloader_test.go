package skillloader

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestExpandPathHome(t *testing.T) {
	l := New("/home/user", "/data", nil)
	got := l.expandPath("~/skills")
	want := filepath.Join("/home/user", "skills")
	if got != want {
		t.Errorf("expandPath(~/skills) = %q, want %q", got, want)
	}
}

func TestExpandPathAppData(t *testing.T) {
	l := New("/home/user", "/data", nil)
	got := l.expandPath("{app_data}/skills")
	want := filepath.Join("/data", "skills")
	if got != want {
		t.Errorf("expandPath({app_data}/skills) = %q, want %q", got, want)
	}
}

func TestExpandPathLiteral(t *testing.T) {
	l := New("/home/user", "/data", nil)
	got := l.expandPath("/abs/skills")
	if got != "/abs/skills" {
		t.Errorf("expandPath(literal) = %q, want unchanged", got)
	}
}

func TestScanSourcesFindsSkillMdInFolder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pdf-tools", "SKILL.md"), "---\nname: PDF Tools\ndescription: work with PDFs\n---\nbody")
	writeFile(t, filepath.Join(root, "pdf-tools", "README.md"), "ignored in favor of SKILL.md")

	l := New("", "", []Source{{Name: "user", Paths: []string{root}, Enabled: true}})
	skills := l.ScanSources()
	if len(skills) != 1 {
		t.Fatalf("ScanSources() returned %d skills, want 1", len(skills))
	}
	s := skills[0]
	if s.DisplayName != "PDF Tools" {
		t.Errorf("DisplayName = %q, want %q", s.DisplayName, "PDF Tools")
	}
	if s.Identifier != "user:pdf-tools" {
		t.Errorf("Identifier = %q, want %q", s.Identifier, "user:pdf-tools")
	}
}

func TestScanSourcesFallsBackToAnyMdFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "notes", "CUSTOM.md"), "---\nname: Notes\n---\nbody")

	l := New("", "", []Source{{Name: "user", Paths: []string{root}, Enabled: true}})
	skills := l.ScanSources()
	if len(skills) != 1 {
		t.Fatalf("ScanSources() returned %d skills, want 1", len(skills))
	}
	if skills[0].DisplayName != "Notes" {
		t.Errorf("DisplayName = %q, want %q", skills[0].DisplayName, "Notes")
	}
}

func TestScanSourcesSkipsHiddenFoldersExceptDotSystem(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "SKILL.md"), "---\nname: Hidden\n---\n")
	writeFile(t, filepath.Join(root, ".system", "SKILL.md"), "---\nname: System\n---\n")

	l := New("", "", []Source{{Name: "user", Paths: []string{root}, Enabled: true}})
	skills := l.ScanSources()
	if len(skills) != 1 || skills[0].DisplayName != "System" {
		t.Fatalf("ScanSources() = %+v, want only the .system skill", skills)
	}
}

func TestScanSourcesSupportsSingleFileAtRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "quick-fix.md"), "---\nname: Quick Fix\n---\nbody")

	l := New("", "", []Source{{Name: "builtin", Paths: []string{root}, Enabled: true}})
	skills := l.ScanSources()
	if len(skills) != 1 {
		t.Fatalf("ScanSources() returned %d skills, want 1", len(skills))
	}
	if skills[0].Identifier != "builtin:quick-fix.md" {
		t.Errorf("Identifier = %q, want %q", skills[0].Identifier, "builtin:quick-fix.md")
	}
}

func TestScanSourcesSkipsDisabledSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "skill", "SKILL.md"), "---\nname: X\n---\n")

	l := New("", "", []Source{{Name: "user", Paths: []string{root}, Enabled: false}})
	if skills := l.ScanSources(); len(skills) != 0 {
		t.Fatalf("ScanSources() = %+v, want none from disabled source", skills)
	}
}

func TestLoadSkillReadsFullFolderFileContent(t *testing.T) {
	root := t.TempDir()
	content := "---\nname: PDF Tools\n---\nFull instructions here."
	writeFile(t, filepath.Join(root, "pdf-tools", "SKILL.md"), content)

	l := New("", "", []Source{{Name: "user", Paths: []string{root}, Enabled: true}})
	got, err := l.LoadSkill("user:pdf-tools")
	if err != nil {
		t.Fatalf("LoadSkill() error = %v", err)
	}
	if got != content {
		t.Errorf("LoadSkill() = %q, want %q", got, content)
	}
}

func TestLoadSkillUnknownIdentifierReturnsNotFound(t *testing.T) {
	l := New("", "", []Source{{Name: "user", Paths: []string{t.TempDir()}, Enabled: true}})
	if _, err := l.LoadSkill("user:missing"); err == nil {
		t.Fatal("LoadSkill() error = nil, want not-found error")
	}
}

func TestMakeAndParseIdentifierRoundTrip(t *testing.T) {
	id := MakeIdentifier("project", "deep/nested/skill")
	source, rel, ok := ParseIdentifier(id)
	if !ok || source != "project" || rel != "deep/nested/skill" {
		t.Errorf("ParseIdentifier(%q) = (%q, %q, %v), want (project, deep/nested/skill, true)", id, source, rel, ok)
	}
}
