package artifactrunner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemplateFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestFilesHashStableAcrossRepeatedCalls(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "package.json", `{"name":"tmpl"}`)
	writeTemplateFile(t, dir, "src/App.tsx", "export default function App() {}")

	h1, err := filesHash(dir, "UserComponent.tsx")
	if err != nil {
		t.Fatalf("filesHash() error = %v", err)
	}
	h2, err := filesHash(dir, "UserComponent.tsx")
	if err != nil {
		t.Fatalf("filesHash() error = %v", err)
	}
	if h1 != h2 {
		t.Errorf("filesHash() not stable: %q vs %q", h1, h2)
	}
}

func TestFilesHashChangesWhenContentChanges(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "src/App.tsx", "v1")
	before, err := filesHash(dir, "UserComponent.tsx")
	if err != nil {
		t.Fatalf("filesHash() error = %v", err)
	}

	writeTemplateFile(t, dir, "src/App.tsx", "v2")
	after, err := filesHash(dir, "UserComponent.tsx")
	if err != nil {
		t.Fatalf("filesHash() error = %v", err)
	}
	if before == after {
		t.Error("filesHash() unchanged after editing tracked file content")
	}
}

func TestFilesHashIgnoresComponentFileAndExcludedDirs(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "src/App.tsx", "stable")
	before, err := filesHash(dir, "UserComponent.tsx")
	if err != nil {
		t.Fatalf("filesHash() error = %v", err)
	}

	// Writing the dynamic component file and populating node_modules must
	// not perturb the hash.
	writeTemplateFile(t, dir, "src/UserComponent.tsx", "export default function() {}")
	writeTemplateFile(t, dir, "node_modules/pkg/index.js", "module.exports = {}")
	after, err := filesHash(dir, "UserComponent.tsx")
	if err != nil {
		t.Fatalf("filesHash() error = %v", err)
	}
	if before != after {
		t.Errorf("filesHash() changed after adding excluded content: %q vs %q", before, after)
	}
}

func TestDepsHashOnlyConsidersPackageJSONAndBunLock(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "package.json", `{"name":"a","version":"1.0.0"}`)
	before, err := depsHash(dir)
	if err != nil {
		t.Fatalf("depsHash() error = %v", err)
	}

	writeTemplateFile(t, dir, "src/App.tsx", "unrelated change")
	unrelated, err := depsHash(dir)
	if err != nil {
		t.Fatalf("depsHash() error = %v", err)
	}
	if before != unrelated {
		t.Error("depsHash() changed when only a non-dependency file changed")
	}

	writeTemplateFile(t, dir, "package.json", `{"name":"a","version":"2.0.0"}`)
	after, err := depsHash(dir)
	if err != nil {
		t.Fatalf("depsHash() error = %v", err)
	}
	if before == after {
		t.Error("depsHash() unchanged after bumping package.json")
	}
}

func TestCombinedFilesHashIncludesSharedDirectory(t *testing.T) {
	templateDir := t.TempDir()
	sharedDir := t.TempDir()
	writeTemplateFile(t, templateDir, "src/App.tsx", "app")

	without, err := combinedFilesHash(templateDir, filepath.Join(sharedDir, "missing"), "UserComponent.tsx")
	if err != nil {
		t.Fatalf("combinedFilesHash() error = %v", err)
	}

	writeTemplateFile(t, sharedDir, "Card.tsx", "shared card")
	with, err := combinedFilesHash(templateDir, sharedDir, "UserComponent.tsx")
	if err != nil {
		t.Fatalf("combinedFilesHash() error = %v", err)
	}
	if without == with {
		t.Error("combinedFilesHash() did not change when shared/ gained a file")
	}
}
