package artifactrunner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/aipp-workbench/engine/internal/engineerr"
	"github.com/aipp-workbench/engine/internal/metrics"
)

// Kind is a template flavor the runner knows how to materialize and serve.
type Kind string

const (
	KindReact          Kind = "react"
	KindVue            Kind = "vue"
	KindReactArtifacts Kind = "react-artifacts"
	KindVueArtifacts   Kind = "vue-artifacts"
)

func componentFile(kind Kind) string {
	if kind == KindVue || kind == KindVueArtifacts {
		return "UserComponent.vue"
	}
	return "UserComponent.tsx"
}

// ArtifactServer is one live dev-server instance, registered in the
// process-wide map so CloseArtifact can find and kill it.
type ArtifactServer struct {
	ID           string
	Port         int
	PID          int
	TemplatePath string
}

// Runner materializes template sources into per-instance preview directories
// and runs/tears down their dev servers.
type Runner struct {
	templatesDir string
	previewDir   string
	bunPath      string
	cache        cacheStore

	mu      sync.Mutex
	servers map[string]*ArtifactServer
}

// NewRunner builds a Runner. templatesDir holds one subdirectory per Kind
// plus a shared/ directory of common components; previewDir is where
// per-instance materialized copies are written; bunPath is the bun
// executable used to install deps and launch vite; cache persists
// files_hash/deps_hash decisions across restarts.
func NewRunner(templatesDir, previewDir, bunPath string, cache cacheStore) *Runner {
	return &Runner{
		templatesDir: templatesDir,
		previewDir:   previewDir,
		bunPath:      bunPath,
		cache:        cache,
		servers:      make(map[string]*ArtifactServer),
	}
}

// RunArtifact materializes and serves the given kind/component pair,
// returning the preview URL once the dev server answers a TCP probe.
func (r *Runner) RunArtifact(ctx context.Context, kind Kind, artifactID, componentSource string) (string, error) {
	serverID := fmt.Sprintf("%s-artifact-%s", kind, artifactID)

	// Replace any previously running instance for this id.
	r.CloseArtifact(serverID)

	templateDir, needInstall, err := r.materialize(ctx, kind, serverID, componentSource)
	if err != nil {
		return "", err
	}

	start, end := PortRange(string(kind))
	port, err := findAvailablePort(start, end)
	if err != nil {
		return "", err
	}

	pid, err := r.startDevServer(templateDir, port, needInstall)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.servers[serverID] = &ArtifactServer{ID: serverID, Port: port, PID: pid, TemplatePath: templateDir}
	r.mu.Unlock()
	metrics.ArtifactServersActive.Inc()

	if err := waitForReady(ctx, port); err != nil {
		r.CloseArtifact(serverID)
		return "", err
	}

	return fmt.Sprintf("http://127.0.0.1:%d", port), nil
}

// CloseArtifact tears down the dev server registered under serverID, if any.
// Missing entries are not an error: closing an artifact that was never run
// (or already closed) is idempotent.
func (r *Runner) CloseArtifact(serverID string) error {
	r.mu.Lock()
	server, ok := r.servers[serverID]
	if ok {
		delete(r.servers, serverID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	metrics.ArtifactServersActive.Dec()

	killProcessGroup(server.PID)
	if isPortOpen("127.0.0.1", server.Port) {
		killProcessesByPort(server.Port)
	}
	return nil
}

// materialize copies the template source (plus shared/) into the instance
// directory unless files_hash is unchanged and the directory already
// exists, and reports whether node_modules needs a fresh install.
func (r *Runner) materialize(ctx context.Context, kind Kind, serverID, componentSource string) (string, bool, error) {
	templateSource := filepath.Join(r.templatesDir, string(kind))
	sharedSource := filepath.Join(r.templatesDir, "shared")
	instanceDir := filepath.Join(r.previewDir, string(kind), serverID)

	comp := componentFile(kind)
	currentFiles, err := combinedFilesHash(templateSource, sharedSource, comp)
	if err != nil {
		return "", false, engineerr.Wrap(engineerr.KindInternal, "hash template files", err)
	}
	currentDeps, err := depsHash(templateSource)
	if err != nil {
		return "", false, engineerr.Wrap(engineerr.KindInternal, "hash template deps", err)
	}

	cached, found, err := loadTemplateCache(ctx, r.cache, string(kind))
	if err != nil {
		return "", false, engineerr.Wrap(engineerr.KindDatabase, "load template cache", err)
	}

	needCopy := true
	needInstall := true
	if found {
		if cached.FilesHash == currentFiles && dirExists(instanceDir) {
			needCopy = false
		}
		if cached.DepsHash == currentDeps && dirExists(filepath.Join(instanceDir, "node_modules")) {
			needInstall = false
		}
	}

	if needCopy {
		if err := copyTemplate(templateSource, instanceDir); err != nil {
			return "", false, engineerr.Wrap(engineerr.KindInternal, "copy template", err)
		}
		if dirExists(sharedSource) {
			if err := copyDirInto(sharedSource, filepath.Join(instanceDir, "src", "shared")); err != nil {
				return "", false, engineerr.Wrap(engineerr.KindInternal, "copy shared components", err)
			}
		}
	}
	if needInstall {
		nodeModules := filepath.Join(instanceDir, "node_modules")
		if dirExists(nodeModules) {
			os.RemoveAll(nodeModules)
		}
	}

	if err := saveTemplateCache(ctx, r.cache, string(kind), templateCache{FilesHash: currentFiles, DepsHash: currentDeps}); err != nil {
		return "", false, engineerr.Wrap(engineerr.KindDatabase, "save template cache", err)
	}

	componentPath := filepath.Join(instanceDir, "src", comp)
	if err := os.MkdirAll(filepath.Dir(componentPath), 0o755); err != nil {
		return "", false, engineerr.Wrap(engineerr.KindInternal, "create src dir", err)
	}
	if err := os.WriteFile(componentPath, []byte(componentSource), 0o644); err != nil {
		return "", false, engineerr.Wrap(engineerr.KindInternal, "write component file", err)
	}

	return instanceDir, needInstall, nil
}

func (r *Runner) startDevServer(dir string, port int, forceInstall bool) (int, error) {
	packageJSON := filepath.Join(dir, "package.json")
	if !dirExists(dir) || !fileExists(packageJSON) {
		return 0, engineerr.New(engineerr.KindInternal, fmt.Sprintf("package.json missing in %s", dir))
	}

	nodeModules := filepath.Join(dir, "node_modules")
	if forceInstall || !dirExists(nodeModules) {
		install := exec.Command(r.bunPath, "install", "--force")
		install.Dir = dir
		if out, err := install.CombinedOutput(); err != nil {
			return 0, engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("bun install failed: %s", string(out)), err)
		}
	}

	cmd := exec.Command(r.bunPath, "x", "vite", "--port", fmt.Sprintf("%d", port), "--host", "127.0.0.1")
	cmd.Dir = dir
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return 0, engineerr.Wrap(engineerr.KindInternal, "start dev server", err)
	}

	// Reap the child asynchronously so it never lingers as a zombie once it
	// exits (killed or otherwise).
	go cmd.Wait()

	return cmd.Process.Pid, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
