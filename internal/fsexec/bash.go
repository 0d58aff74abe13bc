package fsexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/aipp-workbench/engine/internal/engineerr"
	"github.com/google/uuid"
)

const (
	defaultTimeout  = 120 * time.Second
	maxTimeout      = 600 * time.Second
	maxOutputChars  = 30000
	truncationNotice = "\n...[output truncated]"
)

// shellCommand returns the shell binary and the flag that introduces an
// inline command.
func shellCommand() (bin string, flag string) {
	if runtime.GOOS == "windows" {
		return "powershell", "-Command"
	}
	if _, err := exec.LookPath("zsh"); err == nil {
		return "zsh", "-c"
	}
	return "bash", "-c"
}

// BashProcess tracks one spawned shell command, foreground or background.
type BashProcess struct {
	ID       string
	Command  string
	mu       sync.Mutex
	buf      bytes.Buffer
	exitCode int
	done     bool
	err      error
}

func (p *BashProcess) appendLocked(s string) {
	p.buf.WriteString(s)
}

// Shell runs commands and tracks background processes.
type Shell struct {
	mu        sync.Mutex
	processes map[string]*BashProcess
}

// NewShell creates an empty Shell.
func NewShell() *Shell {
	return &Shell{processes: make(map[string]*BashProcess)}
}

// ExecuteResult is the outcome of a foreground ExecuteBash call.
type ExecuteResult struct {
	Output   string
	ExitCode int
}

// ExecuteBash runs command to completion (foreground) or spawns it detached
// and returns immediately (background).
func (s *Shell) ExecuteBash(ctx context.Context, command string, runInBackground bool, timeoutMs int) (*ExecuteResult, string, error) {
	bin, flag := shellCommand()
	timeout := defaultTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
		if timeout > maxTimeout {
			timeout = maxTimeout
		}
	}

	if !runInBackground {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		cmd := exec.CommandContext(runCtx, bin, flag, command)
		var combined bytes.Buffer
		cmd.Stdout = &combined
		cmd.Stderr = &combined
		runErr := cmd.Run()
		output := combined.String()
		if len(output) > maxOutputChars {
			output = output[:maxOutputChars] + truncationNotice
		}
		exitCode := 0
		if runErr != nil {
			if exitErr, ok := runErr.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				return nil, "", engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("run %q", command), runErr)
			}
		}
		return &ExecuteResult{Output: output, ExitCode: exitCode}, "", nil
	}

	bashID := uuid.NewString()
	proc := &BashProcess{ID: bashID, Command: command}
	s.mu.Lock()
	s.processes[bashID] = proc
	s.mu.Unlock()

	cmd := exec.Command(bin, flag, command)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, "", engineerr.Wrap(engineerr.KindInternal, "stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, "", engineerr.Wrap(engineerr.KindInternal, "stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, "", engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("start %q", command), err)
	}

	go readInto(proc, stdout, "")
	go readInto(proc, stderr, "[stderr] ")
	go func() {
		waitErr := cmd.Wait()
		proc.mu.Lock()
		defer proc.mu.Unlock()
		proc.done = true
		if waitErr != nil {
			if exitErr, ok := waitErr.(*exec.ExitError); ok {
				proc.exitCode = exitErr.ExitCode()
			}
			proc.err = waitErr
		}
	}()

	return nil, bashID, nil
}

func readInto(proc *BashProcess, r interface {
	Read(p []byte) (int, error)
}, prefix string) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			proc.mu.Lock()
			if prefix != "" {
				for _, line := range splitLines(string(buf[:n])) {
					proc.appendLocked(prefix + line + "\n")
				}
			} else {
				proc.appendLocked(string(buf[:n]))
			}
			proc.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// BashOutput is the incremental read result for a background process.
type BashOutput struct {
	Chunk      string
	Completed  bool
	ExitCode   int
	NextCursor int
}

// GetBashOutput returns the output appended since lastReadPos, plus whether
// the process has completed and its exit code if so. filter, if non-empty,
// is a line-wise regex; an invalid filter is ignored and the unfiltered
// chunk is returned instead of failing the call.
func (s *Shell) GetBashOutput(bashID string, lastReadPos int, filter string) (*BashOutput, error) {
	s.mu.Lock()
	proc, ok := s.processes[bashID]
	s.mu.Unlock()
	if !ok {
		return nil, engineerr.New(engineerr.KindNotFound, fmt.Sprintf("unknown bash_id %q", bashID))
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	full := proc.buf.String()
	if lastReadPos < 0 || lastReadPos > len(full) {
		lastReadPos = 0
	}
	chunk := full[lastReadPos:]

	if filter != "" {
		if re, err := regexp.Compile(filter); err == nil {
			var kept []string
			for _, line := range splitLines(chunk) {
				if re.MatchString(line) {
					kept = append(kept, line)
				}
			}
			chunk = strings.Join(kept, "\n")
			if len(kept) > 0 {
				chunk += "\n"
			}
		}
	}

	return &BashOutput{
		Chunk:      chunk,
		Completed:  proc.done,
		ExitCode:   proc.exitCode,
		NextCursor: len(full),
	}, nil
}
