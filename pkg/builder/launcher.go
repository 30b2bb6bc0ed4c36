package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Command is one process to launch.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// Process is a running build tool.
type Process interface {
	// Output streams the merged stdout and stderr. It reaches EOF when the
	// process exits.
	Output() io.Reader

	// Wait blocks until exit and returns the exit code. err is set only
	// when the exit status could not be determined.
	Wait() (int, error)

	// Kill terminates the process. Killing an exited process is not an error.
	Kill() error
}

// Launcher starts processes.
type Launcher interface {
	Launch(ctx context.Context, cmd Command) (Process, error)
}

// ExecLauncher launches real operating system processes.
type ExecLauncher struct{}

// Launch implements Launcher.
func (ExecLauncher) Launch(ctx context.Context, c Command) (Process, error) {
	if c.Path == "" {
		return nil, fmt.Errorf("build tool path is required")
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open tool output: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Path, err)
	}
	return &execProcess{cmd: cmd, stdout: stdout}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
}

func (p *execProcess) Output() io.Reader { return p.stdout }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
