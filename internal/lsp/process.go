package lsp

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Process is the subprocess surface the connection needs: three
// redirected streams, exit synchronization, and a kill switch.
//
// Wait must be called exactly once; the monitor goroutine owns that
// call and everyone else synchronizes on its completion.
type Process interface {
	Stdin() io.Writer
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error
	Kill() error
	Pid() int
}

// ProcessStarter spawns one server subprocess. Injected so tests can
// substitute a double with precise control over streams and exit.
type ProcessStarter func() (Process, error)

// CommandStarter returns a ProcessStarter that runs command with args.
// env entries ("KEY=VALUE") are appended to the current environment;
// dir, when non-empty, sets the working directory.
func CommandStarter(command string, args []string, env []string, dir string) ProcessStarter {
	return func() (Process, error) {
		cmd := exec.Command(command, args...)
		cmd.Dir = dir
		if len(env) > 0 {
			cmd.Env = append(os.Environ(), env...)
		}

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			stdin.Close()
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			stdin.Close()
			stdout.Close()
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}

		if err := cmd.Start(); err != nil {
			stdin.Close()
			stdout.Close()
			stderr.Close()
			return nil, fmt.Errorf("start process: %w", err)
		}

		return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
	}
}

// execProcess adapts exec.Cmd to the Process interface.
type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *execProcess) Stdin() io.Writer  { return p.stdin }
func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	p.stdin.Close()
	return err
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
