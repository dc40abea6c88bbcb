package pki

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

// Command describes one external process invocation.
type Command struct {
	Dir   string
	Env   []string
	Stdin string
	Name  string
	Args  []string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

type execRunner struct{}

// Run executes cmd and returns its combined output. Env is appended to the current environment.
func (execRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	proc := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Env = append(os.Environ(), cmd.Env...)
	// A nil Stdin reads from the null device.
	if cmd.Stdin != "" {
		proc.Stdin = strings.NewReader(cmd.Stdin)
	}
	return proc.CombinedOutput()
}
