// Package collaborator runs the external export and load programs as child
// processes and reports how they ended.
package collaborator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// waitDelay bounds how long Wait keeps reading output after the child was
// killed, in case a grandchild still holds the pipes.
const waitDelay = 5 * time.Second

// Command describes one collaborator invocation:
// <Interpreter> <InterpreterArgs...> <Script> <Args...>, run in Dir.
type Command struct {
	Name            string
	Interpreter     string
	InterpreterArgs []string
	Script          string
	Args            []string
	Dir             string
	Env             []string
}

func (c Command) argv() []string {
	argv := make([]string, 0, len(c.InterpreterArgs)+1+len(c.Args))
	argv = append(argv, c.InterpreterArgs...)
	argv = append(argv, c.Script)
	argv = append(argv, c.Args...)
	return argv
}

// Result describes how a collaborator ended. ExitCode is -1 when the process
// could not be started or was killed by a signal.
type Result struct {
	Name     string
	ExitCode int
	Duration time.Duration
	// LastLine is the last non-empty line the collaborator wrote to stdout.
	LastLine string
	Err      error
}

// Succeeded reports whether the collaborator started and exited 0.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Executor runs a collaborator to completion.
type Executor interface {
	Run(ctx context.Context, cmd Command) Result
}

// Runner is the os/exec backed Executor. Every output line of the child is
// logged as it arrives.
type Runner struct {
	logger *zap.Logger
}

// NewRunner creates a runner logging collaborator output to logger.
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run starts cmd, streams its output and blocks until it exits or ctx is
// done, in which case the child is killed.
func (r *Runner) Run(ctx context.Context, cmd Command) Result {
	start := time.Now()
	res := Result{Name: cmd.Name, ExitCode: -1}
	log := r.logger.With(zap.String("collaborator", cmd.Name))

	c := exec.CommandContext(ctx, cmd.Interpreter, cmd.argv()...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	c.Env = append(c.Env, cmd.Env...)
	c.WaitDelay = waitDelay

	stdout := &lineWriter{emit: func(line string) {
		log.Info(line, zap.String("stream", "stdout"))
		if strings.TrimSpace(line) != "" {
			res.LastLine = strings.TrimSpace(line)
		}
	}}
	stderr := &lineWriter{emit: func(line string) {
		log.Warn(line, zap.String("stream", "stderr"))
	}}
	c.Stdout = stdout
	c.Stderr = stderr

	log.Info("Starting collaborator",
		zap.String("interpreter", cmd.Interpreter),
		zap.String("script", cmd.Script),
		zap.Strings("args", cmd.Args),
		zap.String("dir", cmd.Dir))

	if err := c.Start(); err != nil {
		res.Duration = time.Since(start)
		res.Err = fmt.Errorf("failed to start %s: %w", cmd.Name, err)
		log.Error("Failed to start collaborator", zap.Error(err))
		return res
	}

	err := c.Wait()
	stdout.flush()
	stderr.flush()
	res.Duration = time.Since(start)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if ctx.Err() != nil {
			res.Err = fmt.Errorf("%s interrupted: %w", cmd.Name, ctx.Err())
		}
	default:
		res.Err = fmt.Errorf("%s did not complete: %w", cmd.Name, err)
	}

	log.Info("Collaborator finished",
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
		zap.NamedError("cause", res.Err))

	return res
}

// lineWriter splits a byte stream into lines. exec copies each stream from
// a single goroutine, so no locking is needed.
type lineWriter struct {
	buf  bytes.Buffer
	emit func(line string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if w.buf.Len() == 0 {
		return
	}
	w.emit(strings.TrimRight(w.buf.String(), "\r"))
	w.buf.Reset()
}
