// Package slurm invokes the external Slurm client commands. It shells out
// to sbatch and srun; it does not speak to the controller directly.
package slurm

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// RunFunc executes an external scheduler command and returns its stdout.
// When attach is true the command inherits the caller's terminal instead
// of having its output captured. Tests substitute their own RunFunc.
type RunFunc func(ctx context.Context, attach bool, name string, args ...string) (string, error)

// Client wraps the sbatch and srun command-line clients.
type Client struct {
	logger *slog.Logger
	run    RunFunc
}

// NewClient returns a Client that runs the real scheduler binaries.
func NewClient(logger *slog.Logger) *Client {
	return NewClientWithRunner(logger, runCommand)
}

// NewClientWithRunner returns a Client with a custom command runner.
func NewClientWithRunner(logger *slog.Logger, run RunFunc) *Client {
	return &Client{
		logger: logger.With("component", "slurm-client"),
		run:    run,
	}
}

var submitAckRe = regexp.MustCompile(`^Submitted batch job (\d+)$`)

// Submit enqueues scriptPath with sbatch and returns the scheduler-assigned
// job id parsed from its acknowledgment line. A non-zero exit or an
// unrecognized acknowledgment is a hard failure.
func (c *Client) Submit(ctx context.Context, scriptPath string) (int, error) {
	c.logger.Debug("submitting batch script", "script", scriptPath)

	out, err := c.run(ctx, false, "sbatch", scriptPath)
	if err != nil {
		return 0, fmt.Errorf("sbatch %s: %w", scriptPath, err)
	}

	id, err := ParseSubmitAck(out)
	if err != nil {
		return 0, err
	}

	c.logger.Info("submitted batch job", "job_id", id, "script", scriptPath)
	return id, nil
}

// ParseSubmitAck extracts the job id from an sbatch acknowledgment of the
// form "Submitted batch job <id>".
func ParseSubmitAck(out string) (int, error) {
	m := submitAckRe.FindStringSubmatch(strings.TrimSpace(out))
	if m == nil {
		return 0, fmt.Errorf("unrecognized sbatch acknowledgment %q", strings.TrimSpace(out))
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("parse job id from %q: %w", out, err)
	}
	return id, nil
}

// Interactive attaches a foreground shell initialized from initFile via
// srun. It blocks until the session ends.
func (c *Client) Interactive(ctx context.Context, initFile string) error {
	c.logger.Debug("starting interactive session", "init_file", initFile)

	if _, err := c.run(ctx, true, "srun", "--pty", "bash", "--init-file", initFile); err != nil {
		return fmt.Errorf("srun interactive session: %w", err)
	}
	return nil
}

// runCommand is the production RunFunc.
func runCommand(ctx context.Context, attach bool, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if attach {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return "", cmd.Run()
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}
