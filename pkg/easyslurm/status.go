package easyslurm

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Status is the persisted lifecycle state of a job. It is written by
// whichever submission is currently executing and read at the start of the
// next one, making the status file the only cross-submission channel.
type Status string

const (
	StatusNew          Status = "new"
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusInterrupting Status = "interrupting"
	StatusInteracting  Status = "interacting"
	StatusFinalizing   Status = "finalizing"
	StatusCompleted    Status = "completed"
	StatusIncomplete   Status = "incomplete"
)

// knownStatuses lists every value a well-formed status file may hold.
var knownStatuses = map[Status]bool{
	StatusNew:          true,
	StatusInitializing: true,
	StatusRunning:      true,
	StatusInterrupting: true,
	StatusInteracting:  true,
	StatusFinalizing:   true,
	StatusCompleted:    true,
	StatusIncomplete:   true,
}

// validTransitions describes one submission's pass through the lifecycle.
// StatusNew and StatusIncomplete are both valid starting points; only
// StatusCompleted is terminal.
var validTransitions = map[Status][]Status{
	StatusNew:          {StatusInitializing},
	StatusIncomplete:   {StatusInitializing},
	StatusInitializing: {StatusRunning, StatusInteracting},
	StatusRunning:      {StatusInterrupting, StatusFinalizing},
	StatusInterrupting: {StatusFinalizing},
	StatusInteracting:  {StatusFinalizing},
	StatusFinalizing:   {StatusCompleted, StatusIncomplete},
}

// IsTerminal reports whether no further submission will advance the job.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// CanTransitionTo reports whether moving from s to next is a legal step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ErrUnknownStatus marks a status file holding a value this version does
// not recognize. It is a configuration error: the submission must abort
// rather than guess between first-run and resume behavior.
var ErrUnknownStatus = fmt.Errorf("unknown job status")

// StatusRecord is the parsed contents of a job directory's status file.
type StatusRecord struct {
	Status        Status
	Version       string
	ResubmitCount int
}

// statusFile returns the path of the status file inside jobDir.
func statusFile(jobDir string) string {
	return filepath.Join(jobDir, "status")
}

// LoadStatus reads and validates the status record of a job directory.
// Unknown keys are ignored so newer runtimes can add fields.
func LoadStatus(jobDir string) (*StatusRecord, error) {
	f, err := os.Open(statusFile(jobDir))
	if err != nil {
		return nil, fmt.Errorf("open status file: %w", err)
	}
	defer f.Close()

	rec := &StatusRecord{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "status":
			rec.Status = Status(value)
		case "easy_slurm_version":
			rec.Version = value
		case "resubmit_count":
			count, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("parse resubmit_count %q: %w", value, err)
			}
			rec.ResubmitCount = count
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read status file: %w", err)
	}

	if !knownStatuses[rec.Status] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, rec.Status)
	}
	return rec, nil
}

// Store writes the record to jobDir's status file, replacing it whole.
// Single-writer overwrite is safe: at most one submission is ever active.
func (r *StatusRecord) Store(jobDir string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "status=%s\n", r.Status)
	fmt.Fprintf(&b, "easy_slurm_version=%s\n", r.Version)
	fmt.Fprintf(&b, "resubmit_count=%d\n", r.ResubmitCount)

	if err := os.WriteFile(statusFile(jobDir), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	return nil
}
