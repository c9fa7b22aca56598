package easyslurm

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ledgerFile returns the path of the job_ids ledger inside jobDir.
func ledgerFile(jobDir string) string {
	return filepath.Join(jobDir, "job_ids")
}

// AppendJobID records a scheduler-assigned submission id in the job's
// append-only ledger, one integer per line in dispatch order.
func AppendJobID(jobDir string, id int) error {
	f, err := os.OpenFile(ledgerFile(jobDir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open job_ids ledger: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", id); err != nil {
		f.Close()
		return fmt.Errorf("append to job_ids ledger: %w", err)
	}
	return f.Close()
}

// ReadJobIDs returns every submission id recorded for the job, in dispatch
// order. A job that was never dispatched has no ledger; that is not an
// error.
func ReadJobIDs(jobDir string) ([]int, error) {
	f, err := os.Open(ledgerFile(jobDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open job_ids ledger: %w", err)
	}
	defer f.Close()

	var ids []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("parse job id %q: %w", line, err)
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read job_ids ledger: %w", err)
	}
	return ids, nil
}
