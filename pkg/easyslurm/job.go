// Package easyslurm creates self-contained, resumable Slurm job directories
// and manages their multi-submission lifecycle.
//
// A job directory freezes the caller's source and asset trees, carries a
// persisted status record, and holds a generated batch script that knows
// how to set up, run, get interrupted gracefully before the scheduler's
// time limit, save results, and resubmit itself to continue, up to a
// configured resubmission limit.
package easyslurm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/YodaEmbedding/easy-slurm/internal/archive"
	"github.com/YodaEmbedding/easy-slurm/internal/slurm"
	"github.com/YodaEmbedding/easy-slurm/pkg/format"
)

// Version is the engine version, recorded in every status record and
// exposed to hooks as EASY_SLURM_VERSION.
const Version = "0.4.0"

// Config describes one job to create and submit.
type Config struct {
	// JobDir is the path template of the durable job directory. It may
	// contain placeholders: {job_name} and {date:...} resolve first;
	// remaining placeholders resolve against FormatConfig.
	JobDir string

	// Src is a directory of source code, frozen into src.tar.gz and
	// extracted to $SLURM_TMPDIR/src on each submission.
	Src string

	// Assets is an optional directory of additional assets, frozen into
	// assets.tar.gz and extracted to $SLURM_TMPDIR/assets.
	Assets string

	// Dataset is an optional path to a .tar archive extracted on the
	// compute node into $SLURM_TMPDIR/datasets. It is never copied into
	// the job directory.
	Dataset string

	// Hooks. OnRun/OnRunResume must each be a single command; they run in
	// the background so the runtime can interrupt them. Setup/SetupResume/
	// Teardown are arbitrary shell fragments. SetupResume may simply call
	// "setup" to reuse the first-run setup code.
	OnRun       string
	OnRunResume string
	Setup       string
	SetupResume string
	Teardown    string

	// SbatchOptions are passed through as #SBATCH directives. The
	// "job-name" option also names the job ("untitled" if absent).
	// "output" and "signal" are always overridden.
	SbatchOptions map[string]any

	// CleanupSeconds is the lead time before the job's hard time limit at
	// which the scheduler signals the script to clean up. Default 120.
	CleanupSeconds int

	// ResubmitLimit bounds the auto-resubmission chain. Default 64.
	ResubmitLimit int

	// ResultsSyncMethod stages results between the job directory and
	// $SLURM_TMPDIR: "rsync", "symlink" (default), or "targz".
	ResultsSyncMethod string

	// Submit dispatches the job after creating the directory. When false,
	// the directory is left on disk for manual submission.
	Submit bool

	// Interactive attaches a blocking foreground session instead of
	// enqueueing a batch submission.
	Interactive bool

	// FormatConfig supplies values for the strict second rendering pass
	// over JobDir (e.g. hyperparameters used in the directory name).
	FormatConfig map[string]any
}

// DefaultConfig returns a Config with the documented defaults applied.
func DefaultConfig() Config {
	return Config{
		CleanupSeconds:    120,
		ResubmitLimit:     64,
		ResultsSyncMethod: "symlink",
		Submit:            true,
	}
}

// withDefaults fills zero-valued fields that have non-zero defaults.
func (c Config) withDefaults() Config {
	if c.CleanupSeconds == 0 {
		c.CleanupSeconds = 120
	}
	if c.ResubmitLimit == 0 {
		c.ResubmitLimit = 64
	}
	if c.ResultsSyncMethod == "" {
		c.ResultsSyncMethod = "symlink"
	}
	return c
}

// jobName returns the sbatch job-name option, or "untitled".
func (c *Config) jobName() string {
	if v, ok := c.SbatchOptions["job-name"]; ok {
		return fmt.Sprint(v)
	}
	return "untitled"
}

// Submitter creates job directories and dispatches them to Slurm.
type Submitter struct {
	logger *slog.Logger
	client *slurm.Client
}

// NewSubmitter returns a Submitter using the real sbatch/srun binaries.
func NewSubmitter(logger *slog.Logger) *Submitter {
	return NewSubmitterWithClient(logger, slurm.NewClient(logger))
}

// NewSubmitterWithClient returns a Submitter with a custom scheduler
// client. Tests inject a client backed by a fake command runner.
func NewSubmitterWithClient(logger *slog.Logger, client *slurm.Client) *Submitter {
	return &Submitter{
		logger: logger.With("component", "submitter"),
		client: client,
	}
}

// SubmitJob creates a job directory with frozen assets and generated
// scripts, then dispatches it unless cfg.Submit is false. It returns the
// path of the created job directory.
func (s *Submitter) SubmitJob(ctx context.Context, cfg Config) (string, error) {
	cfg = cfg.withDefaults()
	if _, ok := syncFragments[cfg.ResultsSyncMethod]; !ok {
		return "", fmt.Errorf("unknown results sync method %q", cfg.ResultsSyncMethod)
	}

	jobDir, err := resolveJobDir(cfg.JobDir, cfg.jobName(), cfg.FormatConfig)
	if err != nil {
		return "", err
	}

	if err := s.createJobDir(jobDir, &cfg); err != nil {
		return "", err
	}

	jobPath := filepath.Join(jobDir, "job.sh")
	src, err := scriptSource(&cfg, jobDir)
	if err != nil {
		return "", err
	}
	if err := writeScript(jobPath, src); err != nil {
		return "", err
	}

	interactiveSrc, err := interactiveScriptSource(&cfg, jobDir, jobPath)
	if err != nil {
		return "", err
	}
	if err := writeScript(filepath.Join(jobDir, "job_interactive.sh"), interactiveSrc); err != nil {
		return "", err
	}

	s.logger.Info("created job directory", "job_dir", jobDir, "job_name", cfg.jobName())

	if cfg.Submit {
		if err := s.SubmitJobDir(ctx, jobDir, cfg.Interactive); err != nil {
			return "", err
		}
	}
	return jobDir, nil
}

// SubmitJobDir dispatches an already-created job directory. In batch mode
// the scheduler-assigned id is appended to the job_ids ledger; an
// interactive session blocks until it ends and records no ledger entry.
func (s *Submitter) SubmitJobDir(ctx context.Context, jobDir string, interactive bool) error {
	if interactive {
		return s.client.Interactive(ctx, filepath.Join(jobDir, "job_interactive.sh"))
	}

	id, err := s.client.Submit(ctx, filepath.Join(jobDir, "job.sh"))
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", jobDir, err)
	}
	if err := AppendJobID(jobDir, id); err != nil {
		return err
	}
	return nil
}

// resolveJobDir renders the job directory template in two passes: a silent
// pass for job-identity keys ({job_name}, {date}) and a strict pass for
// user config keys. Placeholders unresolved after both passes are a
// configuration error.
func resolveJobDir(tmpl, jobName string, formatConfig map[string]any) (string, error) {
	if formatConfig == nil {
		formatConfig = map[string]any{}
	}
	jobDir, err := format.RenderChain(tmpl,
		map[string]any{"job_name": jobName},
		formatConfig,
	)
	if err != nil {
		return "", fmt.Errorf("render job dir: %w", err)
	}
	return expandPath(jobDir), nil
}

// createJobDir creates the durable job directory, freezes the source and
// asset trees, and writes the initial status record. A directory that
// already holds a status record is never reinitialized.
func (s *Submitter) createJobDir(jobDir string, cfg *Config) error {
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}
	if _, err := os.Stat(statusFile(jobDir)); err == nil {
		return fmt.Errorf("job dir %s is already initialized", jobDir)
	}

	if cfg.Src != "" {
		if err := s.freeze(cfg.Src, filepath.Join(jobDir, "src.tar.gz"), "src"); err != nil {
			return err
		}
	}
	if cfg.Assets != "" {
		if err := s.freeze(cfg.Assets, filepath.Join(jobDir, "assets.tar.gz"), "assets"); err != nil {
			return err
		}
	}

	rec := &StatusRecord{Status: StatusNew, Version: Version, ResubmitCount: 0}
	return rec.Store(jobDir)
}

// freeze snapshots a directory tree into the job directory.
func (s *Submitter) freeze(srcDir, dstPath, rootName string) error {
	if err := archive.Create(expandPath(srcDir), dstPath, rootName); err != nil {
		return fmt.Errorf("freeze %s: %w", rootName, err)
	}
	if info, err := os.Stat(dstPath); err == nil {
		s.logger.Debug("froze archive",
			"archive", dstPath,
			"size", humanize.Bytes(uint64(info.Size())),
		)
	}
	return nil
}

// writeScript writes an executable script, fixed once at creation time.
func writeScript(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return fmt.Errorf("write script %s: %w", path, err)
	}
	return nil
}

// expandPath expands environment variables and makes the path absolute.
// Empty paths stay empty.
func expandPath(path string) string {
	if path == "" {
		return ""
	}
	expanded := os.ExpandEnv(path)
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return expanded
	}
	return abs
}
