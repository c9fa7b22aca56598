package easyslurm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/YodaEmbedding/easy-slurm/internal/slurm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSubmitter returns a Submitter whose scheduler client answers sbatch
// with sequential job ids and records every invocation.
func fakeSubmitter(t *testing.T, calls *[][]string) *Submitter {
	t.Helper()
	nextID := 1000
	run := func(_ context.Context, _ bool, name string, args ...string) (string, error) {
		*calls = append(*calls, append([]string{name}, args...))
		if name == "sbatch" {
			nextID++
			return fmt.Sprintf("Submitted batch job %d\n", nextID), nil
		}
		return "", nil
	}
	client := slurm.NewClientWithRunner(discardLogger(), run)
	return NewSubmitterWithClient(discardLogger(), client)
}

func testJobConfig(t *testing.T) Config {
	t.Helper()
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "main.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.JobDir = filepath.Join(t.TempDir(), "job")
	cfg.Src = srcDir
	cfg.OnRun = "python main.py"
	cfg.OnRunResume = "python main.py --resume"
	cfg.Setup = "echo setup"
	cfg.SetupResume = "setup"
	cfg.Teardown = "echo teardown"
	cfg.SbatchOptions = map[string]any{"job-name": "demo", "time": "1:00:00"}
	return cfg
}

func TestSubmitJob_CreatesJobDir(t *testing.T) {
	var calls [][]string
	s := fakeSubmitter(t, &calls)
	cfg := testJobConfig(t)

	jobDir, err := s.SubmitJob(context.Background(), cfg)
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}

	// Fresh job directories start at status=new with resubmit_count=0.
	rec, err := LoadStatus(jobDir)
	if err != nil {
		t.Fatalf("LoadStatus: %v", err)
	}
	if rec.Status != StatusNew {
		t.Errorf("status = %s, want new", rec.Status)
	}
	if rec.ResubmitCount != 0 {
		t.Errorf("resubmit_count = %d, want 0", rec.ResubmitCount)
	}
	if rec.Version != Version {
		t.Errorf("version = %q, want %q", rec.Version, Version)
	}

	if _, err := os.Stat(filepath.Join(jobDir, "src.tar.gz")); err != nil {
		t.Errorf("src archive missing: %v", err)
	}
	for _, script := range []string{"job.sh", "job_interactive.sh"} {
		info, err := os.Stat(filepath.Join(jobDir, script))
		if err != nil {
			t.Fatalf("%s missing: %v", script, err)
		}
		if info.Mode().Perm()&0o100 == 0 {
			t.Errorf("%s not executable: %v", script, info.Mode())
		}
	}

	ids, err := ReadJobIDs(jobDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != 1001 {
		t.Errorf("ledger = %v, want [1001]", ids)
	}
	if len(calls) != 1 || calls[0][0] != "sbatch" {
		t.Errorf("calls = %v, want single sbatch", calls)
	}
}

func TestSubmitJob_NoDispatch(t *testing.T) {
	var calls [][]string
	s := fakeSubmitter(t, &calls)
	cfg := testJobConfig(t)
	cfg.Submit = false

	jobDir, err := s.SubmitJob(context.Background(), cfg)
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
	ids, err := ReadJobIDs(jobDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("ledger = %v, want empty", ids)
	}
	// The directory stays on disk for manual submission later.
	if _, err := os.Stat(filepath.Join(jobDir, "job.sh")); err != nil {
		t.Errorf("job.sh missing: %v", err)
	}
}

func TestSubmitJob_RendersJobDirTemplate(t *testing.T) {
	var calls [][]string
	s := fakeSubmitter(t, &calls)
	cfg := testJobConfig(t)
	root := t.TempDir()
	cfg.JobDir = filepath.Join(root, "{date:%Y}_{job_name}_bs={hp.bs:02}")
	cfg.FormatConfig = map[string]any{"hp": map[string]any{"bs": 4}}
	cfg.Submit = false

	jobDir, err := s.SubmitJob(context.Background(), cfg)
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	want := filepath.Join(root, time.Now().Format("2006")+"_demo_bs=04")
	if jobDir != want {
		t.Errorf("jobDir = %q, want %q", jobDir, want)
	}
}

func TestSubmitJob_JobDirBraceEscapes(t *testing.T) {
	var calls [][]string
	s := fakeSubmitter(t, &calls)
	cfg := testJobConfig(t)
	root := t.TempDir()
	cfg.JobDir = filepath.Join(root, "{{raw}}_{job_name}")
	cfg.Submit = false

	jobDir, err := s.SubmitJob(context.Background(), cfg)
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	// {{raw}} is a brace literal, not a placeholder; the identity pass
	// must not expose it to the config pass.
	want := filepath.Join(root, "{raw}_demo")
	if jobDir != want {
		t.Errorf("jobDir = %q, want %q", jobDir, want)
	}
	if _, err := os.Stat(filepath.Join(jobDir, "job.sh")); err != nil {
		t.Errorf("job script missing: %v", err)
	}
}

func TestSubmitJob_UnresolvedPlaceholderFails(t *testing.T) {
	var calls [][]string
	s := fakeSubmitter(t, &calls)
	cfg := testJobConfig(t)
	cfg.JobDir = filepath.Join(t.TempDir(), "{no.such.key}")

	if _, err := s.SubmitJob(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unresolved placeholder")
	}
}

func TestSubmitJob_RefusesReinitialization(t *testing.T) {
	var calls [][]string
	s := fakeSubmitter(t, &calls)
	cfg := testJobConfig(t)
	cfg.Submit = false

	jobDir, err := s.SubmitJob(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first SubmitJob: %v", err)
	}

	cfg.JobDir = jobDir
	if _, err := s.SubmitJob(context.Background(), cfg); err == nil {
		t.Fatal("expected error resubmitting into an initialized job dir")
	}
}

func TestSubmitJob_DispatchFailureKeepsJobDir(t *testing.T) {
	run := func(context.Context, bool, string, ...string) (string, error) {
		return "sbatch: error: Batch job submission failed\n", nil
	}
	client := slurm.NewClientWithRunner(discardLogger(), run)
	s := NewSubmitterWithClient(discardLogger(), client)
	cfg := testJobConfig(t)

	_, err := s.SubmitJob(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected dispatch error")
	}

	// The job directory and script survive for diagnosis and manual retry.
	if _, statErr := os.Stat(filepath.Join(cfg.JobDir, "job.sh")); statErr != nil {
		t.Errorf("job.sh missing after dispatch failure: %v", statErr)
	}
}

func TestSubmitJobDir_Interactive(t *testing.T) {
	var calls [][]string
	s := fakeSubmitter(t, &calls)
	cfg := testJobConfig(t)
	cfg.Submit = false

	jobDir, err := s.SubmitJob(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SubmitJobDir(context.Background(), jobDir, true); err != nil {
		t.Fatalf("SubmitJobDir interactive: %v", err)
	}
	if len(calls) != 1 || calls[0][0] != "srun" {
		t.Fatalf("calls = %v, want srun", calls)
	}
	if !strings.Contains(strings.Join(calls[0], " "), "job_interactive.sh") {
		t.Errorf("srun must use the interactive script: %v", calls[0])
	}

	// Interactive sessions record no ledger entry.
	ids, err := ReadJobIDs(jobDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("ledger = %v, want empty", ids)
	}
}

func TestSubmitJob_UnknownSyncMethod(t *testing.T) {
	var calls [][]string
	s := fakeSubmitter(t, &calls)
	cfg := testJobConfig(t)
	cfg.ResultsSyncMethod = "ftp"

	if _, err := s.SubmitJob(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown sync method")
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("EASY_SLURM_TEST_ROOT", "/data/root")
	got := expandPath("$EASY_SLURM_TEST_ROOT/jobs")
	if got != "/data/root/jobs" {
		t.Errorf("expandPath = %q", got)
	}
	if expandPath("") != "" {
		t.Error("empty path must stay empty")
	}
	if !filepath.IsAbs(expandPath("relative/path")) {
		t.Error("relative paths must become absolute")
	}
}
