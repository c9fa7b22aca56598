package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/YodaEmbedding/easy-slurm/pkg/easyslurm"
)

// jobFile is the YAML schema of a job config file. Optional scalars are
// pointers so that absent keys keep their defaults.
type jobFile struct {
	JobDir            string         `yaml:"job_dir"`
	Src               string         `yaml:"src"`
	Assets            string         `yaml:"assets"`
	Dataset           string         `yaml:"dataset"`
	OnRun             string         `yaml:"on_run"`
	OnRunResume       string         `yaml:"on_run_resume"`
	Setup             string         `yaml:"setup"`
	SetupResume       string         `yaml:"setup_resume"`
	Teardown          string         `yaml:"teardown"`
	SbatchOptions     map[string]any `yaml:"sbatch_options"`
	CleanupSeconds    *int           `yaml:"cleanup_seconds"`
	ResubmitLimit     *int           `yaml:"resubmit_limit"`
	ResultsSyncMethod string         `yaml:"results_sync_method"`
	Submit            *bool          `yaml:"submit"`
	Interactive       *bool          `yaml:"interactive"`
	Config            map[string]any `yaml:"config"`
}

func newSubmitCmd() *cobra.Command {
	var (
		jobPath    string
		configPath string

		flagJobDir         string
		flagSrc            string
		flagAssets         string
		flagDataset        string
		flagOnRun          string
		flagOnRunResume    string
		flagSetup          string
		flagSetupResume    string
		flagTeardown       string
		flagSbatchOptions  string
		flagCleanupSeconds int
		flagResubmitLimit  int
		flagSyncMethod     string
		flagSubmit         bool
		flagInteractive    bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Create a job directory and submit it to Slurm",
		Long: "Read a job config file, freeze its source and asset trees into a new\n" +
			"job directory, generate the batch script, and submit it. Flags given\n" +
			"on the command line override values from the job file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var jf jobFile
			if jobPath != "" {
				data, err := os.ReadFile(jobPath)
				if err != nil {
					return fmt.Errorf("read job file: %w", err)
				}
				if err := yaml.Unmarshal(data, &jf); err != nil {
					return fmt.Errorf("parse job file: %w", err)
				}
			}
			if configPath != "" {
				data, err := os.ReadFile(configPath)
				if err != nil {
					return fmt.Errorf("read format config: %w", err)
				}
				if err := yaml.Unmarshal(data, &jf.Config); err != nil {
					return fmt.Errorf("parse format config: %w", err)
				}
			}

			cfg := easyslurm.DefaultConfig()
			cfg.JobDir = jf.JobDir
			cfg.Src = jf.Src
			cfg.Assets = jf.Assets
			cfg.Dataset = jf.Dataset
			cfg.OnRun = jf.OnRun
			cfg.OnRunResume = jf.OnRunResume
			cfg.Setup = jf.Setup
			cfg.SetupResume = jf.SetupResume
			cfg.Teardown = jf.Teardown
			cfg.SbatchOptions = jf.SbatchOptions
			cfg.FormatConfig = jf.Config
			if jf.CleanupSeconds != nil {
				cfg.CleanupSeconds = *jf.CleanupSeconds
			}
			if jf.ResubmitLimit != nil {
				cfg.ResubmitLimit = *jf.ResubmitLimit
			}
			if jf.ResultsSyncMethod != "" {
				cfg.ResultsSyncMethod = jf.ResultsSyncMethod
			}
			if jf.Submit != nil {
				cfg.Submit = *jf.Submit
			}
			if jf.Interactive != nil {
				cfg.Interactive = *jf.Interactive
			}

			flags := cmd.Flags()
			setIf := func(name string, apply func()) {
				if flags.Changed(name) {
					apply()
				}
			}
			setIf("job-dir", func() { cfg.JobDir = flagJobDir })
			setIf("src", func() { cfg.Src = flagSrc })
			setIf("assets", func() { cfg.Assets = flagAssets })
			setIf("dataset", func() { cfg.Dataset = flagDataset })
			setIf("on-run", func() { cfg.OnRun = flagOnRun })
			setIf("on-run-resume", func() { cfg.OnRunResume = flagOnRunResume })
			setIf("setup", func() { cfg.Setup = flagSetup })
			setIf("setup-resume", func() { cfg.SetupResume = flagSetupResume })
			setIf("teardown", func() { cfg.Teardown = flagTeardown })
			setIf("cleanup-seconds", func() { cfg.CleanupSeconds = flagCleanupSeconds })
			setIf("resubmit-limit", func() { cfg.ResubmitLimit = flagResubmitLimit })
			setIf("results-sync-method", func() { cfg.ResultsSyncMethod = flagSyncMethod })
			setIf("submit", func() { cfg.Submit = flagSubmit })
			setIf("interactive", func() { cfg.Interactive = flagInteractive })
			if flags.Changed("sbatch-options") {
				var opts map[string]any
				if err := yaml.Unmarshal([]byte(flagSbatchOptions), &opts); err != nil {
					return fmt.Errorf("parse sbatch options: %w", err)
				}
				cfg.SbatchOptions = opts
			}

			if cfg.JobDir == "" {
				return fmt.Errorf("no job directory given (job_dir in the job file, or --job-dir)")
			}

			jobDir, err := submitter.SubmitJob(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			fmt.Printf("Created job directory: %s\n", jobDir)
			if cfg.Submit && !cfg.Interactive {
				ids, err := easyslurm.ReadJobIDs(jobDir)
				if err == nil && len(ids) > 0 {
					fmt.Printf("Submitted batch job: %d\n", ids[len(ids)-1])
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jobPath, "job", "", "Path to job config file (YAML)")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file with values for {placeholders} in job_dir")
	cmd.Flags().StringVar(&flagJobDir, "job-dir", "", "Directory to keep all job files, including src.tar.gz and the generated job.sh")
	cmd.Flags().StringVar(&flagSrc, "src", "", "Directory of source code, archived into the job dir and extracted into $SLURM_TMPDIR on run")
	cmd.Flags().StringVar(&flagAssets, "assets", "", "Directory of additional assets, archived alongside src")
	cmd.Flags().StringVar(&flagDataset, "dataset", "", "Path to a .tar.gz dataset extracted into $SLURM_TMPDIR/datasets on run")
	cmd.Flags().StringVar(&flagOnRun, "on-run", "", "Single command run for first-time jobs")
	cmd.Flags().StringVar(&flagOnRunResume, "on-run-resume", "", "Single command run for jobs resuming from an incomplete run")
	cmd.Flags().StringVar(&flagSetup, "setup", "", "Bash code run during setup for first-time jobs")
	cmd.Flags().StringVar(&flagSetupResume, "setup-resume", "", "Bash code run during setup for resuming jobs (use \"setup\" to reuse)")
	cmd.Flags().StringVar(&flagTeardown, "teardown", "", "Bash code run during teardown")
	cmd.Flags().StringVar(&flagSbatchOptions, "sbatch-options", "", "Options passed to sbatch, as inline YAML/JSON (e.g. '{time: \"3:00:00\"}')")
	cmd.Flags().IntVar(&flagCleanupSeconds, "cleanup-seconds", 120, "Interrupt the job this many seconds before timeout to run cleanup")
	cmd.Flags().IntVar(&flagResubmitLimit, "resubmit-limit", 64, "Maximum number of automatic resubmissions")
	cmd.Flags().StringVar(&flagSyncMethod, "results-sync-method", "symlink", "How results move between job dir and $SLURM_TMPDIR (rsync, symlink, targz)")
	cmd.Flags().BoolVar(&flagSubmit, "submit", true, "Submit the created job to the scheduler")
	cmd.Flags().BoolVar(&flagInteractive, "interactive", false, "Run as a blocking interactive job")
	return cmd
}
