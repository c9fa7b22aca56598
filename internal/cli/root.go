package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/YodaEmbedding/easy-slurm/internal/logging"
	"github.com/YodaEmbedding/easy-slurm/pkg/easyslurm"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger    *slog.Logger
	submitter *easyslurm.Submitter
)

// NewRootCmd creates the root cobra command for the easy-slurm CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "easy-slurm",
		Short: "easy-slurm — create and submit resumable Slurm jobs",
		Long: "easy-slurm freezes your source tree into a self-contained job directory\n" +
			"with a generated batch script that checkpoints, saves results, and\n" +
			"resubmits itself until the job completes.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(logging.ParseLevel(flagLogLevel), flagLogFormat)
			submitter = easyslurm.NewSubmitter(logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSubmitCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}
