package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YodaEmbedding/easy-slurm/pkg/easyslurm"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_dir>",
		Short: "Show the status record and submission history of a job directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobDir := args[0]

			rec, err := easyslurm.LoadStatus(jobDir)
			if err != nil {
				return fmt.Errorf("load status: %w", err)
			}
			ids, err := easyslurm.ReadJobIDs(jobDir)
			if err != nil {
				return fmt.Errorf("read job ids: %w", err)
			}

			fmt.Printf("Job dir:  %s\n", jobDir)
			fmt.Printf("  Status:    %s\n", rec.Status)
			fmt.Printf("  Version:   %s\n", rec.Version)
			fmt.Printf("  Resubmits: %d\n", rec.ResubmitCount)
			if len(ids) > 0 {
				fmt.Printf("  Job ids:  ")
				for _, id := range ids {
					fmt.Printf(" %d", id)
				}
				fmt.Println()
			}
			return nil
		},
	}
}
