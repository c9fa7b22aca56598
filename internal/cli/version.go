package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YodaEmbedding/easy-slurm/pkg/easyslurm"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the easy-slurm version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("easy-slurm %s\n", easyslurm.Version)
		},
	}
}
