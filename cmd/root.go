package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sfmbench",
		Short:        "Benchmark an SfM pipeline against ground-truth camera trajectories",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "sfmbench.yaml", "config file path")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	return root
}
