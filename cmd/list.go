package cmd

import (
	"fmt"
	"os"

	"github.com/signalnine/sfmbench/internal/dataset"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the datasets of the input folder in processing order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("input") {
				cfg.Input = flagInput
			}
			datasets, err := dataset.Discover(cfg.Input, dataset.DiscoverOpts{
				Order:  cfg.Order,
				Limit:  cfg.Limit,
				Layout: cfg.Dataset,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Datasets in %s:\n", cfg.Input)
			for _, d := range datasets {
				fmt.Printf("  - %s [%s]\n", d.Name, describe(d))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flagInput, "input", "i", "", "input datasets folder")
	return cmd
}

func describe(d *dataset.Dataset) string {
	cal, err := d.Calibration()
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	kind := "focal only"
	if cal.K != nil {
		kind = "intrinsic matrix"
	}
	if _, err := os.Stat(d.GroundTruth()); err != nil {
		return kind + ", no ground truth"
	}
	return kind
}
