package main

import (
	"encoding/json"
	"fmt"

	"automl-engine/core/models"
	"automl-engine/core/recommendation"

	"github.com/spf13/cobra"
)

var recommendCommand = &cobra.Command{
	Use:   "recommend",
	Short: "Print a starting search configuration as JSON",
	RunE:  runRecommend,
}

var (
	recommendTaskType     string
	recommendDatasetSize  int
	recommendFeatureCount int
)

func init() {
	recommendCommand.Flags().StringVarP(&recommendTaskType, "task-type", "t", "", "Task type (classification, regression, clustering, time-series, nlp, computer-vision)")
	recommendCommand.Flags().IntVar(&recommendDatasetSize, "dataset-size", 0, "Number of rows")
	recommendCommand.Flags().IntVar(&recommendFeatureCount, "feature-count", 0, "Number of features")
	_ = recommendCommand.MarkFlagRequired("task-type")
	rootCmd.AddCommand(recommendCommand)
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	if recommendDatasetSize < 0 || recommendFeatureCount < 0 {
		return fmt.Errorf("dataset size and feature count must not be negative")
	}
	rec := recommendation.Recommend(models.TaskType(recommendTaskType), recommendDatasetSize, recommendFeatureCount)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
