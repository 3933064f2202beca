// Package recommendation suggests a starting search configuration for a task
// type and dataset shape. It has no dependency on job state.
package recommendation

import (
	"math"

	"automl-engine/core/models"
)

// Dataset size bands
const (
	smallDatasetRows  = 10_000
	mediumDatasetRows = 100_000

	wideFeatureCount = 50
)

// Recommendation is the suggested configuration for a new job
type Recommendation struct {
	Algorithms          []string         `json:"algorithms"`
	Hyperparameters     map[string][]any `json:"hyperparameters"`
	FeatureEngineering  []string         `json:"feature_engineering"`
	Preprocessing       []string         `json:"preprocessing"`
	ExpectedTime        int              `json:"expected_time"` // minutes
	ExpectedPerformance float64          `json:"expected_performance"`
}

// algorithmBands holds the shortlist per task type for the small, medium and
// large dataset bands, in that order
var algorithmBands = map[models.TaskType][3][]string{
	models.TaskClassification: {
		{"random_forest", "svm", "logistic_regression"},
		{"random_forest", "xgboost", "lightgbm"},
		{"xgboost", "lightgbm", "neural_network", "deep_learning"},
	},
	models.TaskRegression: {
		{"linear_regression", "random_forest", "svr"},
		{"random_forest", "xgboost", "lightgbm"},
		{"xgboost", "lightgbm", "neural_network"},
	},
	models.TaskClustering: {
		{"kmeans", "dbscan", "hierarchical"},
		{"kmeans", "dbscan", "gaussian_mixture"},
		{"mini_batch_kmeans", "kmeans"},
	},
	models.TaskTimeSeries: {
		{"arima", "exponential_smoothing", "prophet"},
		{"prophet", "xgboost", "lstm"},
		{"lstm", "transformer", "xgboost"},
	},
	models.TaskNLP: {
		{"naive_bayes", "logistic_regression", "svm"},
		{"logistic_regression", "lstm", "bert"},
		{"bert", "transformer", "deep_learning"},
	},
	models.TaskComputerVision: {
		{"transfer_learning", "cnn"},
		{"cnn", "transfer_learning", "resnet"},
		{"resnet", "efficientnet", "vision_transformer"},
	},
}

// defaultGrids are the starting hyperparameter grids per task type
var defaultGrids = map[models.TaskType]map[string][]any{
	models.TaskClassification: {
		"n_estimators":  {100, 200, 500},
		"max_depth":     {5, 10, 20},
		"learning_rate": {0.01, 0.1, 0.2},
	},
	models.TaskRegression: {
		"n_estimators":  {100, 200, 500},
		"max_depth":     {3, 6, 10},
		"learning_rate": {0.01, 0.05, 0.1},
		"alpha":         {0.001, 0.01, 0.1},
	},
	models.TaskClustering: {
		"n_clusters": {2, 3, 5, 8},
		"init":       {"k-means++", "random"},
	},
}

// Recommend returns the suggested configuration. Unknown task types get no
// algorithms and an empty hyperparameter grid.
func Recommend(taskType models.TaskType, datasetSize, featureCount int) Recommendation {
	rec := Recommendation{
		Algorithms:          algorithmsFor(taskType, datasetSize),
		Hyperparameters:     models.CloneSpace(defaultGrids[taskType]),
		FeatureEngineering:  featureEngineeringFor(datasetSize, featureCount),
		Preprocessing:       []string{"scaling", "imputation", "encoding"},
		ExpectedTime:        expectedTime(datasetSize),
		ExpectedPerformance: expectedPerformance(datasetSize),
	}
	if rec.Hyperparameters == nil {
		rec.Hyperparameters = map[string][]any{}
	}
	return rec
}

func algorithmsFor(taskType models.TaskType, datasetSize int) []string {
	bands, ok := algorithmBands[taskType]
	if !ok {
		return []string{}
	}
	var band []string
	switch {
	case datasetSize < smallDatasetRows:
		band = bands[0]
	case datasetSize < mediumDatasetRows:
		band = bands[1]
	default:
		band = bands[2]
	}
	return append([]string(nil), band...)
}

func featureEngineeringFor(datasetSize, featureCount int) []string {
	steps := []string{}
	if featureCount > wideFeatureCount {
		steps = append(steps, "feature_selection", "dimensionality_reduction")
	}
	if datasetSize > mediumDatasetRows {
		steps = append(steps, "sampling", "data_balancing")
	}
	return steps
}

// expectedTime is ten minutes per 10k rows with a 30 minute floor
func expectedTime(datasetSize int) int {
	minutes := int(math.Ceil(float64(datasetSize)/10_000)) * 10
	if minutes < 30 {
		return 30
	}
	return minutes
}

func expectedPerformance(datasetSize int) float64 {
	return math.Min(0.95, 0.7+(float64(datasetSize)/1_000_000)*0.2)
}
