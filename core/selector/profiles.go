package selector

import "automl-engine/core/models"

// AlgorithmProfile holds static 0-100 sub-scores for an algorithm family
type AlgorithmProfile struct {
	Interpretability float64
	Robustness       float64
	Scalability      float64
}

// ProfileStore provides sub-scores for known algorithms.
// Static table for now; per-team calibration can replace it later.
type ProfileStore struct {
	profiles map[string]AlgorithmProfile
}

var defaultProfile = AlgorithmProfile{Interpretability: 50, Robustness: 50, Scalability: 50}

// NewProfileStore creates a profile store with the built-in table
func NewProfileStore() *ProfileStore {
	store := &ProfileStore{profiles: make(map[string]AlgorithmProfile)}
	store.initializeProfiles()
	return store
}

func (ps *ProfileStore) initializeProfiles() {
	// Linear and probabilistic models
	ps.profiles["linear_regression"] = AlgorithmProfile{Interpretability: 95, Robustness: 60, Scalability: 90}
	ps.profiles["logistic_regression"] = AlgorithmProfile{Interpretability: 90, Robustness: 65, Scalability: 90}
	ps.profiles["naive_bayes"] = AlgorithmProfile{Interpretability: 80, Robustness: 55, Scalability: 95}
	ps.profiles["arima"] = AlgorithmProfile{Interpretability: 80, Robustness: 55, Scalability: 60}
	ps.profiles["exponential_smoothing"] = AlgorithmProfile{Interpretability: 85, Robustness: 50, Scalability: 70}
	ps.profiles["prophet"] = AlgorithmProfile{Interpretability: 75, Robustness: 70, Scalability: 65}

	// Kernel methods
	ps.profiles["svm"] = AlgorithmProfile{Interpretability: 45, Robustness: 70, Scalability: 40}
	ps.profiles["svr"] = AlgorithmProfile{Interpretability: 45, Robustness: 70, Scalability: 40}

	// Tree ensembles
	ps.profiles["random_forest"] = AlgorithmProfile{Interpretability: 70, Robustness: 85, Scalability: 70}
	ps.profiles["xgboost"] = AlgorithmProfile{Interpretability: 60, Robustness: 85, Scalability: 80}
	ps.profiles["lightgbm"] = AlgorithmProfile{Interpretability: 60, Robustness: 80, Scalability: 90}

	// Clustering
	ps.profiles["kmeans"] = AlgorithmProfile{Interpretability: 80, Robustness: 55, Scalability: 80}
	ps.profiles["mini_batch_kmeans"] = AlgorithmProfile{Interpretability: 80, Robustness: 50, Scalability: 95}
	ps.profiles["dbscan"] = AlgorithmProfile{Interpretability: 65, Robustness: 75, Scalability: 50}
	ps.profiles["hierarchical"] = AlgorithmProfile{Interpretability: 75, Robustness: 60, Scalability: 30}
	ps.profiles["gaussian_mixture"] = AlgorithmProfile{Interpretability: 60, Robustness: 60, Scalability: 60}

	// Neural networks
	ps.profiles["neural_network"] = AlgorithmProfile{Interpretability: 25, Robustness: 70, Scalability: 85}
	ps.profiles["deep_learning"] = AlgorithmProfile{Interpretability: 15, Robustness: 75, Scalability: 85}
	ps.profiles["lstm"] = AlgorithmProfile{Interpretability: 20, Robustness: 70, Scalability: 70}
	ps.profiles["transformer"] = AlgorithmProfile{Interpretability: 15, Robustness: 80, Scalability: 75}
	ps.profiles["bert"] = AlgorithmProfile{Interpretability: 15, Robustness: 85, Scalability: 60}
	ps.profiles["cnn"] = AlgorithmProfile{Interpretability: 25, Robustness: 75, Scalability: 75}
	ps.profiles["transfer_learning"] = AlgorithmProfile{Interpretability: 20, Robustness: 80, Scalability: 75}
	ps.profiles["resnet"] = AlgorithmProfile{Interpretability: 20, Robustness: 85, Scalability: 70}
	ps.profiles["efficientnet"] = AlgorithmProfile{Interpretability: 20, Robustness: 80, Scalability: 80}
	ps.profiles["vision_transformer"] = AlgorithmProfile{Interpretability: 15, Robustness: 85, Scalability: 65}
}

// Profile returns the sub-scores for an algorithm, or a neutral profile if unknown
func (ps *ProfileStore) Profile(algorithm string) AlgorithmProfile {
	if p, ok := ps.profiles[algorithm]; ok {
		return p
	}
	return defaultProfile
}

// BusinessAlignment maps a job's declared business value to a 0-100 sub-score
func BusinessAlignment(metadata models.JobMetadata) float64 {
	switch metadata.BusinessValue {
	case "high":
		return 85
	case "medium":
		return 65
	case "low":
		return 45
	}
	return 60
}
