// Package selector scores, ranks and ensembles candidate models.
package selector

import (
	"fmt"
	"math"
	"sort"
	"time"

	"automl-engine/core/models"
)

// Weights of the overall score. All are positive, so the score never
// decreases when a single input increases.
const (
	performanceWeight       = 0.40
	interpretabilityWeight  = 0.15
	robustnessWeight        = 0.15
	scalabilityWeight       = 0.15
	businessAlignmentWeight = 0.15
)

// Ensemble methods
const (
	EnsembleSingle          = "single"
	EnsembleVoting          = "voting"
	EnsembleWeightedAverage = "weighted_average"
	EnsembleStacking        = "stacking"
)

// DefaultCriteria are recorded on a selection when none are configured
var DefaultCriteria = []string{"performance", "interpretability", "robustness", "scalability", "business_alignment"}

// Config controls how many models are selected and how they are blended
type Config struct {
	Criteria       []string
	EnsembleMethod string
	TopK           int
}

// ModelSelector ranks candidates and forms an ensemble
type ModelSelector struct {
	cfg Config
}

// New creates a model selector. Zero values default to the top 3 candidates
// blended by weighted average.
func New(cfg Config) (*ModelSelector, error) {
	if cfg.TopK < 0 {
		return nil, fmt.Errorf("%w: top k must not be negative", models.ErrInvalidConfiguration)
	}
	if cfg.TopK == 0 {
		cfg.TopK = 3
	}
	if cfg.EnsembleMethod == "" {
		cfg.EnsembleMethod = EnsembleWeightedAverage
	}
	switch cfg.EnsembleMethod {
	case EnsembleSingle, EnsembleVoting, EnsembleWeightedAverage, EnsembleStacking:
	default:
		return nil, fmt.Errorf("%w: unknown ensemble method %q", models.ErrInvalidConfiguration, cfg.EnsembleMethod)
	}
	if len(cfg.Criteria) == 0 {
		cfg.Criteria = DefaultCriteria
	}
	return &ModelSelector{cfg: cfg}, nil
}

// OverallScore combines the performance metrics with the four sub-scores:
//
//	0.40 * 100 * mean(accuracy, precision, recall, f1)
//	+ 0.15 * (interpretability + robustness + scalability + businessAlignment)
func OverallScore(c models.ModelCandidate) float64 {
	p := c.Performance
	performance := 100 * (p.Accuracy + p.Precision + p.Recall + p.F1) / 4
	return performanceWeight*performance +
		interpretabilityWeight*c.Interpretability +
		robustnessWeight*c.Robustness +
		scalabilityWeight*c.Scalability +
		businessAlignmentWeight*c.BusinessAlignment
}

// Rank scores candidates and orders them by descending overall score. Equal
// scores keep their input order. Ranks are 1-based. The input is not modified.
func (s *ModelSelector) Rank(candidates []models.ModelCandidate) []models.ModelCandidate {
	ranked := make([]models.ModelCandidate, len(candidates))
	for i, c := range candidates {
		c.Hyperparameters = models.CloneParams(c.Hyperparameters)
		c.OverallScore = OverallScore(c)
		ranked[i] = c
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].OverallScore > ranked[j].OverallScore
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Select ranks the candidates and picks the ensemble. Weights follow the
// order of SelectedModels and sum to 1.
func (s *ModelSelector) Select(id, jobID string, candidates []models.ModelCandidate, at time.Time) (*models.ModelSelection, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates to select from", models.ErrInvalidConfiguration)
	}
	ranked := s.Rank(candidates)

	k := s.cfg.TopK
	if s.cfg.EnsembleMethod == EnsembleSingle {
		k = 1
	}
	if k > len(ranked) {
		k = len(ranked)
	}
	chosen := ranked[:k]

	selected := make([]string, k)
	for i, c := range chosen {
		selected[i] = c.ID
	}
	weights := s.weights(chosen)

	final := 0.0
	for i, c := range chosen {
		final += weights[i] * c.OverallScore
	}

	return &models.ModelSelection{
		ID:              id,
		JobID:           jobID,
		Candidates:      ranked,
		Criteria:        append([]string(nil), s.cfg.Criteria...),
		EnsembleMethods: []string{s.cfg.EnsembleMethod},
		SelectedModels:  selected,
		EnsembleWeights: weights,
		FinalScore:      final,
		CreatedAt:       at,
	}, nil
}

func (s *ModelSelector) weights(chosen []models.ModelCandidate) []float64 {
	weights := make([]float64, len(chosen))
	if len(chosen) == 1 {
		weights[0] = 1
		return weights
	}

	total := 0.0
	if s.cfg.EnsembleMethod != EnsembleVoting {
		for _, c := range chosen {
			total += math.Max(c.OverallScore, 0)
		}
	}
	for i, c := range chosen {
		if total > 0 {
			weights[i] = math.Max(c.OverallScore, 0) / total
		} else {
			weights[i] = 1 / float64(len(chosen))
		}
	}
	return weights
}

// CrossValidate summarises per-fold scores using the population standard deviation
func CrossValidate(folds int, scores []float64) (*models.CrossValidation, error) {
	if folds <= 0 {
		return nil, fmt.Errorf("%w: folds must be positive, got %d", models.ErrInvalidConfiguration, folds)
	}
	if len(scores) != folds {
		return nil, fmt.Errorf("%w: expected %d fold scores, got %d", models.ErrInvalidConfiguration, folds, len(scores))
	}

	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(folds)

	variance := 0.0
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(folds)

	return &models.CrossValidation{
		Folds:  folds,
		Scores: append([]float64(nil), scores...),
		Mean:   mean,
		StdDev: math.Sqrt(variance),
	}, nil
}
