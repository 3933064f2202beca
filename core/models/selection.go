package models

import "time"

// ModelCandidate is one model considered for selection. The four sub-scores
// are normalised to 0-100.
type ModelCandidate struct {
	ID                string            `json:"id"` // Trial the candidate was built from
	Algorithm         string            `json:"algorithm"`
	Hyperparameters   map[string]any    `json:"hyperparameters"`
	Performance       PerformanceRecord `json:"performance"`
	Interpretability  float64           `json:"interpretability"`
	Robustness        float64           `json:"robustness"`
	Scalability       float64           `json:"scalability"`
	BusinessAlignment float64           `json:"business_alignment"`
	OverallScore      float64           `json:"overall_score"`
	Rank              int               `json:"rank"`
}

// CrossValidation summarises per-fold scores
type CrossValidation struct {
	Folds  int       `json:"folds"`
	Scores []float64 `json:"scores"`
	Mean   float64   `json:"mean"`
	StdDev float64   `json:"std_dev"` // Population standard deviation
}

// ModelSelection is the ranking and ensembling session of one job
type ModelSelection struct {
	ID              string           `json:"id"`
	JobID           string           `json:"job_id"`
	Candidates      []ModelCandidate `json:"candidates"`
	Criteria        []string         `json:"criteria"`
	EnsembleMethods []string         `json:"ensemble_methods"`
	SelectedModels  []string         `json:"selected_models"`
	EnsembleWeights []float64        `json:"ensemble_weights"` // Same order as SelectedModels
	FinalScore      float64          `json:"final_score"`
	CrossValidation *CrossValidation `json:"cross_validation,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Clone returns a deep copy of the selection
func (s *ModelSelection) Clone() *ModelSelection {
	if s == nil {
		return nil
	}
	c := *s
	if s.Candidates != nil {
		c.Candidates = make([]ModelCandidate, len(s.Candidates))
		for i, cand := range s.Candidates {
			cand.Hyperparameters = CloneParams(cand.Hyperparameters)
			cand.Performance = cand.Performance.Clone()
			c.Candidates[i] = cand
		}
	}
	c.Criteria = cloneStrings(s.Criteria)
	c.EnsembleMethods = cloneStrings(s.EnsembleMethods)
	c.SelectedModels = cloneStrings(s.SelectedModels)
	if s.EnsembleWeights != nil {
		c.EnsembleWeights = append([]float64(nil), s.EnsembleWeights...)
	}
	if s.CrossValidation != nil {
		cv := *s.CrossValidation
		cv.Scores = append([]float64(nil), s.CrossValidation.Scores...)
		c.CrossValidation = &cv
	}
	return &c
}
