package models

import "time"

// Trial is one evaluated model configuration within a job
type Trial struct {
	ID                 string            `json:"id"`
	Algorithm          string            `json:"algorithm"`
	Hyperparameters    map[string]any    `json:"hyperparameters"`
	Features           []string          `json:"features,omitempty"`
	Preprocessing      []string          `json:"preprocessing,omitempty"`
	FeatureEngineering []string          `json:"feature_engineering,omitempty"`
	Performance        PerformanceRecord `json:"performance"`
	Status             TrialStatus       `json:"status"`
	Error              string            `json:"error,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
}

// TrialStatus represents the state of a trial
type TrialStatus string

const (
	TrialStatusPending   TrialStatus = "pending"
	TrialStatusRunning   TrialStatus = "running"
	TrialStatusCompleted TrialStatus = "completed"
	TrialStatusFailed    TrialStatus = "failed"
)

// IsTerminal reports whether the trial has finished
func (s TrialStatus) IsTerminal() bool {
	return s == TrialStatusCompleted || s == TrialStatusFailed
}

// PerformanceRecord holds the metrics reported for a trained model
type PerformanceRecord struct {
	Accuracy        float64  `json:"accuracy"`
	Precision       float64  `json:"precision"`
	Recall          float64  `json:"recall"`
	F1              float64  `json:"f1"`
	AUC             *float64 `json:"auc,omitempty"`
	MSE             *float64 `json:"mse,omitempty"`
	MAE             *float64 `json:"mae,omitempty"`
	CustomMetric    *float64 `json:"custom_metric,omitempty"`
	TrainingTime    float64  `json:"training_time"`  // seconds
	InferenceTime   float64  `json:"inference_time"` // milliseconds per sample
	MemoryUsage     float64  `json:"memory_usage"`   // MB
	ComplexityScore float64  `json:"complexity_score,omitempty"`
}

// Score returns the objective value for this record. Error metrics are
// negated so a larger score is always better. ok is false when the metric
// was not reported.
func (p PerformanceRecord) Score(objective Metric) (score float64, ok bool) {
	switch objective {
	case MetricAccuracy:
		return p.Accuracy, true
	case MetricPrecision:
		return p.Precision, true
	case MetricRecall:
		return p.Recall, true
	case MetricF1:
		return p.F1, true
	case MetricAUC:
		return deref(p.AUC, 1)
	case MetricMSE:
		return deref(p.MSE, -1)
	case MetricMAE:
		return deref(p.MAE, -1)
	case MetricCustom:
		return deref(p.CustomMetric, 1)
	}
	return 0, false
}

func deref(v *float64, sign float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return sign * *v, true
}

// Clone returns a deep copy of the trial
func (t Trial) Clone() Trial {
	c := t
	c.Hyperparameters = CloneParams(t.Hyperparameters)
	c.Features = cloneStrings(t.Features)
	c.Preprocessing = cloneStrings(t.Preprocessing)
	c.FeatureEngineering = cloneStrings(t.FeatureEngineering)
	c.Performance = t.Performance.Clone()
	c.CompletedAt = cloneTime(t.CompletedAt)
	return c
}

// Clone returns a deep copy of the record
func (p PerformanceRecord) Clone() PerformanceRecord {
	c := p
	c.AUC = cloneFloat(p.AUC)
	c.MSE = cloneFloat(p.MSE)
	c.MAE = cloneFloat(p.MAE)
	c.CustomMetric = cloneFloat(p.CustomMetric)
	return c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
