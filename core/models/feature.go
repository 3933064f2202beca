package models

import "time"

// FeatureClass is the kind of feature a step applies to
type FeatureClass string

const (
	FeatureNumerical   FeatureClass = "numerical"
	FeatureCategorical FeatureClass = "categorical"
	FeatureTemporal    FeatureClass = "temporal"
	FeatureText        FeatureClass = "text"
	FeatureImage       FeatureClass = "image"
)

// FeatureOperation is what a step does to its inputs
type FeatureOperation string

const (
	OperationScaling        FeatureOperation = "scaling"
	OperationEncoding       FeatureOperation = "encoding"
	OperationImputation     FeatureOperation = "imputation"
	OperationTransformation FeatureOperation = "transformation"
	OperationSelection      FeatureOperation = "selection"
	OperationExtraction     FeatureOperation = "extraction"
)

// FeaturePerformance measures how useful a step's outputs are
type FeaturePerformance struct {
	InformationGain   float64 `json:"information_gain"`
	Correlation       float64 `json:"correlation"`
	Variance          float64 `json:"variance"`
	MutualInformation float64 `json:"mutual_information"`
}

// FeatureEngineeringStep is one transformation applied during preprocessing
type FeatureEngineeringStep struct {
	ID             string             `json:"id"`
	JobID          string             `json:"job_id"`
	Name           string             `json:"name" validate:"required"`
	Description    string             `json:"description,omitempty"`
	Class          FeatureClass       `json:"feature_class" validate:"required,oneof=numerical categorical temporal text image"`
	Operation      FeatureOperation   `json:"operation" validate:"required,oneof=scaling encoding imputation transformation selection extraction"`
	Parameters     map[string]any     `json:"parameters,omitempty"`
	InputFeatures  []string           `json:"input_features,omitempty"`
	OutputFeatures []string           `json:"output_features,omitempty"`
	Performance    FeaturePerformance `json:"performance"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Clone returns a deep copy of the step
func (s *FeatureEngineeringStep) Clone() *FeatureEngineeringStep {
	if s == nil {
		return nil
	}
	c := *s
	c.Parameters = CloneParams(s.Parameters)
	c.InputFeatures = cloneStrings(s.InputFeatures)
	c.OutputFeatures = cloneStrings(s.OutputFeatures)
	return &c
}
