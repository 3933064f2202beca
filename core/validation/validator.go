// Package validation rejects structurally invalid job specifications before
// anything is stored.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"automl-engine/core/models"

	"github.com/go-playground/validator/v10"
)

// Validator checks jobs and attached artifacts against their struct tags
type Validator struct {
	validate *validator.Validate
}

// New creates a validator that reports fields by their json names
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidateJob returns a *models.FieldError for the first invalid field.
// Missing required values wrap models.ErrMissingField; everything else wraps
// models.ErrInvalidConstraint.
func (v *Validator) ValidateJob(job *models.Job) error {
	if job == nil {
		return &models.FieldError{Kind: models.ErrMissingField, Field: "job", Message: "is required"}
	}
	if err := v.check(job); err != nil {
		return err
	}
	if job.Optimization.MaxTrials > job.Constraints.MaxTrials {
		return &models.FieldError{
			Kind:    models.ErrInvalidConstraint,
			Field:   "optimization.max_trials",
			Message: fmt.Sprintf("must not exceed constraints.max_trials (%d)", job.Constraints.MaxTrials),
		}
	}
	for name, values := range job.SearchSpace.Hyperparameters {
		if len(values) == 0 {
			return &models.FieldError{
				Kind:    models.ErrInvalidConstraint,
				Field:   "search_space.hyperparameters." + name,
				Message: "must list at least one candidate value",
			}
		}
	}
	return nil
}

// ValidateFeatureStep checks a feature engineering step attached by a caller
func (v *Validator) ValidateFeatureStep(step *models.FeatureEngineeringStep) error {
	if step == nil {
		return &models.FieldError{Kind: models.ErrMissingField, Field: "step", Message: "is required"}
	}
	return v.check(step)
}

func (v *Validator) check(obj any) error {
	err := v.validate.Struct(obj)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validation failed: %w", err)
	}
	return toFieldError(verrs[0])
}

func toFieldError(fe validator.FieldError) *models.FieldError {
	field := fieldPath(fe.Namespace())
	if fe.Tag() == "required" {
		return &models.FieldError{Kind: models.ErrMissingField, Field: field, Message: "is required"}
	}
	msg := fmt.Sprintf("failed %s", fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
	return &models.FieldError{Kind: models.ErrInvalidConstraint, Field: field, Message: msg}
}

// fieldPath drops the root type name: "Job.constraints.max_trials" -> "constraints.max_trials"
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
