package config

import (
	"fmt"
	"strings"

	"github.com/newslens/newslens/pkg/llm"
)

// Validator checks a loaded configuration comprehensively with clear error
// messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// validate is the loader's hook.
func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

// ValidateAll performs comprehensive validation (fail-fast, stops at the
// first error). Order: models → budget → retrieval → experiments → features.
func (v *Validator) ValidateAll() error {
	if err := v.validateModels(); err != nil {
		return fmt.Errorf("model validation failed: %w", err)
	}
	if err := v.validateBudget(); err != nil {
		return fmt.Errorf("budget validation failed: %w", err)
	}
	if err := v.validateRetrieval(); err != nil {
		return fmt.Errorf("retrieval validation failed: %w", err)
	}
	if err := v.validateExperiments(); err != nil {
		return fmt.Errorf("experiment validation failed: %w", err)
	}
	if err := v.validateFeatures(); err != nil {
		return fmt.Errorf("feature validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateModels() error {
	m := v.cfg.Models
	if m.Primary == "" {
		return NewValidationError("models", "", "primary", fmt.Errorf("%w: primary model is required", ErrInvalidValue))
	}
	for _, label := range append([]string{m.Primary}, m.Fallbacks...) {
		if llm.FamilyForModel(label) == "" {
			return NewValidationError("models", label, "",
				fmt.Errorf("%w: no provider family serves model label", ErrInvalidValue))
		}
	}
	if m.MaxOutputTokens < 1 {
		return NewValidationError("models", "", "max_output_tokens", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if m.Temperature < 0 || m.Temperature > 2 {
		return NewValidationError("models", "", "temperature", fmt.Errorf("%w: must be in [0, 2]", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateBudget() error {
	b := v.cfg.Budget
	if b.MaxTokens < 1 {
		return NewValidationError("budget", "", "max_tokens", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if b.MaxCents <= 0 {
		return NewValidationError("budget", "", "max_cents", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if b.TimeoutSeconds <= 0 {
		return NewValidationError("budget", "", "timeout_seconds", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateRetrieval() error {
	r := v.cfg.Retrieval
	if r.KFinal < 1 {
		return NewValidationError("retrieval", "", "k_final", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if r.Window == "" {
		return NewValidationError("retrieval", "", "window", fmt.Errorf("%w: window is required", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateExperiments() error {
	for _, e := range v.cfg.Experiments {
		if err := e.Validate(); err != nil {
			return NewValidationError("experiment", e.ID, "", err)
		}
		for _, target := range e.TargetCommands {
			if !strings.HasPrefix(target, "/") {
				return NewValidationError("experiment", e.ID, "target_commands",
					fmt.Errorf("%w: target %q must start with /", ErrInvalidValue, target))
			}
		}
	}
	return nil
}

func (v *Validator) validateFeatures() error {
	for _, cmd := range v.cfg.Features.DisabledCommands {
		if !strings.HasPrefix(cmd, "/") {
			return NewValidationError("features", "", "disabled_commands",
				fmt.Errorf("%w: command %q must start with /", ErrInvalidValue, cmd))
		}
	}
	return nil
}
