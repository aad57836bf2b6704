package config

import "fmt"

// Validator validates configuration comprehensively with clear error
// messages, fail-fast. The surface is small enough that a struct-tag
// validator wouldn't earn its dependency.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates in dependency order: schema/skew gates first
// (ingestion can't run without them), then detection tuning, then phase
// scheduling, then the static tables.
func (v *Validator) ValidateAll() error {
	if err := v.validateSchema(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if err := v.validateSkew(); err != nil {
		return fmt.Errorf("skew validation failed: %w", err)
	}
	if err := v.validateBaseline(); err != nil {
		return fmt.Errorf("baseline validation failed: %w", err)
	}
	if err := v.validateResource(); err != nil {
		return fmt.Errorf("resource validation failed: %w", err)
	}
	if err := v.validatePhase(); err != nil {
		return fmt.Errorf("phase validation failed: %w", err)
	}
	if err := v.validateRiskWeights(); err != nil {
		return fmt.Errorf("risk weights validation failed: %w", err)
	}
	if err := v.validatePolicies(); err != nil {
		return fmt.Errorf("policy validation failed: %w", err)
	}
	if err := v.validateRecommendations(); err != nil {
		return fmt.Errorf("recommendation validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateSchema() error {
	if len(v.cfg.Schema.AcceptMajors) == 0 {
		return NewValidationError("schema", "accept_majors", "", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateSkew() error {
	if v.cfg.Skew.Past <= 0 {
		return NewValidationError("skew", "past", "", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if v.cfg.Skew.Future <= 0 {
		return NewValidationError("skew", "future", "", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateBaseline() error {
	b := v.cfg.Baseline
	if b.WindowSize < 1 {
		return NewValidationError("baseline", "window_size", "", ErrInvalidValue)
	}
	if b.MinSamples < 1 || b.MinSamples > b.WindowSize {
		return NewValidationError("baseline", "min_samples", "", fmt.Errorf("%w: must be between 1 and window_size", ErrInvalidValue))
	}
	if b.AdaptationRate <= 0 || b.AdaptationRate >= 1 {
		return NewValidationError("baseline", "adaptation_rate", "", fmt.Errorf("%w: must be in (0,1)", ErrInvalidValue))
	}
	if b.DeviationThreshold <= 0 {
		return NewValidationError("baseline", "deviation_threshold", "", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateResource() error {
	r := v.cfg.Resource
	if r.SustainedWindow < 1 {
		return NewValidationError("resource", "sustained_window", "", ErrInvalidValue)
	}
	for name, t := range r.Thresholds {
		if t.Warning <= 0 || t.Critical <= 0 {
			return NewValidationError("resource", name, "thresholds", ErrInvalidValue)
		}
		if t.Warning >= t.Critical {
			return NewValidationError("resource", name, "thresholds", fmt.Errorf("%w: warning must be below critical", ErrInvalidValue))
		}
	}
	return nil
}

func (v *Validator) validatePhase() error {
	p := v.cfg.Phase
	if p.Phase1Workers < 1 {
		return NewValidationError("phase", "phase1_workers", "", ErrInvalidValue)
	}
	if p.Phase1Deadline <= 0 {
		return NewValidationError("phase", "phase1_deadline", "", ErrInvalidValue)
	}
	if p.CycleObservationEvents < 1 || p.CycleObservationMetrics < 1 {
		return NewValidationError("phase", "cycle_observation_limit", "", ErrInvalidValue)
	}
	if p.CausalWindowSeconds <= 0 {
		return NewValidationError("phase", "causal_window_seconds", "", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateRiskWeights() error {
	w := v.cfg.RiskWeights
	sum := w.Workflow + w.Resource + w.Compliance
	if sum < 0.999 || sum > 1.001 {
		return NewValidationError("risk_weights", "", "", fmt.Errorf("%w: weights must sum to 1.0, got %.3f", ErrInvalidValue, sum))
	}
	return nil
}

func (v *Validator) validatePolicies() error {
	seen := make(map[string]bool, len(v.cfg.Policies))
	for _, p := range v.cfg.Policies {
		if p.PolicyID == "" {
			return NewValidationError("policy", "", "id", ErrMissingRequiredField)
		}
		if seen[p.PolicyID] {
			return NewValidationError("policy", p.PolicyID, "", fmt.Errorf("%w: duplicate policy id", ErrInvalidValue))
		}
		seen[p.PolicyID] = true
		switch p.Severity {
		case "LOW", "MEDIUM", "HIGH", "CRITICAL":
		default:
			return NewValidationError("policy", p.PolicyID, "severity", ErrInvalidValue)
		}
	}
	return nil
}

func (v *Validator) validateRecommendations() error {
	seen := make(map[string]bool, len(v.cfg.Recommendations))
	for _, r := range v.cfg.Recommendations {
		if r.CauseKey == "" || r.Action == "" {
			return NewValidationError("recommendation", r.CauseKey, "", ErrMissingRequiredField)
		}
		if seen[r.CauseKey] {
			return NewValidationError("recommendation", r.CauseKey, "", fmt.Errorf("%w: duplicate cause key", ErrInvalidValue))
		}
		seen[r.CauseKey] = true
	}
	return nil
}
