package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/coglab/cognition-engine/pkg/models"
)

// YAMLConfig is the on-disk shape of cognition.yaml. Every field is
// optional; omitted sections fall back to the built-in defaults.
type YAMLConfig struct {
	Schema      *SchemaConfig      `yaml:"schema"`
	Skew        *SkewConfig        `yaml:"skew"`
	Baseline    *BaselineConfig    `yaml:"baseline"`
	Resource    *ResourceConfig    `yaml:"resource"`
	Phase       *PhaseConfig       `yaml:"phase"`
	RiskWeights *RiskWeights       `yaml:"risk_weights"`
	Idempotency *IdempotencyConfig `yaml:"idempotency"`
	Database    *DatabaseConfig    `yaml:"database"`
	HTTP        *HTTPConfig        `yaml:"http"`

	Policies        []PolicyYAML         `yaml:"policies"`
	Recommendations []RecommendationRule `yaml:"recommendations"`
}

// PolicyYAML mirrors models.Policy for YAML decoding, keeping pkg/models
// free of yaml struct tags: wire and config shapes stay separate from
// domain types.
type PolicyYAML struct {
	ID        string `yaml:"id"`
	Predicate string `yaml:"predicate"`
	Severity  string `yaml:"severity"`
	Rationale string `yaml:"rationale"`
}

// Initialize loads, validates, and returns a ready-to-use Config.
//
// Steps performed:
//  1. Read cognition.yaml from configDir (missing file is not an error —
//     built-in defaults apply)
//  2. Expand environment variables
//  3. Parse YAML
//  4. Merge user overrides onto built-in defaults
//  5. Validate all configuration
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.InfoContext(ctx, "initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.InfoContext(ctx, "configuration initialized",
		"policies", stats.Policies,
		"recommendations", stats.Recommendations,
		"phase1_workers", stats.Phase1Workers)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	cfg := &Config{
		configDir:       configDir,
		Schema:          defaultSchema(),
		Skew:            defaultSkew(),
		Baseline:        defaultBaseline(),
		Resource:        defaultResource(),
		Phase:           defaultPhase(),
		RiskWeights:     defaultRiskWeights(),
		Idempotency:     defaultIdempotency(),
		HTTP:            defaultHTTP(),
		Policies:        builtinPolicies(),
		Recommendations: builtinRecommendations(),
	}

	path := filepath.Join(configDir, "cognition.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(raw)

	var y YAMLConfig
	if err := yaml.Unmarshal(expanded, &y); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if err := mergeYAML(cfg, &y); err != nil {
		return nil, NewLoadError(path, err)
	}

	return cfg, nil
}

func mergeYAML(cfg *Config, y *YAMLConfig) error {
	if y.Schema != nil {
		if err := mergo.Merge(&cfg.Schema, *y.Schema, mergo.WithOverride); err != nil {
			return err
		}
	}
	if y.Skew != nil {
		if err := mergo.Merge(&cfg.Skew, *y.Skew, mergo.WithOverride); err != nil {
			return err
		}
	}
	if y.Baseline != nil {
		if err := mergo.Merge(&cfg.Baseline, *y.Baseline, mergo.WithOverride); err != nil {
			return err
		}
	}
	if y.Resource != nil {
		if err := mergo.Merge(&cfg.Resource, *y.Resource, mergo.WithOverride); err != nil {
			return err
		}
	}
	if y.Phase != nil {
		if err := mergo.Merge(&cfg.Phase, *y.Phase, mergo.WithOverride); err != nil {
			return err
		}
	}
	if y.RiskWeights != nil {
		cfg.RiskWeights = *y.RiskWeights
	}
	if y.Idempotency != nil {
		if err := mergo.Merge(&cfg.Idempotency, *y.Idempotency, mergo.WithOverride); err != nil {
			return err
		}
	}
	if y.Database != nil {
		if err := mergo.Merge(&cfg.Database, *y.Database, mergo.WithOverride); err != nil {
			return err
		}
	}
	if y.HTTP != nil {
		if err := mergo.Merge(&cfg.HTTP, *y.HTTP, mergo.WithOverride); err != nil {
			return err
		}
	}

	for _, p := range y.Policies {
		cfg.Policies = upsertPolicy(cfg.Policies, p.toModel())
	}
	for _, r := range y.Recommendations {
		cfg.Recommendations = upsertRecommendation(cfg.Recommendations, r)
	}
	return nil
}

func (p PolicyYAML) toModel() models.Policy {
	return models.Policy{
		PolicyID:  p.ID,
		Predicate: p.Predicate,
		Severity:  models.Severity(p.Severity),
		Rationale: p.Rationale,
	}
}

// upsertPolicy replaces a built-in policy with the same id, or appends a
// new one.
func upsertPolicy(policies []models.Policy, p models.Policy) []models.Policy {
	for i, existing := range policies {
		if existing.PolicyID == p.PolicyID {
			policies[i] = p
			return policies
		}
	}
	return append(policies, p)
}

func upsertRecommendation(rules []RecommendationRule, r RecommendationRule) []RecommendationRule {
	for i, existing := range rules {
		if existing.CauseKey == r.CauseKey {
			rules[i] = r
			return rules
		}
	}
	return append(rules, r)
}
