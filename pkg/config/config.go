// Package config loads, validates, and exposes the cognition engine's
// configuration: schema/skew gates, baseline and resource tuning, phase
// scheduling, risk weights, and the static policy/recommendation tables.
// Layering: built-in defaults, merged with an optional user YAML file,
// then validated fail-fast.
package config

import "github.com/coglab/cognition-engine/pkg/models"

// Config is the umbrella configuration object returned by Initialize.
type Config struct {
	configDir string

	Schema      SchemaConfig
	Skew        SkewConfig
	Baseline    BaselineConfig
	Resource    ResourceConfig
	Phase       PhaseConfig
	RiskWeights RiskWeights
	Idempotency IdempotencyConfig
	Database    DatabaseConfig
	HTTP        HTTPConfig

	Policies        []models.Policy
	Recommendations []RecommendationRule
}

// ConfigDir returns the directory Initialize loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// Stats summarizes the loaded configuration for startup logging.
type Stats struct {
	Policies        int
	Recommendations int
	Phase1Workers   int
}

func (c *Config) Stats() Stats {
	return Stats{
		Policies:        len(c.Policies),
		Recommendations: len(c.Recommendations),
		Phase1Workers:   c.Phase.Phase1Workers,
	}
}

// PolicyByID looks up a policy by id.
func (c *Config) PolicyByID(id string) (models.Policy, bool) {
	for _, p := range c.Policies {
		if p.PolicyID == id {
			return p, true
		}
	}
	return models.Policy{}, false
}

// RecommendationFor looks up the static rule for a cause key.
func (c *Config) RecommendationFor(causeKey string) (RecommendationRule, bool) {
	for _, r := range c.Recommendations {
		if r.CauseKey == causeKey {
			return r, true
		}
	}
	return RecommendationRule{}, false
}
