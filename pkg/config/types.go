package config

import "time"

// SchemaConfig governs the ingestion schema gate.
type SchemaConfig struct {
	AcceptMajors []int `yaml:"accept_majors" validate:"required,min=1"`
}

// SkewConfig governs the ingestion skew gate.
type SkewConfig struct {
	Past   time.Duration `yaml:"past"`
	Future time.Duration `yaml:"future"`
}

// BaselineConfig tunes the adaptive baseline profiles.
type BaselineConfig struct {
	WindowSize         int     `yaml:"window_size" validate:"min=1"`
	MinSamples         int     `yaml:"min_samples" validate:"min=1"`
	AdaptationRate     float64 `yaml:"adaptation_rate" validate:"gt=0,lt=1"`
	DeviationThreshold float64 `yaml:"deviation_threshold" validate:"gt=0"`
}

// ResourceThreshold is one (warning, critical) pair for a resource metric.
type ResourceThreshold struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// ResourceConfig tunes the resource threshold and drift detection.
type ResourceConfig struct {
	Thresholds      map[string]ResourceThreshold `yaml:"thresholds"`
	SustainedWindow int                          `yaml:"sustained_window" validate:"min=1"`
	DriftSlopeLimit float64                      `yaml:"drift_slope_limit"`
}

// PhaseConfig governs the Cycle Coordinator's Phase-1 fan-out.
type PhaseConfig struct {
	Phase1Workers           int           `yaml:"phase1_workers" validate:"min=1"`
	Phase1Deadline          time.Duration `yaml:"phase1_deadline"`
	CycleObservationEvents  int           `yaml:"cycle_observation_events" validate:"min=1"`
	CycleObservationMetrics int           `yaml:"cycle_observation_metrics" validate:"min=1"`
	CausalWindowSeconds     float64       `yaml:"causal_window_seconds"`
	TickInterval            time.Duration `yaml:"tick_interval"` // 0 disables the periodic tick
}

// RiskWeights is the (workflow, resource, compliance) weighting applied to
// the composite System Risk Index. Must sum to 1.0.
type RiskWeights struct {
	Workflow   float64 `yaml:"workflow"`
	Resource   float64 `yaml:"resource"`
	Compliance float64 `yaml:"compliance"`
}

// IdempotencyConfig governs the hash-partitioned lock used by the
// ingestion pipeline's idempotency gate.
type IdempotencyConfig struct {
	Partitions int `yaml:"partitions" validate:"min=1"`
}

// DatabaseConfig holds PostgreSQL connection and pool settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// HTTPConfig holds the API server's listen settings.
type HTTPConfig struct {
	Port string `yaml:"port"`
}
