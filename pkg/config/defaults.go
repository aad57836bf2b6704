package config

import "time"

// defaultSchema, defaultSkew, ... hold the built-in defaults,
// centralized so Initialize always produces a fully-populated Config
// even from an empty YAML file.

func defaultSchema() SchemaConfig {
	return SchemaConfig{AcceptMajors: []int{1}}
}

func defaultSkew() SkewConfig {
	return SkewConfig{Past: 24 * time.Hour, Future: 5 * time.Minute}
}

func defaultBaseline() BaselineConfig {
	return BaselineConfig{
		WindowSize:         50,
		MinSamples:         10,
		AdaptationRate:     0.1,
		DeviationThreshold: 2.5,
	}
}

func defaultResource() ResourceConfig {
	return ResourceConfig{
		Thresholds: map[string]ResourceThreshold{
			"cpu_percent":        {Warning: 70, Critical: 90},
			"memory_percent":     {Warning: 75, Critical: 95},
			"network_latency_ms": {Warning: 200, Critical: 500},
		},
		SustainedWindow: 3,
		DriftSlopeLimit: 2.0,
	}
}

func defaultPhase() PhaseConfig {
	return PhaseConfig{
		Phase1Workers:           4,
		Phase1Deadline:          5 * time.Second,
		CycleObservationEvents:  100,
		CycleObservationMetrics: 100,
		CausalWindowSeconds:     60,
		TickInterval:            0,
	}
}

func defaultRiskWeights() RiskWeights {
	return RiskWeights{Workflow: 0.35, Resource: 0.35, Compliance: 0.30}
}

func defaultIdempotency() IdempotencyConfig {
	return IdempotencyConfig{Partitions: 64}
}

func defaultHTTP() HTTPConfig {
	return HTTPConfig{Port: "8080"}
}
