package scoring

import (
	"context"

	"github.com/coglab/cognition-engine/pkg/config"
	"github.com/coglab/cognition-engine/pkg/models"
)

// causeKeyFor maps finding types to the static cause keys of the
// recommendation table. Actions are selected from the table, never
// invented: an unmapped type produces no recommendation.
var causeKeyFor = map[string]string{
	models.AnomalySustainedResourceCritical: "resource_saturation",
	models.AnomalySustainedResourceWarning:  "resource_saturation",
	models.AnomalyResourceDrift:             "resource_drift",
	models.AnomalyWorkflowDelay:             "workflow_delay",
	models.AnomalyMissingStep:               "missing_step",
	models.AnomalySequenceViolation:         "sequence_violation",
	models.AnomalyBaselineDeviation:         "baseline_deviation",
	models.AnomalyCodeChurnRisk:             "code_churn_risk",
	models.AnomalyCodeCoverageRegression:    "code_coverage_regression",
	models.AnomalyCodeHotspotOverlap:        "code_hotspot_overlap",
}

const (
	contextMatchFull    = 1.0
	contextMatchPartial = 0.7
)

// RecommendationBoard is the blackboard surface the engine reads findings
// and scores from and appends recommendations through.
type RecommendationBoard interface {
	Anomalies(cycleID string) ([]models.Anomaly, error)
	PolicyHits(cycleID string) ([]models.PolicyHit, error)
	SeverityScores(cycleID string) ([]models.SeverityScore, error)
	AppendRecommendation(ctx context.Context, cycleID, agent string, r models.Recommendation) error
}

// RecommendationEngine maps each finding to its static action.
type RecommendationEngine struct {
	rules *config.Config
}

func NewRecommendationEngine(cfg *config.Config) *RecommendationEngine {
	return &RecommendationEngine{rules: cfg}
}

func (e *RecommendationEngine) Name() string { return "recommendation" }

func (e *RecommendationEngine) Recommend(ctx context.Context, cycleID string, board RecommendationBoard) error {
	anomalies, err := board.Anomalies(cycleID)
	if err != nil {
		return err
	}
	hits, err := board.PolicyHits(cycleID)
	if err != nil {
		return err
	}
	scores, err := board.SeverityScores(cycleID)
	if err != nil {
		return err
	}
	severityByTarget := make(map[string]float64, len(scores))
	for _, s := range scores {
		severityByTarget[s.TargetID] = s.FinalScore
	}

	for _, an := range anomalies {
		causeKey, mapped := causeKeyFor[an.Type]
		if !mapped {
			continue
		}
		rec, ok := e.build(causeKey, an.AnomalyID, severityByTarget[an.AnomalyID],
			HasContextFactors(an.Metadata), an.EvidenceIDs)
		if !ok {
			continue
		}
		if err := board.AppendRecommendation(ctx, cycleID, e.Name(), rec); err != nil {
			return err
		}
	}

	for _, h := range hits {
		causeKey := "explicit_violation"
		if h.ViolationType == models.ViolationSilent {
			causeKey = "silent_violation"
		}
		rec, ok := e.build(causeKey, h.HitID, severityByTarget[h.HitID], false, h.EvidenceIDs)
		if !ok {
			continue
		}
		if err := board.AppendRecommendation(ctx, cycleID, e.Name(), rec); err != nil {
			return err
		}
	}
	return nil
}

func (e *RecommendationEngine) build(causeKey, targetID string, severity float64, hasContext bool, evidence []string) (models.Recommendation, bool) {
	rule, ok := e.rules.RecommendationFor(causeKey)
	if !ok {
		return models.Recommendation{}, false
	}

	contextMatch := contextMatchPartial
	if hasContext {
		contextMatch = contextMatchFull
	}
	confidence := 0.5*rule.BaseRule + 0.2*(severity/10) + 0.3*contextMatch

	return models.Recommendation{
		RecID:       models.DeterministicID("recommendation", causeKey, targetID),
		CauseKey:    causeKey,
		Action:      rule.Action,
		Urgency:     rule.Urgency,
		Rationale:   rule.Rationale,
		Confidence:  confidence,
		EvidenceIDs: evidence,
	}, true
}
