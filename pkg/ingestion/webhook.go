package ingestion

import (
	"fmt"
	"time"

	"github.com/coglab/cognition-engine/pkg/models"
)

// GitHubWebhook is the subset of a GitHub webhook delivery the code
// pipeline consumes: pushes and workflow runs become pre-deploy code/CI
// events correlated to runtime by deployment id.
type GitHubWebhook struct {
	DeliveryID string         `json:"delivery_id"`
	Event      string         `json:"event"` // "push", "workflow_run", "deployment"
	Repository string         `json:"repository"`
	Sender     string         `json:"sender"`
	Timestamp  time.Time      `json:"timestamp"`
	Payload    map[string]any `json:"payload"`
}

// NormalizeGitHubWebhook translates a webhook delivery into a canonical
// envelope. The delivery id doubles as the idempotency key — GitHub
// retries deliveries under the same id.
func NormalizeGitHubWebhook(hook GitHubWebhook, org, project, env string) (models.Envelope, error) {
	if hook.DeliveryID == "" {
		return models.Envelope{}, newValidationError("schema", "delivery_id", ErrSchemaInvalid)
	}

	var eventType string
	switch hook.Event {
	case "push":
		eventType = "CODE_CHANGE"
	case "workflow_run":
		eventType = "CI_BUILD"
	case "deployment":
		eventType = "DEPLOYMENT"
	default:
		return models.Envelope{}, newValidationError("category", "event",
			fmt.Errorf("%w: unsupported webhook event %q", ErrCategoryInvalid, hook.Event))
	}

	metadata := make(map[string]any, len(hook.Payload)+1)
	for k, v := range hook.Payload {
		metadata[k] = v
	}
	metadata["repository"] = hook.Repository

	deploymentID, _ := hook.Payload["deployment_id"].(string)

	return models.Envelope{
		SchemaVersion:  "1.0",
		EventID:        "gh-" + hook.DeliveryID,
		IdempotencyKey: "github:" + hook.DeliveryID,
		TraceID:        "gh-" + hook.DeliveryID,
		EventSourceTS:  hook.Timestamp,
		EnterpriseContext: models.EnterpriseContext{
			Org:          org,
			Project:      project,
			Env:          env,
			DeploymentID: deploymentID,
		},
		ActorContext:    map[string]any{"actor": hook.Sender},
		SourceSignature: models.SourceSignature{ToolName: "github", ToolType: "vcs"},
		NormalizedEvent: models.NormalizedEvent{
			Category: "event",
			EventPayload: &models.EventPayload{
				Type:     eventType,
				Resource: hook.Repository,
				Metadata: metadata,
			},
		},
	}, nil
}
