package scheduler

import "fmt"

// Trigger payload vocabulary delivered to worker queues.
const (
	TriggerTypeManifest  = "scheduled_manifest"
	TriggerTypeException = "exception_notification"
)

// ManifestPayload is the body of a recurring delivery-check trigger.
type ManifestPayload struct {
	DAID        string `json:"da_id"`
	LicenseeID  string `json:"licensee_id"`
	TriggerType string `json:"trigger_type"`
}

// ExceptionPayload is the body of a one-shot missing-assets trigger.
type ExceptionPayload struct {
	DAID        string `json:"da_id"`
	TriggerType string `json:"trigger_type"`
}

// ManifestTriggerName returns the recurring trigger name for a DA.
func ManifestTriggerName(daID string) string {
	return fmt.Sprintf("manifest-%s", daID)
}

// ExceptionTriggerName returns the one-shot trigger name for a DA.
func ExceptionTriggerName(daID string) string {
	return fmt.Sprintf("exception-%s", daID)
}
