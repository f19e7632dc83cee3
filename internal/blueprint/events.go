package blueprint

import "time"

// Topics connecting the pipeline stages.
const (
	TopicPayloadPersisted = "blueprint.payload_persisted"
	TopicRendered         = "blueprint.rendered"
	TopicRenderFailed     = "blueprint.render_failed"
	TopicBundleReady      = "blueprint.bundle_ready"
	TopicStatus           = "blueprint.status"
)

// Stage names recorded on StageError and activity entries.
const (
	StageRequest = "request"
	StageRender  = "render"
	StageBundle  = "bundle"
	StageExport  = "export"
)

type PayloadPersistedEvent struct {
	BlueprintID  string `json:"blueprintId"`
	EngagementID string `json:"engagementId"`
	CustomerName string `json:"customerName"`
	PayloadPath  string `json:"payloadPath"`
	Checksum     string `json:"checksum"`
}

// RenderedEvent reports a rendered document stored at StoragePath.
type RenderedEvent struct {
	BlueprintID  string `json:"blueprintId"`
	EngagementID string `json:"engagementId"`
	StoragePath  string `json:"storagePath"`
	ContentType  string `json:"contentType"`
}

type RenderFailedEvent struct {
	BlueprintID  string `json:"blueprintId"`
	EngagementID string `json:"engagementId"`
	Message      string `json:"message"`
}

type BundleReadyEvent struct {
	BlueprintID  string `json:"blueprintId"`
	EngagementID string `json:"engagementId"`
}

type StatusEvent struct {
	BlueprintID  string    `json:"blueprintId"`
	EngagementID string    `json:"engagementId"`
	Status       Status    `json:"status"`
	Message      string    `json:"message,omitempty"`
	At           time.Time `json:"at"`
}
