package ws

// Event type constants broadcast to connected observers.
const (
	EventCollabLog   = "collab.log"
	EventGateReport  = "gate.report"
	EventTaskUpdate  = "task.update"
	EventModelSwitch = "model.switch"
	EventCostUpdate  = "cost.update" // payload is a cost.Entry
)

// CollabLogEvent is the payload for collab.log events.
type CollabLogEvent struct {
	ProjectID string `json:"project_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Kind      string `json:"kind"`
	Content   string `json:"content"`
}

// GateReportEvent is the payload for gate.report events.
type GateReportEvent struct {
	ProjectID string `json:"project_id"`
	Stage     string `json:"stage"`
	Blocked   bool   `json:"blocked"`
	Passed    int    `json:"passed"`
	Failed    int    `json:"failed"`
}

// TaskUpdateEvent is the payload for task.update events.
type TaskUpdateEvent struct {
	ProjectID string `json:"project_id"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
}

// ModelSwitchEvent is the payload for model.switch events.
type ModelSwitchEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
	Tier string `json:"tier"`
}
