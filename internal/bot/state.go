package bot

import "time"

// State is one step of the session state machine.
type State string

const (
	StateLogin         State = "login"
	StateDiscover      State = "discover"
	StateCreateChannel State = "create_channel"
	StateSelect        State = "select"
	StatePublish       State = "publish"
	StateIdle          State = "idle"
	StateStopped       State = "stopped"
	StateFailed        State = "failed"
)

// Stats is a point-in-time view of the session.
type Stats struct {
	RunID           string    `json:"run_id"`
	Username        string    `json:"username"`
	State           State     `json:"state"`
	Clock           int64     `json:"clock"`
	Cycles          int       `json:"cycles"`
	Requests        int       `json:"requests"`
	Channel         string    `json:"channel,omitempty"`
	ChannelsCreated int       `json:"channels_created"`
	PublishAttempts int       `json:"publish_attempts"`
	PublishFailures int       `json:"publish_failures"`
	PublishRejected int       `json:"publish_rejected"`
	LastError       string    `json:"last_error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	// Delivery counts from the pub-sub probe, when enabled.
	DeliveriesOwn    uint64 `json:"deliveries_own,omitempty"`
	DeliveriesOthers uint64 `json:"deliveries_others,omitempty"`
}
