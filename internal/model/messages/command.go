package messages

// Command names accepted on the command topic.
const (
	CommandStart        = "start"
	CommandStop         = "stop"
	CommandSetAuto      = "set_auto"
	CommandTogglePump   = "toggle_pump"
	CommandSetThreshold = "set_threshold"
	CommandSetInterval  = "set_interval"
)

// CommandMessage is an operator intent received from the bus. ID is optional;
// when set, repeats of the same ID are applied once.
type CommandMessage struct {
	ID         string   `json:"id,omitempty"`
	Command    string   `json:"command"`
	Enabled    *bool    `json:"enabled,omitempty"`
	Value      *float64 `json:"value,omitempty"`
	IntervalMs *int     `json:"interval_ms,omitempty"`
}
