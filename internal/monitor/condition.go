package monitor

// Condition is one evaluated signal: whether it currently calls for an alarm
// and a human-readable status line for the presentation layer.
type Condition struct {
	Active bool   `json:"active"`
	Status string `json:"status"`
}
