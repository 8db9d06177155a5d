package models

import "time"

// StartInfo is the run metadata announced at the head of a stream.
type StartInfo struct {
	LogFile string `json:"log_file"`
}

// StreamEvent is one decoded frame of the run stream. The three fields are
// independent; a frame may carry any combination of them, or none.
type StreamEvent struct {
	// Log is appended to the visible buffer when HasLog is set.
	Log    string
	HasLog bool

	// StartInfo carries the server-assigned log file, when present.
	StartInfo *StartInfo

	// Done signals the end of the run.
	Done bool
}

// LogFile returns the announced log file name, or "".
func (e StreamEvent) LogFile() string {
	if e.StartInfo == nil {
		return ""
	}
	return e.StartInfo.LogFile
}

// Recognized reports whether the frame carried any field the console acts on.
func (e StreamEvent) Recognized() bool {
	return e.HasLog || e.LogFile() != "" || e.Done
}

// EventType categorizes console events.
type EventType string

const (
	EventTypeRunStarted    EventType = "run.started"
	EventTypeRunFinished   EventType = "run.finished"
	EventTypeLogIdentified EventType = "run.log_identified"
	EventTypeLogAppended   EventType = "log.appended"
	EventTypeLogReplaced   EventType = "log.replaced"
	EventTypeNotification  EventType = "notification"
)

// Severity is the level of a user-visible notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Event is published to console observers.
type Event struct {
	ID        string     `json:"id"`
	Type      EventType  `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	RunID     string     `json:"run_id,omitempty"`
	LogFile   string     `json:"log_file,omitempty"`
	Text      string     `json:"text,omitempty"`
	Severity  Severity   `json:"severity,omitempty"`
	Outcome   RunOutcome `json:"outcome,omitempty"`
}
