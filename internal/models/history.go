package models

// LogHistoryEntry describes one persisted run log on the remote.
type LogHistoryEntry struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Date     string `json:"date"`
	Size     string `json:"size"`
}

// StatusResponse is the generic {status, msg} reply used by mutating endpoints.
type StatusResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg,omitempty"`
}

// OK reports whether the remote reported success.
func (r StatusResponse) OK() bool {
	return r.Status == "success"
}
