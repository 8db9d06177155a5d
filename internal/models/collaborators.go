package models

// SearchResult is one hub repository returned by a model search.
type SearchResult struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Name      string `json:"name"`
	Likes     int    `json:"likes"`
	Downloads int    `json:"downloads"`
	Updated   string `json:"updated"`
}

// RepoFile is one artifact file inside a hub repository.
type RepoFile struct {
	Name      string `json:"name"`
	SizeStr   string `json:"size_str"`
	SizeBytes int64  `json:"size_bytes"`
	Tags      string `json:"tags"`
}

// LocalModelType classifies entries of the local artifact cache.
type LocalModelType string

const (
	LocalModelValid      LocalModelType = "valid"
	LocalModelGhost      LocalModelType = "ghost"
	LocalModelIncomplete LocalModelType = "incomplete"
)

// LocalModel is an artifact found in the remote's local cache.
type LocalModel struct {
	Type     LocalModelType `json:"type"`
	RepoID   string         `json:"repo_id"`
	Filename string         `json:"filename"`
	Tags     string         `json:"tags,omitempty"`
	SizeStr  string         `json:"size_str,omitempty"`
	Revision string         `json:"revision,omitempty"`
	Path     string         `json:"path,omitempty"`
}

// Queueable reports whether the entry can be added to the cart.
func (m LocalModel) Queueable() bool {
	return m.Type != LocalModelGhost && m.Type != LocalModelIncomplete &&
		m.RepoID != "" && m.Filename != ""
}

// DeleteModelRequest identifies a cached artifact to remove. Path is set for
// broken cache entries, RepoID/Revision/Filename otherwise.
type DeleteModelRequest struct {
	RepoID   string `json:"repo_id,omitempty"`
	Revision string `json:"revision,omitempty"`
	Filename string `json:"filename,omitempty"`
	Path     string `json:"path,omitempty"`
}

// SystemInfo summarizes the remote worker host.
type SystemInfo struct {
	Display  string  `json:"display"`
	RAMTotal float64 `json:"ram_total"`
	CPUCores int     `json:"cpu_cores,omitempty"`
	OS       string  `json:"os,omitempty"`
}
