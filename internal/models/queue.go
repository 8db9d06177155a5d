package models

import "strings"

// QueueKey identifies a queued artifact. Two queue items with the same key
// are the same artifact.
type QueueKey struct {
	RepoID   string
	Filename string
}

func (k QueueKey) String() string {
	return k.RepoID + "/" + k.Filename
}

// QueueItem is one model artifact in the operator's cart.
type QueueItem struct {
	// RepoID is the hub repository that hosts the artifact (e.g. "org/model-GGUF").
	RepoID string `json:"repo_id"`

	// Filename is the artifact file inside the repository.
	Filename string `json:"filename"`

	// Tags is the display tag (usually the quantization label).
	Tags string `json:"tags,omitempty"`

	// Size is the human-readable artifact size as reported by the hub.
	Size string `json:"size,omitempty"`
}

// Key returns the composite identity of the item.
func (q QueueItem) Key() QueueKey {
	return QueueKey{RepoID: q.RepoID, Filename: q.Filename}
}

// ShortRepo returns the repository name without its owner prefix.
func (q QueueItem) ShortRepo() string {
	if idx := strings.LastIndex(q.RepoID, "/"); idx >= 0 && idx < len(q.RepoID)-1 {
		return q.RepoID[idx+1:]
	}
	return q.RepoID
}
