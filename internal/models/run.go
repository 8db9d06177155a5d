package models

import (
	"sort"
	"strconv"
)

// RunState is the local lifecycle state of the benchmark console.
type RunState string

const (
	RunStateIdle    RunState = "idle"
	RunStateRunning RunState = "running"
)

// RunOutcome records why a run left the Running state.
type RunOutcome string

const (
	RunOutcomeDone         RunOutcome = "done"
	RunOutcomeStopped      RunOutcome = "stopped"
	RunOutcomeDisconnected RunOutcome = "disconnected"
	RunOutcomeFailed       RunOutcome = "failed"
)

// NoLimit is the per-job sample limit sent with every job. Zero means the
// remote evaluates the full task.
const NoLimit = 0

// Job is one artifact/task-set pair in a run request.
type Job struct {
	RepoID   string   `json:"repo_id"`
	Filename string   `json:"filename"`
	Tasks    []string `json:"tasks"`
	Limit    int      `json:"limit"`
}

// RunRequest is the body posted to the run endpoint.
type RunRequest struct {
	Jobs      []Job  `json:"jobs"`
	Batch     int    `json:"batch"`
	Device    string `json:"device"`
	Verbosity string `json:"verbosity"`
}

// NewRunRequest snapshots the queue and task selection into a request. Every
// job receives its own copy of the task list.
func NewRunRequest(queue []QueueItem, tasks []string, settings Settings) RunRequest {
	sorted := append([]string(nil), tasks...)
	sort.Strings(sorted)

	jobs := make([]Job, 0, len(queue))
	for _, item := range queue {
		jobs = append(jobs, Job{
			RepoID:   item.RepoID,
			Filename: item.Filename,
			Tasks:    append([]string(nil), sorted...),
			Limit:    NoLimit,
		})
	}
	return RunRequest{
		Jobs:      jobs,
		Batch:     settings.BatchSizeInt(),
		Device:    settings.Device,
		Verbosity: settings.Verbosity,
	}
}

// Allowed setting values.
var (
	DeviceOptions    = []string{"auto", "cuda", "mps", "cpu"}
	BatchSizeOptions = []string{"1", "2", "4", "8", "16"}
	VerbosityOptions = []string{"INFO", "WARNING", "ERROR"}
)

// Settings are the operator's run preferences.
type Settings struct {
	Device    string `json:"device" yaml:"device"`
	BatchSize string `json:"batch_size" yaml:"batch_size"`
	Verbosity string `json:"verbosity" yaml:"verbosity"`
}

// DefaultSettings returns the settings used when nothing has been saved.
func DefaultSettings() Settings {
	return Settings{Device: "auto", BatchSize: "1", Verbosity: "INFO"}
}

// Merge overlays non-empty fields of other on top of s.
func (s Settings) Merge(other Settings) Settings {
	if other.Device != "" {
		s.Device = other.Device
	}
	if other.BatchSize != "" {
		s.BatchSize = other.BatchSize
	}
	if other.Verbosity != "" {
		s.Verbosity = other.Verbosity
	}
	return s
}

// BatchSizeInt parses BatchSize, falling back to 1.
func (s Settings) BatchSizeInt() int {
	n, err := strconv.Atoi(s.BatchSize)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

// Validate checks the settings against the allowed values.
func (s Settings) Validate() error {
	validation := &ValidationErrors{}
	validation.Add("device", OneOf(s.Device, DeviceOptions...))
	validation.Add("batch_size", OneOf(s.BatchSize, BatchSizeOptions...))
	validation.Add("verbosity", OneOf(s.Verbosity, VerbosityOptions...))
	return validation.Err()
}

// StopResponse is the remote reply to a stop request.
type StopResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
}

// OK reports whether the remote acknowledged the stop.
func (r StopResponse) OK() bool {
	return r.Status == "success"
}
