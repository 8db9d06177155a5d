package stream

import (
	"bytes"
	"encoding/json"

	"github.com/tOgg1/pocketbench/internal/models"
)

type wireFrame struct {
	Log       json.RawMessage `json:"log"`
	StartInfo json.RawMessage `json:"start_info"`
	Done      json.RawMessage `json:"done"`
}

type wireStartInfo struct {
	LogFile string `json:"log_file"`
}

// decodeOrSkip turns a complete block into an event. ok is false when the
// block is not a data frame or its payload is not a JSON object; such blocks
// are dropped without surfacing an error.
func decodeOrSkip(frag Fragment) (models.StreamEvent, bool) {
	if !frag.Complete || !bytes.HasPrefix(frag.Data, dataPrefix) {
		return models.StreamEvent{}, false
	}
	payload := bytes.TrimSpace(frag.Data[len(dataPrefix):])
	if len(payload) == 0 || payload[0] != '{' {
		return models.StreamEvent{}, false
	}

	var wire wireFrame
	if err := json.Unmarshal(payload, &wire); err != nil {
		return models.StreamEvent{}, false
	}

	var event models.StreamEvent
	if text, ok := decodeString(wire.Log); ok && text != "" {
		event.Log = text
		event.HasLog = true
	}
	if len(wire.StartInfo) > 0 {
		var info wireStartInfo
		if err := json.Unmarshal(wire.StartInfo, &info); err == nil && info.LogFile != "" {
			event.StartInfo = &models.StartInfo{LogFile: info.LogFile}
		}
	}
	event.Done = truthy(wire.Done)
	return event, true
}

func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// truthy follows JSON-as-JavaScript truthiness: false, null, 0 and "" are
// false; everything else, including objects and arrays, is true.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return false
	}
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}
