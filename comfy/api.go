package comfy

import (
	"encoding/json"
	"strings"
)

type submitRequest struct {
	Prompt   Workflow `json:"prompt"`
	ClientID string   `json:"client_id"`
}

type submitResponse struct {
	PromptID string `json:"prompt_id"`
	Number   int    `json:"number"`
}

type queueStatus struct {
	Running []json.RawMessage `json:"queue_running"`
	Pending []json.RawMessage `json:"queue_pending"`
}

type historyEntry struct {
	// Outputs are decoded per node; nodes without images are skipped
	Outputs map[string]json.RawMessage `json:"outputs"`
	Status  *historyStatus             `json:"status"`
}

type historyStatus struct {
	StatusStr string            `json:"status_str"`
	Completed bool              `json:"completed"`
	Messages  []json.RawMessage `json:"messages"`
}

// message extracts exception text from execution_error messages.
func (s *historyStatus) message() string {
	var parts []string
	for _, raw := range s.Messages {
		var msg []json.RawMessage
		if json.Unmarshal(raw, &msg) != nil || len(msg) != 2 {
			continue
		}
		var kind string
		if json.Unmarshal(msg[0], &kind) != nil || kind != "execution_error" {
			continue
		}
		var detail struct {
			NodeID           string `json:"node_id"`
			ExceptionMessage string `json:"exception_message"`
		}
		if json.Unmarshal(msg[1], &detail) == nil && detail.ExceptionMessage != "" {
			parts = append(parts, strings.TrimSpace(detail.ExceptionMessage))
		}
	}
	if len(parts) == 0 {
		return "execution error"
	}
	return strings.Join(parts, "; ")
}

type nodeOutput struct {
	Images []outputImage `json:"images"`
}

type outputImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}
