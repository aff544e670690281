package comfy

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

// Node ids of the text inputs in the default workflow.
const (
	PositiveNode = "6"
	NegativeNode = "7"
)

// Default prompt decorations applied by PreparePayload.
const (
	DefaultPromptSuffix   = ", photorealistic, masterpiece, best quality"
	DefaultNegativePrompt = "text, watermark, bad quality, blur, noise"
)

//go:embed default_workflow.json
var defaultWorkflowJSON []byte

// Workflow is a ComfyUI API-format graph keyed by node id.
type Workflow map[string]any

// DefaultWorkflow returns a basic text-to-image graph with the positive
// prompt on node 6 and the negative prompt on node 7.
func DefaultWorkflow() Workflow {
	w, err := ParseWorkflow(defaultWorkflowJSON)
	if err != nil {
		panic(fmt.Sprintf("comfy: invalid embedded workflow: %v", err))
	}
	return w
}

// LoadWorkflow reads an API-format workflow file.
func LoadWorkflow(path string) (Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow: %w", err)
	}
	w, err := ParseWorkflow(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// ParseWorkflow decodes and checks an API-format workflow.
func ParseWorkflow(data []byte) (Workflow, error) {
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding workflow: %w", err)
	}
	for _, id := range []string{PositiveNode, NegativeNode} {
		if _, err := w.inputs(id); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Clone returns a deep copy of the workflow.
func (w Workflow) Clone() Workflow {
	out := make(Workflow, len(w))
	for k, v := range w {
		out[k] = cloneValue(v)
	}
	return out
}

func (w Workflow) inputs(node string) (map[string]any, error) {
	n, ok := w[node].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("workflow has no node %q", node)
	}
	inputs, ok := n["inputs"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("workflow node %q has no inputs", node)
	}
	return inputs, nil
}

func (w Workflow) setText(node, text string) error {
	inputs, err := w.inputs(node)
	if err != nil {
		return err
	}
	inputs["text"] = text
	return nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}
