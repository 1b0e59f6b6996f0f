package pipeline

import "encoding/json"

// PromptRequest starts a run from a free-form market question.
type PromptRequest struct {
	UserInput  string
	StrictMode bool
	Provider   string
	Model      string

	// RunID names the run; a random id is assigned when empty.
	RunID string
}

// ResolveRequest configures the resolve stages. Empty provider and model
// fall back to the session defaults.
type ResolveRequest struct {
	Collectors []string
	Provider   string
	Model      string
	Mode       string
}

// Step payloads. Artifacts from earlier stages are forwarded as the exact
// JSON the gateway returned.

type promptPayload struct {
	UserInput  string `json:"user_input"`
	StrictMode bool   `json:"strict_mode"`
	Provider   string `json:"llm_provider,omitempty"`
	Model      string `json:"llm_model,omitempty"`
}

type collectPayload struct {
	PromptSpec json.RawMessage `json:"prompt_spec"`
	ToolPlan   json.RawMessage `json:"tool_plan,omitempty"`
	Collectors []string        `json:"collectors,omitempty"`
	Provider   string          `json:"llm_provider,omitempty"`
	Model      string          `json:"llm_model,omitempty"`
	Mode       string          `json:"execution_mode,omitempty"`
}

type auditPayload struct {
	PromptSpec      json.RawMessage `json:"prompt_spec"`
	EvidenceBundles json.RawMessage `json:"evidence_bundles"`
	Provider        string          `json:"llm_provider,omitempty"`
	Model           string          `json:"llm_model,omitempty"`
}

type judgePayload struct {
	PromptSpec      json.RawMessage `json:"prompt_spec"`
	EvidenceBundles json.RawMessage `json:"evidence_bundles"`
	ReasoningTrace  json.RawMessage `json:"reasoning_trace"`
	Provider        string          `json:"llm_provider,omitempty"`
	Model           string          `json:"llm_model,omitempty"`
}

type bundlePayload struct {
	PromptSpec      json.RawMessage `json:"prompt_spec"`
	ToolPlan        json.RawMessage `json:"tool_plan,omitempty"`
	EvidenceBundles json.RawMessage `json:"evidence_bundles"`
	ReasoningTrace  json.RawMessage `json:"reasoning_trace"`
	Verdict         json.RawMessage `json:"verdict"`
}

type resolvePayload struct {
	PromptSpec json.RawMessage `json:"prompt_spec"`
	ToolPlan   json.RawMessage `json:"tool_plan,omitempty"`
	Collectors []string        `json:"collectors,omitempty"`
	Provider   string          `json:"llm_provider,omitempty"`
	Model      string          `json:"llm_model,omitempty"`
	Mode       string          `json:"execution_mode,omitempty"`
}
