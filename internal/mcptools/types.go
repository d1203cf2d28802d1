package mcptools

// --- MCP tool types for the drafting server mode (serve-mcp) ---

// DraftInput is the input for the draft_tsg MCP tool.
type DraftInput struct {
	Notes         string `json:"notes" jsonschema:"raw troubleshooting notes to turn into a TSG"`
	Answers       string `json:"answers,omitempty" jsonschema:"answers to the follow-up questions of an earlier draft"`
	PriorTSG      string `json:"priorTsg,omitempty" jsonschema:"the TSG produced by the earlier draft being answered"`
	PriorResearch string `json:"priorResearch,omitempty" jsonschema:"research report of the earlier draft; reused instead of researching again"`
	ThreadID      string `json:"threadId,omitempty" jsonschema:"threadId returned by the earlier draft"`
}

// DraftOutput is the result of the draft_tsg MCP tool.
type DraftOutput struct {
	Success         bool     `json:"success"`
	Cancelled       bool     `json:"cancelled,omitempty"`
	TSG             string   `json:"tsg"`
	Questions       string   `json:"questions"`
	ResearchReport  string   `json:"researchReport"`
	ThreadID        string   `json:"threadId"`
	StagesCompleted []string `json:"stagesCompleted"`
	Retries         int      `json:"retries"`
	Warnings        []string `json:"warnings,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// ValidateInput is the input for the validate_tsg MCP tool.
type ValidateInput struct {
	Text string `json:"text" jsonschema:"writer output containing the TSG and questions markers"`
}

// ValidateOutput is the result of the validate_tsg MCP tool.
type ValidateOutput struct {
	Valid        bool     `json:"valid"`
	Issues       []string `json:"issues"`
	Placeholders []string `json:"placeholders"`
}
