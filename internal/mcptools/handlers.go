package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/tsgdraft/internal/orchestrator"
	"github.com/dusk-indust/tsgdraft/internal/tsg"
)

// DraftService handles MCP tool calls by running the drafting pipeline.
type DraftService struct {
	pipeline orchestrator.Orchestrator
	log      *zap.Logger
}

// NewDraftService creates a DraftService. A nil logger discards output.
func NewDraftService(pipeline orchestrator.Orchestrator, log *zap.Logger) *DraftService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DraftService{pipeline: pipeline, log: log}
}

// DraftTSG runs one pipeline and returns the drafted document. Pipeline
// failures are reported in the output rather than as tool errors.
func (s *DraftService) DraftTSG(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DraftInput,
) (*mcp.CallToolResult, DraftOutput, error) {
	if strings.TrimSpace(input.Notes) == "" {
		return nil, DraftOutput{}, fmt.Errorf("notes are required")
	}
	if input.Answers != "" && input.PriorTSG == "" && input.ThreadID == "" {
		return nil, DraftOutput{}, fmt.Errorf("answers require the priorTsg or threadId of the earlier draft")
	}

	sink := orchestrator.SinkFunc(func(ev orchestrator.ProgressEvent) {
		s.log.Debug("progress", zap.String("stage", ev.Stage.String()), zap.String("message", ev.Message))
	})
	result := s.pipeline.Run(ctx, orchestrator.RunRequest{
		Notes:             input.Notes,
		ContinuationToken: input.ThreadID,
		PriorTSG:          input.PriorTSG,
		UserAnswers:       input.Answers,
		PriorResearch:     input.PriorResearch,
	}, sink)

	stages := make([]string, len(result.StagesCompleted))
	for i, st := range result.StagesCompleted {
		stages[i] = st.String()
	}
	return nil, DraftOutput{
		Success:         result.Success,
		Cancelled:       result.Cancelled,
		TSG:             result.TSGContent,
		Questions:       result.Questions(),
		ResearchReport:  result.ResearchReport,
		ThreadID:        result.ContinuationToken,
		StagesCompleted: stages,
		Retries:         result.RetryCount,
		Warnings:        result.Warnings(),
		Error:           result.Error,
	}, nil
}

// ValidateTSG checks writer output against the structural rules.
func (s *DraftService) ValidateTSG(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ValidateInput,
) (*mcp.CallToolResult, ValidateOutput, error) {
	v := tsg.Validate(input.Text)
	out := ValidateOutput{
		Valid:        v.Valid,
		Issues:       v.Issues,
		Placeholders: tsg.Placeholders(v.TSGContent),
	}
	if out.Issues == nil {
		out.Issues = []string{}
	}
	if out.Placeholders == nil {
		out.Placeholders = []string{}
	}
	return nil, out, nil
}
