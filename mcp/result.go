package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/human-pages-ai/humanpages/core/hiring"
)

// result is what an operation hands back for rendering.
type result struct {
	Summary string
	Body    any
	Next    []string
	// PNG is an optional base64 image attached next to the text.
	PNG string
}

func (r result) render() *mcp.CallToolResult {
	var b strings.Builder
	b.WriteString(r.Summary)
	if r.Body != nil {
		data, err := json.MarshalIndent(r.Body, "", "  ")
		if err != nil {
			return failure(hiring.Errorf(hiring.CodeInternal, "render result: %v", err))
		}
		b.WriteString("\n\n```json\n")
		b.Write(data)
		b.WriteString("\n```")
	}
	if len(r.Next) > 0 {
		b.WriteString("\n\nNext steps:")
		for _, step := range r.Next {
			b.WriteString("\n- ")
			b.WriteString(step)
		}
	}
	if r.PNG != "" {
		return mcp.NewToolResultImage(b.String(), r.PNG, "image/png")
	}
	return mcp.NewToolResultText(b.String())
}

// failure renders err as "CODE: message", followed by its details when present.
func failure(err error) *mcp.CallToolResult {
	e, ok := hiring.AsError(err)
	if !ok {
		e = hiring.Errorf(hiring.CodeInternal, "%v", err)
	}
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		if data, err := json.Marshal(e.Details); err == nil {
			msg += "\ndetails: " + string(data)
		}
	}
	return mcp.NewToolResultError(msg)
}

// nextSteps pulls the guidance the backend attached to a view.
func nextSteps(v any) []string {
	switch t := v.(type) {
	case hiring.JobView:
		return t.NextSteps
	case hiring.AgentStatusView:
		return t.NextSteps
	case hiring.ListingView:
		return t.NextSteps
	case hiring.RegisterAgentResponse:
		return t.NextSteps
	case hiring.ListingOfferResponse:
		return t.Job.NextSteps
	}
	return nil
}
