package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/omni/domain/agent"
	"github.com/felixgeelhaar/omni/domain/tool"
)

var (
	// ErrNoJSON indicates a reply without a JSON object.
	ErrNoJSON = errors.New("no JSON object in response")

	// ErrPlanSize indicates a plan outside the accepted step bounds.
	ErrPlanSize = errors.New("plan size out of bounds")
)

// ExtractJSON returns the outermost {...} of a model reply, tolerating
// markdown fences and surrounding prose.
func ExtractJSON(content string) (string, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return content[start : end+1], nil
}

type planResponse struct {
	Steps []json.RawMessage `json:"steps"`
}

type stepObject struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Step        string `json:"step"`
	Title       string `json:"title"`
}

// ParsePlan parses a planner reply. Steps may be plain strings or objects
// with a description. The step count must lie within [minSteps, maxSteps].
func ParsePlan(content string, minSteps, maxSteps int) (*agent.Plan, error) {
	raw, err := ExtractJSON(content)
	if err != nil {
		return nil, err
	}

	var resp planResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("invalid plan JSON: %w (content: %s)", err, truncate(raw, 200))
	}

	descriptions := make([]string, 0, len(resp.Steps))
	for i, s := range resp.Steps {
		var text string
		if err := json.Unmarshal(s, &text); err == nil {
			descriptions = append(descriptions, text)
			continue
		}
		var obj stepObject
		if err := json.Unmarshal(s, &obj); err != nil {
			return nil, fmt.Errorf("%w: step %d is neither text nor object", agent.ErrInvalidPlan, i+1)
		}
		descriptions = append(descriptions, firstNonEmpty(obj.Description, obj.Step, obj.Title))
	}

	plan, err := agent.NewPlan(descriptions)
	if err != nil {
		return nil, err
	}
	if plan.Len() < minSteps || (maxSteps > 0 && plan.Len() > maxSteps) {
		return nil, fmt.Errorf("%w: got %d steps, want %d to %d", ErrPlanSize, plan.Len(), minSteps, maxSteps)
	}
	return plan, nil
}

// decisionResponse is the JSON shape the selector is asked to produce.
type decisionResponse struct {
	Action   string         `json:"action"`
	Type     string         `json:"type"`
	Tool     string         `json:"tool"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
	Input    map[string]any `json:"input"`
	StepID   string         `json:"step_id"`
	Summary  string         `json:"summary"`
	Question string         `json:"question"`
	Reason   string         `json:"reason"`
}

// ParseDecision parses a selector reply. It never fails: anything outside
// the invoke/done/clarify set becomes a malformed decision.
func ParseDecision(content string) agent.Decision {
	raw, err := ExtractJSON(content)
	if err != nil {
		return agent.NewMalformedDecision(content, err.Error())
	}

	var resp decisionResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return agent.NewMalformedDecision(content, "invalid JSON: "+err.Error())
	}

	action := strings.ToLower(strings.TrimSpace(firstNonEmpty(resp.Action, resp.Type)))
	var d agent.Decision
	switch action {
	case "invoke", "call_tool", "tool":
		args := resp.Args
		if args == nil {
			args = resp.Input
		}
		d = agent.NewInvokeDecision(tool.Invocation{
			Tool:   strings.TrimSpace(firstNonEmpty(resp.Tool, resp.ToolName)),
			Args:   args,
			StepID: strings.TrimSpace(resp.StepID),
		})
	case "done", "finish":
		d = agent.NewDoneDecision(resp.Summary)
	case "clarify", "ask":
		d = agent.NewClarifyDecision(resp.Question)
	case "":
		return agent.NewMalformedDecision(content, "missing action")
	default:
		return agent.NewMalformedDecision(content, fmt.Sprintf("unknown action %q", action))
	}
	d.Raw = content
	return d.Normalize()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
