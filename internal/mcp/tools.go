package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/acolita/qemu-e2e/internal/driver"
	"github.com/acolita/qemu-e2e/internal/environment"
	"github.com/acolita/qemu-e2e/internal/recovery"
	"github.com/acolita/qemu-e2e/internal/runner"
	"github.com/acolita/qemu-e2e/internal/scenario"
)

const (
	errNameRequired = "name is required"
	errUnknownName  = "unknown scenario %q"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(listScenariosTool(), s.handleListScenarios)
	s.mcpServer.AddTool(describeScenarioTool(), s.handleDescribeScenario)
	s.mcpServer.AddTool(runScenarioTool(), s.handleRunScenario)
}

func listScenariosTool() mcp.Tool {
	return mcp.NewTool("list_scenarios",
		mcp.WithDescription("List the end-to-end scenarios that can be run against the emulator"),
	)
}

func describeScenarioTool() mcp.Tool {
	return mcp.NewTool("describe_scenario",
		mcp.WithDescription("Show the steps of one scenario"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Scenario name as returned by list_scenarios"),
		),
	)
}

func runScenarioTool() mcp.Tool {
	return mcp.NewTool("run_scenario",
		mcp.WithDescription("Launch the emulator, run one scenario fail-fast and tear the emulator down. Runs are serialized."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Scenario name as returned by list_scenarios"),
		),
		mcp.WithString("mode",
			mcp.Description("Environment mode: 'local' or 'container' (default: server setting)"),
			mcp.Enum(string(environment.ModeLocal), string(environment.ModeContainer)),
		),
	)
}

type scenarioSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Source      string   `json:"source,omitempty"`
	Steps       int      `json:"steps"`
	Consoles    []string `json:"consoles"`
}

type stepInfo struct {
	On      string `json:"on"`
	Send    string `json:"send,omitempty"`
	Expect  string `json:"expect"`
	Regex   bool   `json:"regex,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type stepVerdict struct {
	Session   string   `json:"session"`
	Command   string   `json:"command,omitempty"`
	Pattern   string   `json:"pattern"`
	Passed    bool     `json:"passed"`
	Reason    string   `json:"reason,omitempty"`
	Match     string   `json:"match,omitempty"`
	Groups    []string `json:"groups,omitempty"`
	Output    string   `json:"output,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

type runResult struct {
	Scenario      string                 `json:"scenario"`
	Mode          string                 `json:"mode"`
	Passed        bool                   `json:"passed"`
	State         string                 `json:"state"`
	Error         string                 `json:"error,omitempty"`
	TeardownError string                 `json:"teardown_error,omitempty"`
	Steps         []stepVerdict          `json:"steps"`
	Probes        map[string]string      `json:"probes,omitempty"`
	Recordings    []string               `json:"recordings,omitempty"`
	Hints         []*recovery.Suggestion `json:"hints,omitempty"`
	DurationMs    int64                  `json:"duration_ms"`
	Report        string                 `json:"report"`
}

func (s *Server) handleListScenarios(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cat, err := s.catalog()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load scenarios: %v", err)), nil
	}

	out := make([]scenarioSummary, 0, len(cat.Names()))
	for _, sc := range cat.All() {
		out = append(out, scenarioSummary{
			Name:        sc.Name,
			Description: sc.Description,
			Source:      sc.Source,
			Steps:       len(sc.Steps),
			Consoles:    consoleNames(sc.Targets()),
		})
	}
	return jsonResult(out)
}

func (s *Server) handleDescribeScenario(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, errResult := s.lookup(req)
	if errResult != nil {
		return errResult, nil
	}

	steps := make([]stepInfo, 0, len(sc.Steps))
	for _, st := range sc.Steps {
		info := stepInfo{On: string(st.On), Send: st.Send, Expect: st.Expect}
		if st.ExpectRegex != "" {
			info.Expect = st.ExpectRegex
			info.Regex = true
		}
		if st.Timeout > 0 {
			info.Timeout = st.Timeout.String()
		}
		steps = append(steps, info)
	}

	return jsonResult(map[string]any{
		"name":        sc.Name,
		"description": sc.Description,
		"source":      sc.Source,
		"steps":       steps,
	})
}

func (s *Server) handleRunScenario(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, errResult := s.lookup(req)
	if errResult != nil {
		return errResult, nil
	}

	mode := s.defaultMode
	if m := mcp.ParseString(req, "mode", ""); m != "" {
		parsed, err := environment.ParseMode(m)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mode = parsed
	}

	if !s.runMu.TryLock() {
		return mcp.NewToolResultError(fmt.Sprintf("scenario %q is already running", s.Running())), nil
	}
	defer s.runMu.Unlock()
	s.setRunning(sc.Name)
	defer s.setRunning("")

	slog.Info("running scenario for MCP client",
		slog.String("scenario", sc.Name),
		slog.String("mode", string(mode)),
	)

	var report bytes.Buffer
	collector := &driver.Collector{}
	r := s.newRunner(mode, &report, driver.Multi{collector, driver.NewTextReporter(&report)})
	res := r.Run(ctx, sc)

	return jsonResult(toRunResult(res, collector.Verdicts(), report.String()))
}

// lookup resolves the "name" argument against the current catalog.
func (s *Server) lookup(req mcp.CallToolRequest) (scenario.Scenario, *mcp.CallToolResult) {
	name := mcp.ParseString(req, "name", "")
	if name == "" {
		return scenario.Scenario{}, mcp.NewToolResultError(errNameRequired)
	}

	cat, err := s.catalog()
	if err != nil {
		return scenario.Scenario{}, mcp.NewToolResultError(fmt.Sprintf("load scenarios: %v", err))
	}
	sc, ok := cat.Get(name)
	if !ok {
		return scenario.Scenario{}, mcp.NewToolResultError(fmt.Sprintf(errUnknownName, name))
	}
	return sc, nil
}

func toRunResult(res runner.Result, verdicts []driver.Verdict, report string) runResult {
	out := runResult{
		Scenario:   res.Scenario,
		Mode:       string(res.Mode),
		Passed:     res.Passed(),
		State:      res.State.String(),
		Steps:      make([]stepVerdict, 0, len(verdicts)),
		Probes:     res.Probes,
		Recordings: res.Recordings,
		Hints:      res.Hints,
		DurationMs: res.Duration.Milliseconds(),
		Report:     report,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if res.TeardownErr != nil {
		out.TeardownError = res.TeardownErr.Error()
	}

	for _, v := range verdicts {
		sv := stepVerdict{
			Session:   v.Session,
			Command:   v.Command,
			Pattern:   v.Pattern,
			Passed:    v.Passed,
			Reason:    v.Reason(),
			Match:     v.Match,
			Groups:    v.Groups,
			ElapsedMs: v.Elapsed.Milliseconds(),
		}
		if !v.Passed {
			sv.Output = v.Output
		}
		out.Steps = append(out.Steps, sv)
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func consoleNames(targets []scenario.Target) []string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = string(t)
	}
	return names
}
