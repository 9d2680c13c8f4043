package brain

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/0xcha05/prime/internal/chatadapter"
	"github.com/0xcha05/prime/internal/scheduler"
	"github.com/0xcha05/prime/internal/types"
)

// ---------- Local execution ----------

type executeShellInput struct {
	Target  string `json:"target,omitempty"`
	Command string `json:"command"`
}

func (s *Services) dispatchExecuteShell(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in executeShellInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	target := resolvedTarget(in.Target)

	res, ok := s.Registry.Resolve(target)
	if !ok {
		return errOutput("unknown target %q", target)
	}
	if res.ExecLocal {
		stdout, stderr, code, err := s.Local.ExecuteShell(ctx, in.Command)
		if err != nil {
			return errOutput("execute_shell: %v", err)
		}
		return jsonOutput(map[string]any{"stdout": stdout, "stderr": stderr, "exit_code": code})
	}
	return s.routeCommand(ctx, res.Handle.DaemonID, "execute_shell", raw)
}

type readFileInput struct {
	Target string `json:"target,omitempty"`
	Path   string `json:"path"`
}

func (s *Services) dispatchReadFile(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in readFileInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	res, ok := s.Registry.Resolve(resolvedTarget(in.Target))
	if !ok {
		return errOutput("unknown target %q", in.Target)
	}
	if res.ExecLocal {
		content, err := s.Local.ReadFile(in.Path)
		if err != nil {
			return errOutput("read_file: %v", err)
		}
		return jsonOutput(map[string]string{"content": content})
	}
	return s.routeCommand(ctx, res.Handle.DaemonID, "read_file", raw)
}

type writeFileInput struct {
	Target  string `json:"target,omitempty"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (s *Services) dispatchWriteFile(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in writeFileInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	res, ok := s.Registry.Resolve(resolvedTarget(in.Target))
	if !ok {
		return errOutput("unknown target %q", in.Target)
	}
	if res.ExecLocal {
		if err := s.Local.WriteFile(in.Path, in.Content); err != nil {
			return errOutput("write_file: %v", err)
		}
		return jsonOutput(map[string]bool{"written": true})
	}
	return s.routeCommand(ctx, res.Handle.DaemonID, "write_file", raw)
}

type listFilesInput struct {
	Target string `json:"target,omitempty"`
	Dir    string `json:"dir"`
}

func (s *Services) dispatchListFiles(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in listFilesInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	res, ok := s.Registry.Resolve(resolvedTarget(in.Target))
	if !ok {
		return errOutput("unknown target %q", in.Target)
	}
	if res.ExecLocal {
		names, err := s.Local.ListFiles(in.Dir)
		if err != nil {
			return errOutput("list_files: %v", err)
		}
		return jsonOutput(map[string][]string{"files": names})
	}
	return s.routeCommand(ctx, res.Handle.DaemonID, "list_files", raw)
}

func resolvedTarget(target string) string {
	if target == "" {
		return types.AliasPrime
	}
	return target
}

// routeCommand forwards a local-execution or browser_* tool call through
// the command multiplexer to daemonID, surfacing the daemon's raw JSON
// result or the command's own error as a tool error.
func (s *Services) routeCommand(ctx context.Context, daemonID, commandType string, params json.RawMessage) ToolOutput {
	result, err := s.Mux.Send(ctx, daemonID, commandType, params, CommandTimeout)
	if err != nil {
		return errOutput("%s on %s: %v", commandType, daemonID, err)
	}
	return ToolOutput{Result: result}
}

// ---------- Remote-only browser_* passthrough ----------

type browserPassthroughInput struct {
	Target string `json:"target"`
}

// dispatchBrowserPassthrough routes any browser_* tool call to the named
// daemon under name (the concrete tool the model invoked, e.g.
// "browser_click"); the core never interprets the sub-action itself.
func (s *Services) dispatchBrowserPassthrough(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in browserPassthroughInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	if in.Target == "" {
		return errOutput("%s requires a target daemon", name)
	}
	res, ok := s.Registry.Resolve(in.Target)
	if !ok || res.ExecLocal {
		return errOutput("unknown target %q", in.Target)
	}
	return s.routeCommand(ctx, res.Handle.DaemonID, name, raw)
}

// ---------- Scheduling ----------

type scheduleTaskInput struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Action         string `json:"action"`
	Kind           string `json:"kind"`
	PeriodMinutes  int    `json:"period_minutes,omitempty"`
	CronExpression string `json:"cron_expression,omitempty"`
	OneShotPhrase  string `json:"one_shot_at,omitempty"`
}

func (s *Services) dispatchScheduleTask(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in scheduleTaskInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}

	task := types.ScheduledTask{
		Name:           in.Name,
		Description:    in.Description,
		Action:         in.Action,
		Kind:           types.ScheduleKind(in.Kind),
		PeriodMinutes:  in.PeriodMinutes,
		CronExpression: in.CronExpression,
		ChatID:         chatID,
	}
	if task.Kind == types.ScheduleOneShot && in.OneShotPhrase != "" {
		at, err := scheduler.ParseOneShot(in.OneShotPhrase, time.Now())
		if err != nil {
			return errOutput("schedule_task: %v", err)
		}
		task.OneShotAt = &at
	}

	stored, err := s.Scheduler.Add(task)
	if err != nil {
		return errOutput("schedule_task: %v", err)
	}
	return jsonOutput(stored)
}

type cancelScheduledTaskInput struct {
	ID string `json:"id"`
}

func (s *Services) dispatchCancelScheduledTask(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in cancelScheduledTaskInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	if err := s.Scheduler.Cancel(in.ID); err != nil {
		return errOutput("cancel_scheduled_task: %v", err)
	}
	return jsonOutput(map[string]bool{"cancelled": true})
}

func (s *Services) dispatchListScheduledTasks(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	return jsonOutput(map[string]any{"tasks": s.Scheduler.List()})
}

// ---------- Network ----------

type fetchURLInput struct {
	URL string `json:"url"`
}

func (s *Services) dispatchFetchURL(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in fetchURLInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return errOutput("fetch_url: %v", err)
	}
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return errOutput("fetch_url: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return errOutput("fetch_url: read body: %v", err)
	}
	return jsonOutput(map[string]any{"status": resp.StatusCode, "body": string(body)})
}

type webSearchInput struct {
	Query string `json:"query"`
}

// dispatchWebSearch issues a query against a configured search endpoint
// (e.g. a self-hosted SearXNG instance or a provider's HTTP search API).
// No pack example wires a dedicated search-client library; this rests on
// net/http like fetch_url since the contract here is "make one HTTP call
// and return JSON," not a provider-specific SDK surface.
func (s *Services) dispatchWebSearch(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in webSearchInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	if s.SearchURL == "" {
		return errOutput("web_search: no search endpoint configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.SearchURL+"?q="+in.Query, nil)
	if err != nil {
		return errOutput("web_search: %v", err)
	}
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return errOutput("web_search: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return errOutput("web_search: read body: %v", err)
	}
	return jsonOutput(map[string]any{"status": resp.StatusCode, "body": string(body)})
}

func (s *Services) httpClient() *http.Client {
	if s.HTTP != nil {
		return s.HTTP
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// ---------- Outbound chat surface ----------

type sendMessageInput struct {
	ChatID   string `json:"chat_id,omitempty"`
	Text     string `json:"text"`
	Markdown bool   `json:"markdown,omitempty"`
}

func (s *Services) dispatchSendMessage(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in sendMessageInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	target := in.ChatID
	if target == "" {
		target = chatID
	}
	id, err := s.Outbound.SendMessage(ctx, target, in.Text, in.Markdown)
	if err != nil {
		return errOutput("send_message: %v", err)
	}
	return jsonOutput(map[string]string{"message_id": id})
}

func (s *Services) dispatchSendProgress(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	return s.dispatchSendMessage(ctx, name, chatID, raw)
}

// dispatchAskUser sends the question like send_message but additionally
// marks the result as awaiting_reply. Loop ends the turn after a round in
// which ask_user succeeded, so the user's reply arrives as the next turn.
func (s *Services) dispatchAskUser(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	out := s.dispatchSendMessage(ctx, name, chatID, raw)
	if out.IsError {
		return out
	}
	var payload map[string]any
	_ = json.Unmarshal(out.Result, &payload)
	if payload == nil {
		payload = map[string]any{}
	}
	payload["awaiting_reply"] = true
	return jsonOutput(payload)
}

type sendFileInput struct {
	ChatID string `json:"chat_id,omitempty"`
	Path   string `json:"path"`
}

func (s *Services) dispatchSendFile(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in sendFileInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	target := in.ChatID
	if target == "" {
		target = chatID
	}
	kind := chatadapter.ClassifyFile(in.Path)
	id, err := s.Outbound.SendFile(ctx, target, in.Path, kind)
	if err != nil {
		return errOutput("send_file: %v", err)
	}
	return jsonOutput(map[string]string{"message_id": id, "kind": string(kind)})
}

// ---------- Workspace ----------

type createWorkspaceInput struct {
	SourceFiles []string `json:"source_files,omitempty"`
}

func (s *Services) dispatchCreateWorkspace(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in createWorkspaceInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	ws, err := s.Workspace.Create(in.SourceFiles)
	if err != nil {
		return errOutput("create_workspace: %v", err)
	}
	return jsonOutput(ws)
}

type workspaceAddSourceInput struct {
	WorkspaceID string `json:"workspace_id"`
	Path        string `json:"path"`
}

func (s *Services) dispatchWorkspaceAddSource(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in workspaceAddSourceInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	ws, err := s.Workspace.AddSource(in.WorkspaceID, in.Path)
	if err != nil {
		return errOutput("workspace_add_source: %v", err)
	}
	return jsonOutput(ws)
}

type workspaceGetPathInput struct {
	WorkspaceID string `json:"workspace_id"`
	Subdir      string `json:"subdir"` // "input" | "steps" | "output"
}

func (s *Services) dispatchWorkspaceGetPath(ctx context.Context, name, chatID string, raw json.RawMessage) ToolOutput {
	var in workspaceGetPathInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errOutput("decode input: %v", err)
	}
	var path string
	switch in.Subdir {
	case types.WorkspaceInputDir:
		path = s.Workspace.InputDir(in.WorkspaceID)
	case types.WorkspaceStepsDir:
		path = s.Workspace.StepsDir(in.WorkspaceID)
	case types.WorkspaceOutputDir:
		path = s.Workspace.OutputDir(in.WorkspaceID)
	default:
		return errOutput("workspace_get_path: unknown subdir %q", in.Subdir)
	}
	return jsonOutput(map[string]string{"path": path})
}
