package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/0xcha05/prime/internal/chatadapter"
	"github.com/0xcha05/prime/internal/daemonlink"
	"github.com/0xcha05/prime/internal/registry"
	"github.com/0xcha05/prime/internal/scheduler"
	"github.com/0xcha05/prime/internal/storage"
	"github.com/0xcha05/prime/internal/transcript"
	"github.com/0xcha05/prime/internal/workspace"
)

// CommandTimeout bounds how long a routed tool call waits for a daemon
// result.
const CommandTimeout = 60 * time.Second

// ToolOutput is what a dispatcher returns; IsError mirrors the spec's
// "captured as a tool error, never raised to the caller" contract.
type ToolOutput struct {
	Result  json.RawMessage `json:"result,omitempty"`
	IsError bool            `json:"-"`
	Error   string          `json:"error,omitempty"`
}

func errOutput(format string, args ...any) ToolOutput {
	return ToolOutput{IsError: true, Error: fmt.Sprintf(format, args...)}
}

func jsonOutput(v any) ToolOutput {
	data, err := json.Marshal(v)
	if err != nil {
		return errOutput("marshal tool output: %v", err)
	}
	return ToolOutput{Result: data}
}

// Services bundles every collaborator a tool dispatcher may need. Tool
// dispatch is a map from tool name to a pure function of (input, registry
// snapshot, services) to output, per spec.md §4.6.
type Services struct {
	Registry   *registry.Registry
	Mux        *daemonlink.Multiplexer
	Scheduler  *scheduler.Scheduler
	Workspace  *workspace.Manager
	Outbound   *chatadapter.Outbound
	Transcript *transcript.Store
	Local      *LocalRunner
	HTTP       *http.Client
	// SearchURL is the GET ?q= endpoint web_search queries. Empty disables
	// web_search with a tool error rather than a panic.
	SearchURL string
	// Cache backs remember/recall. Nil disables both tools with a tool
	// error rather than a panic, the same degrade-gracefully pattern
	// SearchURL uses for web_search.
	Cache storage.Store
}

// ToolFunc dispatches one tool call for the given chat. name is the tool
// name the model actually invoked, which for a browser_* passthrough
// dispatcher differs from the catalog key ("browser_*") it was registered
// under.
type ToolFunc func(ctx context.Context, name, chatID string, input json.RawMessage) ToolOutput

// Tool is one catalog entry: a stable name, its JSON-schema input contract,
// and its dispatcher.
type Tool struct {
	Name   string
	Schema json.RawMessage
	Fn     ToolFunc
}

// Catalog is the full set of tools available to the loop for one turn.
type Catalog struct {
	tools map[string]Tool
}

// NewCatalog builds the fixed tool catalog from spec.md §4.6, wiring each
// dispatcher to svc.
func NewCatalog(svc *Services) *Catalog {
	c := &Catalog{tools: make(map[string]Tool)}

	c.register("execute_shell", schemaExecuteShell, svc.dispatchExecuteShell)
	c.register("read_file", schemaReadFile, svc.dispatchReadFile)
	c.register("write_file", schemaWriteFile, svc.dispatchWriteFile)
	c.register("list_files", schemaListFiles, svc.dispatchListFiles)

	c.register("schedule_task", schemaScheduleTask, svc.dispatchScheduleTask)
	c.register("list_scheduled_tasks", schemaListScheduledTasks, svc.dispatchListScheduledTasks)
	c.register("cancel_scheduled_task", schemaCancelScheduledTask, svc.dispatchCancelScheduledTask)

	c.register("web_search", schemaWebSearch, svc.dispatchWebSearch)
	c.register("fetch_url", schemaFetchURL, svc.dispatchFetchURL)

	c.register("send_message", schemaSendMessage, svc.dispatchSendMessage)
	c.register("send_file", schemaSendFile, svc.dispatchSendFile)
	c.register("send_progress", schemaSendMessage, svc.dispatchSendProgress)
	c.register("ask_user", schemaSendMessage, svc.dispatchAskUser)

	c.register("create_workspace", schemaCreateWorkspace, svc.dispatchCreateWorkspace)
	c.register("workspace_add_source", schemaWorkspaceAddSource, svc.dispatchWorkspaceAddSource)
	c.register("workspace_get_path", schemaWorkspaceGetPath, svc.dispatchWorkspaceGetPath)

	c.register("remember", schemaRemember, svc.dispatchRemember)
	c.register("recall", schemaRecall, svc.dispatchRecall)

	return c
}

func (c *Catalog) register(name string, schema json.RawMessage, fn ToolFunc) {
	c.tools[name] = Tool{Name: name, Schema: schema, Fn: fn}
}

// Dispatch runs tool name against input, validating input against the
// tool's declared schema first. An unknown tool name or a schema/dispatcher
// failure is captured as a tool error; it never aborts the loop, per
// spec.md §4.6.
func (c *Catalog) Dispatch(ctx context.Context, name, chatID string, input json.RawMessage) ToolOutput {
	tool, ok := c.lookup(name)
	if !ok {
		return errOutput("unknown tool")
	}
	if err := validateInput(tool.Schema, input); err != nil {
		return errOutput("%v", err)
	}
	return tool.Fn(ctx, name, chatID, input)
}

// lookup resolves name directly, or — for any name beginning with
// "browser_" — against a single opaque passthrough dispatcher, per the
// remote-only tool contract in spec.md §4.6.
func (c *Catalog) lookup(name string) (Tool, bool) {
	if t, ok := c.tools[name]; ok {
		return t, true
	}
	if strings.HasPrefix(name, "browser_") {
		if t, ok := c.tools["browser_*"]; ok {
			return t, true
		}
	}
	return Tool{}, false
}

// RegisterBrowserPassthrough wires the single dispatcher every browser_*
// tool name routes through; the core never interprets the sub-action, only
// the routing key (daemon name) that accompanies it.
func (c *Catalog) RegisterBrowserPassthrough(fn ToolFunc) {
	c.register("browser_*", schemaBrowserPassthrough, fn)
}

// Names returns every concrete tool name currently registered (excluding
// the browser_* passthrough sentinel), for assembling the model's tool
// catalog declaration.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		if name == "browser_*" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// Schema returns the declared input schema for name, or nil if unknown.
func (c *Catalog) Schema(name string) json.RawMessage {
	if t, ok := c.tools[name]; ok {
		return t.Schema
	}
	return nil
}
