package brain

import (
	"encoding/json"
	"strings"
)

// Tool input schemas for the fixed catalog from spec.md §4.6. Kept as raw
// JSON literals rather than generated structs so Catalog.Schema can hand
// the exact declaration straight to the model's tool-use block.
var (
	schemaExecuteShell = rawSchema(`{
		"type": "object",
		"properties": {
			"target": {"type": "string", "description": "daemon alias or id; defaults to prime"},
			"command": {"type": "string"}
		},
		"required": ["command"]
	}`)

	schemaReadFile = rawSchema(`{
		"type": "object",
		"properties": {
			"target": {"type": "string"},
			"path": {"type": "string"}
		},
		"required": ["path"]
	}`)

	schemaWriteFile = rawSchema(`{
		"type": "object",
		"properties": {
			"target": {"type": "string"},
			"path": {"type": "string"},
			"content": {"type": "string"}
		},
		"required": ["path", "content"]
	}`)

	schemaListFiles = rawSchema(`{
		"type": "object",
		"properties": {
			"target": {"type": "string"},
			"dir": {"type": "string"}
		},
		"required": ["dir"]
	}`)

	schemaScheduleTask = rawSchema(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"description": {"type": "string"},
			"action": {"type": "string"},
			"kind": {"type": "string", "enum": ["period_minutes", "cron_expression", "one_shot_at"]},
			"period_minutes": {"type": "integer"},
			"cron_expression": {"type": "string"},
			"one_shot_at": {"type": "string", "description": "natural-language time phrase, e.g. 'in 20 minutes'"}
		},
		"required": ["name", "action", "kind"]
	}`)

	schemaListScheduledTasks = rawSchema(`{"type": "object", "properties": {}}`)

	schemaCancelScheduledTask = rawSchema(`{
		"type": "object",
		"properties": {"id": {"type": "string"}},
		"required": ["id"]
	}`)

	schemaWebSearch = rawSchema(`{
		"type": "object",
		"properties": {"query": {"type": "string"}},
		"required": ["query"]
	}`)

	schemaFetchURL = rawSchema(`{
		"type": "object",
		"properties": {"url": {"type": "string"}},
		"required": ["url"]
	}`)

	schemaSendMessage = rawSchema(`{
		"type": "object",
		"properties": {
			"chat_id": {"type": "string"},
			"text": {"type": "string"},
			"markdown": {"type": "boolean"}
		},
		"required": ["text"]
	}`)

	schemaSendFile = rawSchema(`{
		"type": "object",
		"properties": {
			"chat_id": {"type": "string"},
			"path": {"type": "string"}
		},
		"required": ["path"]
	}`)

	schemaCreateWorkspace = rawSchema(`{
		"type": "object",
		"properties": {
			"source_files": {"type": "array", "items": {"type": "string"}}
		}
	}`)

	schemaWorkspaceAddSource = rawSchema(`{
		"type": "object",
		"properties": {
			"workspace_id": {"type": "string"},
			"path": {"type": "string"}
		},
		"required": ["workspace_id", "path"]
	}`)

	schemaWorkspaceGetPath = rawSchema(`{
		"type": "object",
		"properties": {
			"workspace_id": {"type": "string"},
			"subdir": {"type": "string", "enum": ["input", "steps", "output"]}
		},
		"required": ["workspace_id", "subdir"]
	}`)

	schemaBrowserPassthrough = rawSchema(`{
		"type": "object",
		"properties": {
			"target": {"type": "string", "description": "daemon alias or id running the browser session"}
		},
		"required": ["target"],
		"additionalProperties": true
	}`)

	schemaRemember = rawSchema(`{
		"type": "object",
		"properties": {
			"key": {"type": "string"},
			"value": {"type": "string"},
			"ttl_seconds": {"type": "integer", "description": "0 means no expiry in the in-process store and the store's default TTL in Redis"}
		},
		"required": ["key", "value"]
	}`)

	schemaRecall = rawSchema(`{
		"type": "object",
		"properties": {
			"key": {"type": "string"}
		},
		"required": ["key"]
	}`)
)

func rawSchema(s string) json.RawMessage {
	return json.RawMessage(s)
}

var toolDescriptions = map[string]string{
	"execute_shell":         "Run a shell command on the prime host or a named daemon.",
	"read_file":             "Read a file's contents from the prime host or a named daemon.",
	"write_file":            "Write content to a file on the prime host or a named daemon.",
	"list_files":            "List the entries of a directory on the prime host or a named daemon.",
	"schedule_task":         "Schedule a recurring, cron, or one-shot task that fires a tick event later.",
	"list_scheduled_tasks":  "List every scheduled task and its next run time.",
	"cancel_scheduled_task": "Disable a scheduled task without removing its history.",
	"web_search":            "Search the web for a query and return matching results.",
	"fetch_url":             "Fetch the contents of a URL over HTTP.",
	"send_message":          "Send a chat message to the user, optionally formatted as markdown.",
	"send_file":             "Send a file to the user, auto-classified as video, photo, audio, or document.",
	"send_progress":         "Send an interim progress update to the user mid-turn.",
	"ask_user":              "Ask the user a question and end the turn; their reply starts the next turn.",
	"create_workspace":      "Create a fresh workspace directory tree for a multi-step task.",
	"workspace_add_source":  "Copy an additional source file into a workspace's input directory.",
	"workspace_get_path":    "Resolve the input, steps, or output directory path for a workspace.",
	"remember":              "Store a short note under a key for later recall, with an optional TTL.",
	"recall":                "Look up a note previously stored with remember.",
}

func toolDescription(name string) string {
	if d, ok := toolDescriptions[name]; ok {
		return d
	}
	if strings.HasPrefix(name, "browser_") {
		return "Remote browser action, forwarded opaquely to the named daemon."
	}
	return name
}
