package brain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xcha05/prime/internal/chatadapter"
	"github.com/0xcha05/prime/internal/registry"
	"github.com/0xcha05/prime/internal/scheduler"
	"github.com/0xcha05/prime/internal/types"
	"github.com/0xcha05/prime/internal/workspace"
)

// fakeProvider satisfies chatadapter.Provider without hitting a real chat
// backend.
type fakeProvider struct {
	sent []string
}

func (f *fakeProvider) SendMessage(ctx context.Context, chatID, text string, markdown bool) (string, error) {
	f.sent = append(f.sent, text)
	return "msg-1", nil
}
func (f *fakeProvider) SendFile(ctx context.Context, chatID, path string, kind chatadapter.FileKind) (string, error) {
	return "file-1", nil
}
func (f *fakeProvider) SendConfirmation(ctx context.Context, chatID, prompt, confirmLabel, cancelLabel string) (string, error) {
	return "confirm-1", nil
}
func (f *fakeProvider) EditMessage(ctx context.Context, chatID, messageID, text string) error { return nil }
func (f *fakeProvider) SetTyping(ctx context.Context, chatID string, typing bool) error        { return nil }
func (f *fakeProvider) SetWebhook(ctx context.Context, url string) error                       { return nil }
func (f *fakeProvider) GetWebhookInfo(ctx context.Context) (string, error)                     { return "", nil }

func noopActionRunner(ctx context.Context, task *types.ScheduledTask) error { return nil }

func TestDispatchUnknownToolProducesError(t *testing.T) {
	svc := &Services{Registry: registry.New("key")}
	c := NewCatalog(svc)
	out := c.Dispatch(context.Background(), "does_not_exist", "chat-1", json.RawMessage(`{}`))
	require.True(t, out.IsError)
	require.Equal(t, "unknown tool", out.Error)
}

func TestDispatchRejectsInputFailingSchema(t *testing.T) {
	svc := &Services{Registry: registry.New("key"), Local: NewLocalRunner(5 * time.Second)}
	c := NewCatalog(svc)
	out := c.Dispatch(context.Background(), "read_file", "chat-1", json.RawMessage(`{}`))
	require.True(t, out.IsError)
}

func TestDispatchExecuteShellRunsLocallyForPrimeTarget(t *testing.T) {
	svc := &Services{Registry: registry.New("key"), Local: NewLocalRunner(5 * time.Second)}
	c := NewCatalog(svc)
	out := c.Dispatch(context.Background(), "execute_shell", "chat-1", json.RawMessage(`{"command":"echo hi"}`))
	require.False(t, out.IsError)
	require.Contains(t, string(out.Result), "hi")
}

func TestDispatchReadWriteFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	svc := &Services{Registry: registry.New("key"), Local: NewLocalRunner(5 * time.Second)}
	c := NewCatalog(svc)

	path := filepath.Join(dir, "a.txt")
	writeIn, _ := json.Marshal(map[string]string{"path": path, "content": "hello"})
	out := c.Dispatch(context.Background(), "write_file", "chat-1", writeIn)
	require.False(t, out.IsError)

	readIn, _ := json.Marshal(map[string]string{"path": path})
	out = c.Dispatch(context.Background(), "read_file", "chat-1", readIn)
	require.False(t, out.IsError)
	require.Contains(t, string(out.Result), "hello")
}

func TestDispatchUnknownTargetProducesError(t *testing.T) {
	svc := &Services{Registry: registry.New("key"), Local: NewLocalRunner(5 * time.Second)}
	c := NewCatalog(svc)
	in, _ := json.Marshal(map[string]string{"target": "nonexistent-daemon", "command": "echo hi"})
	out := c.Dispatch(context.Background(), "execute_shell", "chat-1", in)
	require.True(t, out.IsError)
}

func TestBrowserPassthroughRoutesByPrefix(t *testing.T) {
	svc := &Services{Registry: registry.New("key")}
	c := NewCatalog(svc)
	c.RegisterBrowserPassthrough(svc.dispatchBrowserPassthrough)

	// No connected daemon named "laptop" so routeCommand fails, but it must
	// reach the dispatcher (proving the browser_* prefix resolved), not
	// "unknown tool".
	in, _ := json.Marshal(map[string]string{"target": "laptop"})
	out := c.Dispatch(context.Background(), "browser_click", "chat-1", in)
	require.True(t, out.IsError)
	require.NotEqual(t, "unknown tool", out.Error)
}

func TestDispatchScheduleListCancelTask(t *testing.T) {
	sched, err := scheduler.New(filepath.Join(t.TempDir(), "sched.json"), noopActionRunner, nil)
	require.NoError(t, err)
	svc := &Services{Registry: registry.New("key"), Scheduler: sched}
	c := NewCatalog(svc)

	addIn, _ := json.Marshal(map[string]any{
		"name": "nightly backup", "action": "backup.sh", "kind": "period_minutes", "period_minutes": 60,
	})
	out := c.Dispatch(context.Background(), "schedule_task", "chat-1", addIn)
	require.False(t, out.IsError)
	var added types.ScheduledTask
	require.NoError(t, json.Unmarshal(out.Result, &added))
	require.NotEmpty(t, added.ID)

	listOut := c.Dispatch(context.Background(), "list_scheduled_tasks", "chat-1", json.RawMessage(`{}`))
	require.False(t, listOut.IsError)
	require.Contains(t, string(listOut.Result), added.ID)

	cancelIn, _ := json.Marshal(map[string]string{"id": added.ID})
	cancelOut := c.Dispatch(context.Background(), "cancel_scheduled_task", "chat-1", cancelIn)
	require.False(t, cancelOut.IsError)
}

func TestDispatchListScheduledTasksEmpty(t *testing.T) {
	sched, err := scheduler.New(filepath.Join(t.TempDir(), "sched.json"), noopActionRunner, nil)
	require.NoError(t, err)
	svc := &Services{Registry: registry.New("key"), Scheduler: sched}
	c := NewCatalog(svc)
	out := c.Dispatch(context.Background(), "list_scheduled_tasks", "chat-1", json.RawMessage(`{}`))
	require.False(t, out.IsError)
	require.Contains(t, string(out.Result), `"tasks":[]`)
}

func TestDispatchSendMessageUsesOutbound(t *testing.T) {
	fp := &fakeProvider{}
	out := chatadapter.NewOutbound(fp, nil)
	svc := &Services{Registry: registry.New("key"), Outbound: out}
	c := NewCatalog(svc)

	in, _ := json.Marshal(map[string]any{"text": "hello there"})
	res := c.Dispatch(context.Background(), "send_message", "chat-1", in)
	require.False(t, res.IsError)
	require.Equal(t, []string{"hello there"}, fp.sent)
}

func TestDispatchAskUserMarksAwaitingReply(t *testing.T) {
	fp := &fakeProvider{}
	out := chatadapter.NewOutbound(fp, nil)
	svc := &Services{Registry: registry.New("key"), Outbound: out}
	c := NewCatalog(svc)

	in, _ := json.Marshal(map[string]any{"text": "confirm?"})
	res := c.Dispatch(context.Background(), "ask_user", "chat-1", in)
	require.False(t, res.IsError)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(res.Result, &payload))
	require.Equal(t, true, payload["awaiting_reply"])
}

func TestDispatchCreateWorkspaceAndGetPath(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	svc := &Services{Registry: registry.New("key"), Workspace: ws}
	c := NewCatalog(svc)

	out := c.Dispatch(context.Background(), "create_workspace", "chat-1", json.RawMessage(`{}`))
	require.False(t, out.IsError)
	var created map[string]any
	require.NoError(t, json.Unmarshal(out.Result, &created))
	id := created["id"].(string)

	pathIn, _ := json.Marshal(map[string]string{"workspace_id": id, "subdir": "input"})
	pathOut := c.Dispatch(context.Background(), "workspace_get_path", "chat-1", pathIn)
	require.False(t, pathOut.IsError)
	require.Contains(t, string(pathOut.Result), "input")
}

func TestDispatchFetchURLReturnsBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok body"))
	}))
	defer ts.Close()

	svc := &Services{Registry: registry.New("key")}
	c := NewCatalog(svc)
	in, _ := json.Marshal(map[string]string{"url": ts.URL})
	out := c.Dispatch(context.Background(), "fetch_url", "chat-1", in)
	require.False(t, out.IsError)
	require.Contains(t, string(out.Result), "ok body")
}

func TestDispatchWebSearchRequiresConfiguredEndpoint(t *testing.T) {
	svc := &Services{Registry: registry.New("key")}
	c := NewCatalog(svc)
	in, _ := json.Marshal(map[string]string{"query": "weather"})
	out := c.Dispatch(context.Background(), "web_search", "chat-1", in)
	require.True(t, out.IsError)
}
