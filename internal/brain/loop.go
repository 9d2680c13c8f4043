package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/0xcha05/prime/internal/chatturn"
	"github.com/0xcha05/prime/internal/registry"
	"github.com/0xcha05/prime/internal/telemetry"
	"github.com/0xcha05/prime/internal/transcript"
	"github.com/0xcha05/prime/internal/types"
)

// loopMetrics holds lazily-initialized OTel instruments for brain loop rounds.
var loopMetrics struct {
	rounds   metric.Int64Counter
	duration metric.Float64Histogram
}

var loopMetricsOnce sync.Once

func initLoopMetrics() {
	m := telemetry.Meter("github.com/0xcha05/prime/brain")
	loopMetrics.rounds, _ = m.Int64Counter("prime.brain.rounds",
		metric.WithDescription("Model rounds executed by the brain loop"),
		metric.WithUnit("{round}"),
	)
	loopMetrics.duration, _ = m.Float64Histogram("prime.brain.round.duration",
		metric.WithDescription("Brain loop model round duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// MinRoundBudget is the lowest round budget a Loop may be configured with,
// per spec.md §4.6's "round budget (≥ 8)" invariant.
const MinRoundBudget = 8

// Loop is the tool-driven reasoning primitive that turns one inbound event
// into zero or more tool calls and a final reply. Shaped on
// goadesign-goa-ai's runtime/agent/runtime tool-call loop
// (workflow_loop.go, tool_calls.go), adapted from Temporal-backed durable
// workflow steps to a single in-process loop — this control plane has no
// durable-workflow engine (see SPEC_FULL.md §9).
type Loop struct {
	model      ModelClient
	catalog    *Catalog
	patterns   *PatternStore
	serializer *chatturn.Serializer
	registry   *registry.Registry
	transcript *transcript.Store
	services   *Services

	roundBudget int
	turnDeadline time.Duration
}

// NewLoop wires a Loop. roundBudget below MinRoundBudget is clamped up.
func NewLoop(model ModelClient, catalog *Catalog, patterns *PatternStore, serializer *chatturn.Serializer, reg *registry.Registry, ts *transcript.Store, svc *Services, roundBudget int, turnDeadline time.Duration) *Loop {
	if roundBudget < MinRoundBudget {
		roundBudget = MinRoundBudget
	}
	return &Loop{
		model:        model,
		catalog:      catalog,
		patterns:     patterns,
		serializer:   serializer,
		registry:     reg,
		transcript:   ts,
		services:     svc,
		roundBudget:  roundBudget,
		turnDeadline: turnDeadline,
	}
}

// RunTurn implements chatturn.Dispatch: it runs exactly one brain-loop turn
// for chatID triggered by trigger, recording the result to the transcript
// and sending the final reply outbound. Intended use is
// chatturn.New(loop.RunTurn).
func (l *Loop) RunTurn(ctx context.Context, chatID string, trigger types.Event) {
	if l.turnDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.turnDeadline)
		defer cancel()
	}

	text := eventText(trigger)
	if text == "" {
		return
	}
	l.recordUser(chatID, text)

	if pattern, ok := l.patterns.Match(text); ok {
		l.runFastPath(ctx, chatID, pattern, text)
		return
	}

	reply, err := l.runModelRounds(ctx, chatID, text)
	if err != nil {
		l.recordAssistant(chatID, fmt.Sprintf("turn failed: %v", err))
		_, _ = l.services.Outbound.SendMessage(ctx, chatID, fmt.Sprintf("Sorry, something went wrong: %v", err), false)
		return
	}
	l.recordAssistant(chatID, reply)
	if reply != "" {
		_, _ = l.services.Outbound.SendMessage(ctx, chatID, reply, true)
	}
}

// runFastPath executes a learned pattern's target action directly,
// bypassing a model round. Dangerous actions (RequiresConfirmation set, or
// an execute_shell target) still confirm once, per SPEC_FULL.md §9's
// resolution of the learned-pattern-vs-confirmation open question.
func (l *Loop) runFastPath(ctx context.Context, chatID string, pattern *types.LearnedPattern, matchedText string) {
	if pattern.RequiresConfirmation || pattern.TargetAction == "execute_shell" {
		prompt := fmt.Sprintf("Run learned shortcut %q (%s)?", pattern.Trigger, pattern.TargetAction)
		if _, err := l.services.Outbound.SendConfirmation(ctx, chatID, prompt, "Go", "Cancel"); err != nil {
			l.recordAssistant(chatID, fmt.Sprintf("fast path confirmation failed: %v", err))
			return
		}
	}

	params, err := json.Marshal(pattern.Parameters)
	if err != nil {
		l.recordAssistant(chatID, fmt.Sprintf("fast path %q: bad parameters: %v", pattern.Trigger, err))
		return
	}
	out := l.catalog.Dispatch(ctx, pattern.TargetAction, chatID, params)
	_ = l.patterns.RecordUse(pattern.Trigger)

	l.appendEntry(chatID, types.TranscriptEntry{
		Role:      "tool",
		Content:   fmt.Sprintf("fast-path %s -> %s", pattern.TargetAction, resultSummary(out)),
		Timestamp: time.Now(),
		Metadata:  map[string]any{"trigger": pattern.Trigger, "matched_text": matchedText, "fast_path": true},
	})
}

// runModelRounds drives the model.invoke / dispatch_tool loop from
// spec.md §4.6 until the model's stop reason is not tool_use, a round has
// called ask_user successfully, or the round budget is exhausted.
func (l *Loop) runModelRounds(ctx context.Context, chatID, eventText string) (string, error) {
	loopMetricsOnce.Do(initLoopMetrics)
	tracer := telemetry.Tracer("github.com/0xcha05/prime/brain")
	ctx, span := tracer.Start(ctx, "brain.turn")
	defer span.End()
	span.SetAttributes(attribute.String("prime.chat_id", chatID))

	history, err := l.transcript.Window(chatID)
	if err != nil {
		return "", fmt.Errorf("load transcript window: %w", err)
	}

	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, e := range history {
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		messages = append(messages, roleMessage(e.Role, e.Content))
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(eventText)))

	system := l.systemPrompt()
	tools := l.toolParams()

	var lastText string
	for round := 0; round < l.roundBudget; round++ {
		roundAttrs := metric.WithAttributes(attribute.Int("prime.round", round))
		t0 := time.Now()
		reply, err := l.model.Invoke(ctx, system, tools, messages)
		if loopMetrics.rounds != nil {
			loopMetrics.rounds.Add(ctx, 1, roundAttrs)
			loopMetrics.duration.Record(ctx, float64(time.Since(t0).Milliseconds()), roundAttrs)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("model invoke: %w", err)
		}

		for _, block := range reply.Content {
			if block.Type == "text" && block.Text != "" {
				lastText = block.Text
			}
		}

		if string(reply.StopReason) != "tool_use" {
			span.SetAttributes(attribute.Int("prime.rounds_used", round+1))
			return lastText, nil
		}

		assistantBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(reply.Content))
		var resultBlocks []anthropic.ContentBlockParamUnion
		askedUser := false
		for _, block := range reply.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(block.Text))
				}
			case "tool_use":
				assistantBlocks = append(assistantBlocks, anthropic.NewToolUseBlock(block.ID, block.Input, block.Name))
				out := l.catalog.Dispatch(ctx, block.Name, chatID, json.RawMessage(block.Input))
				if block.Name == "ask_user" && !out.IsError {
					askedUser = true
				}
				resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(block.ID, toolResultText(out), out.IsError))
				l.appendEntry(chatID, types.TranscriptEntry{
					Role:      "tool",
					Content:   fmt.Sprintf("%s -> %s", block.Name, resultSummary(out)),
					Timestamp: time.Now(),
				})
			}
		}
		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))

		// ask_user ends the turn: no further tool calls run, and the user's
		// reply reaches the serializer as the next turn.
		if askedUser {
			span.SetAttributes(attribute.Int("prime.rounds_used", round+1))
			return lastText, nil
		}

		if absorbed := l.serializer.Drain(chatID); len(absorbed) > 0 {
			for _, ev := range absorbed {
				l.recordUser(chatID, eventText(ev))
			}
			resultBlocks = append(resultBlocks, anthropic.NewTextBlock(renderAbsorbed(absorbed)))
		}
		if len(resultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(resultBlocks...))
		}
	}

	budgetErr := fmt.Errorf("round budget (%d) exhausted", l.roundBudget)
	span.RecordError(budgetErr)
	span.SetStatus(codes.Error, budgetErr.Error())
	return lastText, budgetErr
}

func roleMessage(role, content string) anthropic.MessageParam {
	if role == "assistant" {
		return anthropic.NewAssistantMessage(anthropic.NewTextBlock(content))
	}
	return anthropic.NewUserMessage(anthropic.NewTextBlock(content))
}

func toolResultText(out ToolOutput) string {
	if out.IsError {
		return out.Error
	}
	return string(out.Result)
}

func resultSummary(out ToolOutput) string {
	if out.IsError {
		return "error: " + out.Error
	}
	if len(out.Result) > 200 {
		return string(out.Result[:200]) + "…"
	}
	return string(out.Result)
}

func renderAbsorbed(events []types.Event) string {
	var b strings.Builder
	b.WriteString("additional messages arrived mid-turn:\n")
	for _, e := range events {
		b.WriteString("- ")
		b.WriteString(eventText(e))
		b.WriteString("\n")
	}
	return b.String()
}

func eventText(e types.Event) string {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return ""
	}
	return payload.Text
}

// systemPrompt assembles the system prompt from a live snapshot of the
// daemon registry (names, gauges, capabilities), per spec.md §4.6.
func (l *Loop) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are prime, a personal control-plane assistant with tools to act on the user's behalf.\n")
	b.WriteString("Connected daemons:\n")
	for _, h := range l.registry.List() {
		fmt.Fprintf(&b, "- %s (%s) caps=%v cpu=%.1f%% mem=%.1f%%\n",
			h.Name, h.DaemonID, h.Capabilities, h.Gauges.CPUPercent, h.Gauges.MemoryPercent)
	}
	return b.String()
}

func (l *Loop) toolParams() []anthropic.ToolUnionParam {
	names := l.catalog.Names()
	out := make([]anthropic.ToolUnionParam, 0, len(names))
	for _, name := range names {
		schema := l.catalog.Schema(name)
		var schemaMap map[string]any
		_ = json.Unmarshal(schema, &schemaMap)
		u := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{ExtraFields: schemaMap}, name)
		if u.OfTool != nil {
			u.OfTool.Description = anthropic.String(toolDescription(name))
		}
		out = append(out, u)
	}
	return out
}

func (l *Loop) recordUser(chatID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	l.appendEntry(chatID, types.TranscriptEntry{Role: "user", Content: text, Timestamp: time.Now()})
}

func (l *Loop) recordAssistant(chatID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	l.appendEntry(chatID, types.TranscriptEntry{Role: "assistant", Content: text, Timestamp: time.Now()})
}

func (l *Loop) appendEntry(chatID string, e types.TranscriptEntry) {
	_ = l.transcript.Append(chatID, e)
}
