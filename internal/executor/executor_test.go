package executor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
	"github.com/google/go-cmp/cmp"

	"github.com/user/sqlagents/internal/flow"
	"github.com/user/sqlagents/internal/pipeline"
	"github.com/user/sqlagents/pkg/llm"
)

// recordingQueue captures written events.
type recordingQueue struct {
	eventqueue.Queue

	mu       sync.Mutex
	events   []a2a.Event
	writeErr error
}

func (q *recordingQueue) Write(_ context.Context, event a2a.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.writeErr != nil {
		return q.writeErr
	}
	q.events = append(q.events, event)
	return nil
}

func (q *recordingQueue) Close() error { return nil }

// step is a comparable summary of one published event.
type step struct {
	Kind     string
	State    a2a.TaskState
	Final    bool
	Text     string
	Artifact string
}

func summarize(t *testing.T, events []a2a.Event) []step {
	t.Helper()
	var steps []step
	for _, e := range events {
		switch ev := e.(type) {
		case *a2a.Task:
			var text string
			if len(ev.History) > 0 {
				text, _ = firstText(ev.History[0])
			}
			steps = append(steps, step{Kind: "task", State: ev.Status.State, Text: text})
		case *a2a.TaskStatusUpdateEvent:
			text, _ := firstText(ev.Status.Message)
			steps = append(steps, step{Kind: "status", State: ev.Status.State, Final: ev.Final, Text: text})
		case *a2a.TaskArtifactUpdateEvent:
			var text string
			if len(ev.Artifact.Parts) > 0 {
				text, _ = firstText(&a2a.Message{Parts: ev.Artifact.Parts})
			}
			steps = append(steps, step{Kind: "artifact", Artifact: string(ev.Artifact.ID), Text: text})
		default:
			t.Fatalf("unexpected event %T", e)
		}
	}
	return steps
}

func newRequest(text string) *a2asrv.RequestContext {
	var msg *a2a.Message
	if text == "" {
		msg = a2a.NewMessage(a2a.MessageRoleUser)
	} else {
		msg = a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text})
	}
	return &a2asrv.RequestContext{
		Message:   msg,
		TaskID:    a2a.TaskID("task-1"),
		ContextID: "context-1",
	}
}

type schemaFunc func(ctx context.Context) (string, error)

func (f schemaFunc) Document(ctx context.Context) (string, error) { return f(ctx) }

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) GenerateQuery(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type optimizerFunc func(ctx context.Context, sql string) (string, error)

func (f optimizerFunc) OptimizeQuery(ctx context.Context, sql string) (string, error) {
	return f(ctx, sql)
}

func staticSchema(doc string) pipeline.SchemaSource {
	return schemaFunc(func(context.Context) (string, error) { return doc, nil })
}

func newSQLAgent(schema pipeline.SchemaSource, gen generatorFunc, opts Options) *SQLAgent {
	return NewSQLAgent(pipeline.NewGenerator(gen, schema, nil, nil), opts)
}

func TestSQLAgentCompletes(t *testing.T) {
	var gotPrompt string
	gen := generatorFunc(func(_ context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "SELECT SUM(Amount) FROM Sales", nil
	})
	agent := newSQLAgent(staticSchema("Table: Sales\nColumns:\n- Amount"), gen, Options{})
	queue := &recordingQueue{}

	if err := agent.Execute(context.Background(), newRequest("total sales"), queue); err != nil {
		t.Fatal(err)
	}

	want := []step{
		{Kind: "task", State: a2a.TaskStateSubmitted, Text: "total sales"},
		{Kind: "status", State: a2a.TaskStateWorking, Text: "Processing your request..."},
		{Kind: "status", State: a2a.TaskStateCompleted, Final: true, Text: "SELECT SUM(Amount) FROM Sales"},
	}
	if diff := cmp.Diff(want, summarize(t, queue.events)); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(gotPrompt, "Database schema:\nTable: Sales\nColumns:\n- Amount\n\nUser ask: total sales") {
		t.Errorf("prompt should embed schema and ask, got:\n%s", gotPrompt)
	}
}

func TestSQLAgentEventsCarryTaskIdentity(t *testing.T) {
	gen := generatorFunc(func(context.Context, string) (string, error) { return "SELECT 1", nil })
	agent := newSQLAgent(staticSchema("doc"), gen, Options{})
	queue := &recordingQueue{}

	if err := agent.Execute(context.Background(), newRequest("x"), queue); err != nil {
		t.Fatal(err)
	}
	for _, e := range queue.events {
		su, ok := e.(*a2a.TaskStatusUpdateEvent)
		if !ok {
			continue
		}
		if su.TaskID != "task-1" || su.ContextID != "context-1" {
			t.Errorf("status event has identity %s/%s", su.TaskID, su.ContextID)
		}
		if su.Status.Message != nil && su.Status.Message.Role != a2a.MessageRoleAgent {
			t.Errorf("status message role = %s, want agent", su.Status.Message.Role)
		}
	}
}

func TestSQLAgentExistingTaskSkipsSubmitted(t *testing.T) {
	gen := generatorFunc(func(context.Context, string) (string, error) { return "SELECT 1", nil })
	agent := newSQLAgent(staticSchema("doc"), gen, Options{})
	queue := &recordingQueue{}

	req := newRequest("again")
	req.StoredTask = &a2a.Task{ID: req.TaskID, ContextID: req.ContextID, Status: a2a.TaskStatus{State: a2a.TaskStateInputRequired}}

	if err := agent.Execute(context.Background(), req, queue); err != nil {
		t.Fatal(err)
	}
	got := summarize(t, queue.events)
	if len(got) != 2 || got[0].State != a2a.TaskStateWorking || got[1].State != a2a.TaskStateCompleted {
		t.Errorf("expected working then completed, got %+v", got)
	}
}

func TestSQLAgentNoInput(t *testing.T) {
	called := false
	gen := generatorFunc(func(context.Context, string) (string, error) {
		called = true
		return "", nil
	})
	agent := newSQLAgent(staticSchema("doc"), gen, Options{})

	tests := []struct {
		name string
		req  *a2asrv.RequestContext
	}{
		{"no parts", newRequest("")},
		{"empty text", &a2asrv.RequestContext{
			Message:   a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: ""}),
			TaskID:    "task-2",
			ContextID: "context-2",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &recordingQueue{}
			if err := agent.Execute(context.Background(), tt.req, queue); err != nil {
				t.Fatal(err)
			}
			got := summarize(t, queue.events)
			last := got[len(got)-1]
			if diff := cmp.Diff(step{Kind: "status", State: a2a.TaskStateFailed, Final: true, Text: "No input provided."}, last); diff != "" {
				t.Errorf("terminal event mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if called {
		t.Error("generator must not be called without input")
	}
}

func TestSQLAgentSchemaError(t *testing.T) {
	schema := schemaFunc(func(context.Context) (string, error) { return "", errors.New("login failed") })
	gen := generatorFunc(func(context.Context, string) (string, error) {
		t.Error("generator must not be called when the schema fails")
		return "", nil
	})
	agent := newSQLAgent(schema, gen, Options{})
	queue := &recordingQueue{}

	if err := agent.Execute(context.Background(), newRequest("x"), queue); err != nil {
		t.Fatal(err)
	}
	got := summarize(t, queue.events)
	want := step{Kind: "status", State: a2a.TaskStateFailed, Final: true, Text: "Agent error: read schema: login failed"}
	if diff := cmp.Diff(want, got[len(got)-1]); diff != "" {
		t.Errorf("terminal event mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLAgentCancelDuringModelCall(t *testing.T) {
	cancellations := NewCancellations()
	var agent *SQLAgent
	gen := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		// Cancel arrives while the model call is in flight.
		if err := agent.Cancel(ctx, newRequest(""), nil); err != nil {
			t.Fatal(err)
		}
		return "SELECT 1", nil
	})
	agent = newSQLAgent(staticSchema("doc"), gen, Options{Cancellations: cancellations})
	queue := &recordingQueue{}

	if err := agent.Execute(context.Background(), newRequest("x"), queue); err != nil {
		t.Fatal(err)
	}

	want := []step{
		{Kind: "task", State: a2a.TaskStateSubmitted, Text: "x"},
		{Kind: "status", State: a2a.TaskStateWorking, Text: "Processing your request..."},
		{Kind: "status", State: a2a.TaskStateCanceled, Final: true},
	}
	if diff := cmp.Diff(want, summarize(t, queue.events)); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}
	if cancellations.Len() != 0 {
		t.Errorf("cancel request should be forgotten after the task ends, %d left", cancellations.Len())
	}
}

func TestOptimizeAgentCancelSuppressesArtifact(t *testing.T) {
	cancellations := NewCancellations()
	var agent *OptimizeAgent
	opt := optimizerFunc(func(ctx context.Context, _ string) (string, error) {
		if err := agent.Cancel(ctx, newRequest(""), nil); err != nil {
			t.Fatal(err)
		}
		return "SELECT Id FROM Sales", nil
	})
	agent = NewOptimizeAgent(opt, Options{Cancellations: cancellations})
	queue := &recordingQueue{}

	if err := agent.Execute(context.Background(), newRequest("SELECT * FROM Sales"), queue); err != nil {
		t.Fatal(err)
	}

	want := []step{
		{Kind: "task", State: a2a.TaskStateSubmitted, Text: "SELECT * FROM Sales"},
		{Kind: "status", State: a2a.TaskStateWorking, Text: "Optimizing MS-SQL query..."},
		{Kind: "status", State: a2a.TaskStateCanceled, Final: true},
	}
	if diff := cmp.Diff(want, summarize(t, queue.events)); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}
	if cancellations.Len() != 0 {
		t.Errorf("cancel request should be forgotten after the task ends, %d left", cancellations.Len())
	}
}

func TestCancelIgnoredForTerminalTask(t *testing.T) {
	cancellations := NewCancellations()
	agent := NewOptimizeAgent(optimizerFunc(nil), Options{Cancellations: cancellations})

	req := newRequest("")
	req.StoredTask = &a2a.Task{ID: req.TaskID, Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}}
	queue := &recordingQueue{}

	if err := agent.Cancel(context.Background(), req, queue); err != nil {
		t.Fatal(err)
	}
	if cancellations.Requested(req.TaskID) {
		t.Error("cancel of a terminal task must not be recorded")
	}
	if len(queue.events) != 0 {
		t.Errorf("cancel must not publish, got %d events", len(queue.events))
	}
}

func TestOptimizeAgentCompletes(t *testing.T) {
	var gotSQL string
	opt := optimizerFunc(func(_ context.Context, sql string) (string, error) {
		gotSQL = sql
		return "SELECT Id FROM Sales WITH (NOLOCK)", nil
	})
	agent := NewOptimizeAgent(opt, Options{})
	queue := &recordingQueue{}

	if err := agent.Execute(context.Background(), newRequest("SELECT * FROM Sales"), queue); err != nil {
		t.Fatal(err)
	}

	want := []step{
		{Kind: "task", State: a2a.TaskStateSubmitted, Text: "SELECT * FROM Sales"},
		{Kind: "status", State: a2a.TaskStateWorking, Text: "Optimizing MS-SQL query..."},
		{Kind: "artifact", Artifact: OptimizedArtifactID, Text: "SELECT Id FROM Sales WITH (NOLOCK)"},
		{Kind: "status", State: a2a.TaskStateCompleted, Final: true, Text: "Optimized MS-SQL query."},
	}
	if diff := cmp.Diff(want, summarize(t, queue.events)); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}
	if gotSQL != "SELECT * FROM Sales" {
		t.Errorf("optimizer got %q", gotSQL)
	}

	art := queue.events[2].(*a2a.TaskArtifactUpdateEvent)
	if art.Artifact.Name != OptimizedArtifactName {
		t.Errorf("artifact name = %q", art.Artifact.Name)
	}
	if art.Append || !art.LastChunk {
		t.Errorf("artifact should be a single final chunk, append=%v lastChunk=%v", art.Append, art.LastChunk)
	}
}

func TestOptimizeAgentNoInput(t *testing.T) {
	agent := NewOptimizeAgent(optimizerFunc(nil), Options{})
	queue := &recordingQueue{}

	if err := agent.Execute(context.Background(), newRequest(""), queue); err != nil {
		t.Fatal(err)
	}
	got := summarize(t, queue.events)
	want := step{Kind: "status", State: a2a.TaskStateFailed, Final: true, Text: "No SQL query provided for optimization."}
	if diff := cmp.Diff(want, got[len(got)-1]); diff != "" {
		t.Errorf("terminal event mismatch (-want +got):\n%s", diff)
	}
}

type emptyProvider struct{}

func (emptyProvider) Complete(context.Context, []llm.Message, llm.Options) (*llm.Response, error) {
	return &llm.Response{Content: ""}, nil
}

func TestOptimizeAgentEmptyModelReply(t *testing.T) {
	agent := NewOptimizeAgent(flow.New(emptyProvider{}, 0), Options{})
	queue := &recordingQueue{}

	if err := agent.Execute(context.Background(), newRequest("SELECT 1"), queue); err != nil {
		t.Fatal(err)
	}
	got := summarize(t, queue.events)
	want := step{Kind: "status", State: a2a.TaskStateFailed, Final: true, Text: "Agent error: failed to optimize SQL query"}
	if diff := cmp.Diff(want, got[len(got)-1]); diff != "" {
		t.Errorf("terminal event mismatch (-want +got):\n%s", diff)
	}
	for _, s := range got {
		if s.Kind == "artifact" {
			t.Error("no artifact may be published for a failed task")
		}
	}
}

func TestExecuteReturnsQueueError(t *testing.T) {
	agent := NewOptimizeAgent(optimizerFunc(nil), Options{})
	queue := &recordingQueue{writeErr: errors.New("queue closed")}

	err := agent.Execute(context.Background(), newRequest("SELECT 1"), queue)
	if err == nil || !strings.Contains(err.Error(), "queue closed") {
		t.Fatalf("expected queue error, got %v", err)
	}
}

func TestPublisherRejectsSecondTerminal(t *testing.T) {
	req := newRequest("x")
	p := &publisher{queue: &recordingQueue{}}

	if err := p.publish(context.Background(), completedStatus(req, "done")); err != nil {
		t.Fatal(err)
	}
	if err := p.publish(context.Background(), failedStatus(req, "late")); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

type recorderFunc func(ctx context.Context, agent string, event a2a.Event) error

func (f recorderFunc) Record(ctx context.Context, agent string, event a2a.Event) error {
	return f(ctx, agent, event)
}

func TestRecorderSeesEveryEvent(t *testing.T) {
	var mu sync.Mutex
	var agents []string
	rec := recorderFunc(func(_ context.Context, agent string, _ a2a.Event) error {
		mu.Lock()
		defer mu.Unlock()
		agents = append(agents, agent)
		return errors.New("disk full")
	})

	gen := generatorFunc(func(context.Context, string) (string, error) { return "SELECT 1", nil })
	agent := newSQLAgent(staticSchema("doc"), gen, Options{Recorder: rec})
	queue := &recordingQueue{}

	if err := agent.Execute(context.Background(), newRequest("x"), queue); err != nil {
		t.Fatalf("recorder failures must not fail the task: %v", err)
	}
	if diff := cmp.Diff([]string{AgentSQL, AgentSQL, AgentSQL}, agents); diff != "" {
		t.Errorf("recorded agents mismatch (-want +got):\n%s", diff)
	}
}

func TestFirstText(t *testing.T) {
	msg := a2a.NewMessage(a2a.MessageRoleUser, &a2a.TextPart{Text: "pointer part"})
	if got, ok := firstText(msg); !ok || got != "pointer part" {
		t.Errorf("firstText() = %q, %v", got, ok)
	}
	if _, ok := firstText(nil); ok {
		t.Error("nil message has no text")
	}
}

func TestLogLinesCarryTaskIdentityOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	opt := optimizerFunc(func(context.Context, string) (string, error) { return "SELECT 1", nil })
	agent := NewOptimizeAgent(opt, Options{Logger: logger})
	if err := agent.Execute(context.Background(), newRequest("SELECT 1"), &recordingQueue{}); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) < 4 {
		t.Fatalf("expected a log line per event, got:\n%s", buf.String())
	}
	for _, line := range lines {
		if n := strings.Count(line, "task_id="); n != 1 {
			t.Errorf("task_id appears %d times in %q", n, line)
		}
		if n := strings.Count(line, "context_id="); n != 1 {
			t.Errorf("context_id appears %d times in %q", n, line)
		}
	}
}
