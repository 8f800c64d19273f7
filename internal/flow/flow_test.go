package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/user/sqlagents/pkg/llm"
)

type mockProvider struct {
	completeFunc func(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error)
}

func (m *mockProvider) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	return m.completeFunc(ctx, messages, opts)
}

func TestGenerateQueryPassthrough(t *testing.T) {
	var gotMessages []llm.Message
	var gotOpts llm.Options
	p := &mockProvider{completeFunc: func(_ context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
		gotMessages, gotOpts = messages, opts
		return &llm.Response{Content: "SELECT * FROM Sales"}, nil
	}}

	out, err := New(p, 0).GenerateQuery(context.Background(), "full prompt text")
	if err != nil {
		t.Fatal(err)
	}
	if out != "SELECT * FROM Sales" {
		t.Errorf("expected raw model text, got %q", out)
	}
	if len(gotMessages) != 1 || gotMessages[0].Role != llm.RoleUser || gotMessages[0].Content != "full prompt text" {
		t.Errorf("expected the prompt as a single user message, got %+v", gotMessages)
	}
	if gotOpts.Temperature != nil {
		t.Errorf("generate should use the provider default temperature, got %v", *gotOpts.Temperature)
	}
}

func TestGenerateQueryDoesNotValidate(t *testing.T) {
	p := &mockProvider{completeFunc: func(context.Context, []llm.Message, llm.Options) (*llm.Response, error) {
		return &llm.Response{Content: "Sure! Here is your query."}, nil
	}}

	out, err := New(p, 0).GenerateQuery(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Sure! Here is your query." {
		t.Errorf("got %q", out)
	}
}

func TestGenerateQueryError(t *testing.T) {
	p := &mockProvider{completeFunc: func(context.Context, []llm.Message, llm.Options) (*llm.Response, error) {
		return nil, errors.New("connection refused")
	}}

	_, err := New(p, 0).GenerateQuery(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestOptimizeQuery(t *testing.T) {
	var gotMessages []llm.Message
	var gotOpts llm.Options
	p := &mockProvider{completeFunc: func(_ context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
		gotMessages, gotOpts = messages, opts
		return &llm.Response{Content: "SELECT Id, Amount FROM Sales"}, nil
	}}

	out, err := New(p, 0).OptimizeQuery(context.Background(), "SELECT * FROM Sales")
	if err != nil {
		t.Fatal(err)
	}
	if out != "SELECT Id, Amount FROM Sales" {
		t.Errorf("got %q", out)
	}
	if gotOpts.Temperature == nil || *gotOpts.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", gotOpts.Temperature)
	}
	if len(gotMessages) != 1 || !strings.HasSuffix(gotMessages[0].Content, "and nothing else: SELECT * FROM Sales") {
		t.Errorf("unexpected optimize prompt: %+v", gotMessages)
	}
}

func TestOptimizeQueryEmptyReply(t *testing.T) {
	p := &mockProvider{completeFunc: func(context.Context, []llm.Message, llm.Options) (*llm.Response, error) {
		return &llm.Response{Content: ""}, nil
	}}

	_, err := New(p, 0).OptimizeQuery(context.Background(), "SELECT 1")
	if !errors.Is(err, ErrEmptyOptimization) {
		t.Fatalf("expected ErrEmptyOptimization, got %v", err)
	}
}

func TestOptimizeQueryCustomTemperature(t *testing.T) {
	p := &mockProvider{completeFunc: func(_ context.Context, _ []llm.Message, opts llm.Options) (*llm.Response, error) {
		if opts.Temperature == nil || *opts.Temperature != 0.1 {
			t.Errorf("expected temperature 0.1, got %v", opts.Temperature)
		}
		return &llm.Response{Content: "SELECT 1"}, nil
	}}

	if _, err := New(p, 0.1).OptimizeQuery(context.Background(), "SELECT 1"); err != nil {
		t.Fatal(err)
	}
}
