package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
)

// ErrAlreadyTerminal is returned when an event is published after the task's
// terminal status.
var ErrAlreadyTerminal = errors.New("task already has a terminal status")

func agentMessage(info a2a.TaskInfoProvider, text string) *a2a.Message {
	msg := a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: text})
	ti := info.TaskInfo()
	msg.TaskID = ti.TaskID
	msg.ContextID = ti.ContextID
	return msg
}

// submittedTask is the first event of a new task; its history holds the
// triggering message.
func submittedTask(reqCtx *a2asrv.RequestContext) *a2a.Task {
	return a2a.NewSubmittedTask(reqCtx, reqCtx.Message)
}

func workingStatus(info a2a.TaskInfoProvider, text string) *a2a.TaskStatusUpdateEvent {
	return a2a.NewStatusUpdateEvent(info, a2a.TaskStateWorking, agentMessage(info, text))
}

func terminalStatus(info a2a.TaskInfoProvider, state a2a.TaskState, text string) *a2a.TaskStatusUpdateEvent {
	var msg *a2a.Message
	if text != "" {
		msg = agentMessage(info, text)
	}
	ev := a2a.NewStatusUpdateEvent(info, state, msg)
	ev.Final = true
	return ev
}

func completedStatus(info a2a.TaskInfoProvider, text string) *a2a.TaskStatusUpdateEvent {
	return terminalStatus(info, a2a.TaskStateCompleted, text)
}

func failedStatus(info a2a.TaskInfoProvider, text string) *a2a.TaskStatusUpdateEvent {
	return terminalStatus(info, a2a.TaskStateFailed, text)
}

// canceledStatus carries no message; the computed result is discarded.
func canceledStatus(info a2a.TaskInfoProvider) *a2a.TaskStatusUpdateEvent {
	return terminalStatus(info, a2a.TaskStateCanceled, "")
}

// artifactUpdate publishes text as a complete, non-appended file artifact.
func artifactUpdate(info a2a.TaskInfoProvider, id a2a.ArtifactID, name, text string) *a2a.TaskArtifactUpdateEvent {
	ti := info.TaskInfo()
	return &a2a.TaskArtifactUpdateEvent{
		TaskID:    ti.TaskID,
		ContextID: ti.ContextID,
		Artifact: &a2a.Artifact{
			ID:    id,
			Name:  name,
			Parts: []a2a.Part{a2a.TextPart{Text: text}},
		},
		Append:    false,
		LastChunk: true,
	}
}

// publisher writes one task's events and refuses anything after the first
// terminal status.
type publisher struct {
	queue    eventqueue.Queue
	terminal bool
}

func (p *publisher) publish(ctx context.Context, event a2a.Event) error {
	if p.terminal {
		return ErrAlreadyTerminal
	}
	if err := p.queue.Write(ctx, event); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if su, ok := event.(*a2a.TaskStatusUpdateEvent); ok && su.Final {
		p.terminal = true
	}
	return nil
}

// firstText returns the text of the first text part in msg. ok is false when
// msg has no text part at all.
func firstText(msg *a2a.Message) (text string, ok bool) {
	if msg == nil {
		return "", false
	}
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case a2a.TextPart:
			return p.Text, true
		case *a2a.TextPart:
			if p != nil {
				return p.Text, true
			}
		}
	}
	return "", false
}
