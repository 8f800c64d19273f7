package journal

import (
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
)

// FromEvent flattens a task event into an Entry. ok is false for events that
// are not tied to a task.
func FromEvent(event a2a.Event) (entry Entry, ok bool) {
	switch ev := event.(type) {
	case *a2a.Task:
		e := Entry{Kind: "task", TaskID: ev.ID, ContextID: ev.ContextID, State: ev.Status.State}
		if len(ev.History) > 0 {
			e.Text = partsText(ev.History[0].Parts)
		}
		e.At = statusTime(ev.Status)
		return e, true
	case *a2a.TaskStatusUpdateEvent:
		e := Entry{Kind: "status", TaskID: ev.TaskID, ContextID: ev.ContextID, State: ev.Status.State, Final: ev.Final}
		if ev.Status.Message != nil {
			e.Text = partsText(ev.Status.Message.Parts)
		}
		e.At = statusTime(ev.Status)
		return e, true
	case *a2a.TaskArtifactUpdateEvent:
		e := Entry{Kind: "artifact", TaskID: ev.TaskID, ContextID: ev.ContextID}
		if ev.Artifact != nil {
			e.Artifact = ev.Artifact.Name
			e.Text = partsText(ev.Artifact.Parts)
		}
		return e, true
	case *a2a.Message:
		if ev.TaskID == "" {
			return Entry{}, false
		}
		return Entry{Kind: "message", TaskID: ev.TaskID, ContextID: ev.ContextID, Text: partsText(ev.Parts)}, true
	default:
		return Entry{}, false
	}
}

func statusTime(s a2a.TaskStatus) time.Time {
	if s.Timestamp != nil {
		return s.Timestamp.UTC()
	}
	return time.Time{}
}

func partsText(parts []a2a.Part) string {
	var texts []string
	for _, part := range parts {
		switch p := part.(type) {
		case a2a.TextPart:
			texts = append(texts, p.Text)
		case *a2a.TextPart:
			if p != nil {
				texts = append(texts, p.Text)
			}
		}
	}
	return strings.Join(texts, "\n")
}
