// Package sync applies batches of client-submitted operations against
// notes, websites, files, and tasks, detecting stale writes instead of
// blocking concurrent writers.
package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"satchel/internal/note"
	"satchel/internal/task"
	"satchel/internal/userfile"
	"satchel/internal/website"
)

type Kind string

const (
	KindNotes    Kind = "notes"
	KindWebsites Kind = "websites"
	KindFiles    Kind = "files"
	KindTasks    Kind = "tasks"
)

// ParseKind validates a kind coming off the wire.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindNotes, KindWebsites, KindFiles, KindTasks:
		return k, true
	}
	return "", false
}

const (
	OpAdd      = "add"
	OpUpdate   = "update"
	OpRename   = "rename"
	OpDelete   = "delete"
	OpTrash    = "trash"
	OpPin      = "pin"
	OpUnpin    = "unpin"
	OpComplete = "complete"
	OpDefer    = "defer"
	OpClearDue = "clear_due"
)

// Operation is one client-submitted mutation. OperationID is the
// client-generated idempotency key; ClientUpdatedAt is the entity
// timestamp the client last saw.
type Operation struct {
	OperationID string `json:"operation_id"`
	Op          string `json:"op"`
	ID          string `json:"id"`

	Title   *string  `json:"title,omitempty"`
	Body    *string  `json:"body,omitempty"`
	URL     *string  `json:"url,omitempty"`
	Excerpt *string  `json:"excerpt,omitempty"`
	Name    *string  `json:"name,omitempty"`
	Notes   *string  `json:"notes,omitempty"`
	Project *string  `json:"project,omitempty"`
	Tags    []string `json:"tags,omitempty"`

	Deadline       *time.Time      `json:"deadline,omitempty"`
	DeferDays      *int            `json:"defer_days,omitempty"`
	RecurrenceRule json.RawMessage `json:"recurrence_rule,omitempty"`

	ClientUpdatedAt *time.Time `json:"client_updated_at,omitempty"`
}

func unknownOp(kind Kind, op Operation) error {
	return fmt.Errorf("unknown %s operation %q", kind, op.Op)
}

// The mutate helpers below apply an operation to an in-memory row. They
// carry no storage concerns, so the full mutation matrix is unit-testable.

func mutateNote(n *note.Note, op Operation, now time.Time) error {
	switch op.Op {
	case OpUpdate:
		if op.Title != nil {
			n.Title = *op.Title
		}
		if op.Body != nil {
			n.Body = *op.Body
			n.Tags = note.ExtractTags(*op.Body)
		}
	case OpRename:
		if op.Title == nil {
			return fmt.Errorf("rename without title")
		}
		n.Title = *op.Title
	case OpDelete, OpTrash:
		n.DeletedAt = &now
		n.Pinned = false
		n.PinnedOrder = nil
	default:
		return unknownOp(KindNotes, op)
	}
	n.UpdatedAt = now
	return nil
}

func mutateWebsite(w *website.Website, op Operation, now time.Time) error {
	switch op.Op {
	case OpUpdate:
		if op.URL != nil {
			w.URL = *op.URL
		}
		if op.Title != nil {
			w.Title = *op.Title
		}
		if op.Excerpt != nil {
			w.Excerpt = *op.Excerpt
		}
		if op.Tags != nil {
			w.Tags = op.Tags
		}
	case OpRename:
		if op.Title == nil {
			return fmt.Errorf("rename without title")
		}
		w.Title = *op.Title
	case OpDelete, OpTrash:
		w.DeletedAt = &now
	default:
		return unknownOp(KindWebsites, op)
	}
	w.UpdatedAt = now
	return nil
}

func mutateFile(f *userfile.File, op Operation, now time.Time) error {
	switch op.Op {
	case OpRename:
		if op.Name == nil {
			return fmt.Errorf("rename without name")
		}
		f.Name = *op.Name
	case OpDelete, OpTrash:
		f.DeletedAt = &now
	default:
		return unknownOp(KindFiles, op)
	}
	f.UpdatedAt = now
	return nil
}

// mutateTask handles every task op except complete, which needs the
// recurrence engine and storage and lives on the coordinator.
func mutateTask(t *task.Task, op Operation, now time.Time) error {
	switch op.Op {
	case OpUpdate:
		if op.Title != nil {
			t.Title = *op.Title
		}
		if op.Notes != nil {
			t.Notes = *op.Notes
		}
		if op.Project != nil {
			t.Project = *op.Project
		}
		if op.Deadline != nil {
			t.Deadline = op.Deadline
		}
		if op.RecurrenceRule != nil {
			t.RecurrenceRule = op.RecurrenceRule
			t.Repeating = true
		}
	case OpRename:
		if op.Title == nil {
			return fmt.Errorf("rename without title")
		}
		t.Title = *op.Title
	case OpDefer:
		switch {
		case op.DeferDays != nil && t.Deadline != nil:
			d := t.Deadline.AddDate(0, 0, *op.DeferDays)
			t.Deadline = &d
		case op.Deadline != nil:
			t.Deadline = op.Deadline
		default:
			return fmt.Errorf("defer without defer_days or deadline")
		}
	case OpClearDue:
		t.Deadline = nil
	case OpDelete, OpTrash:
		t.DeletedAt = &now
	default:
		return unknownOp(KindTasks, op)
	}
	t.UpdatedAt = now
	return nil
}

func newNote(userID uint64, op Operation, now time.Time) *note.Note {
	n := &note.Note{ID: op.ID, UserID: userID, CreatedAt: now, UpdatedAt: now, Tags: []string{}}
	if op.Title != nil {
		n.Title = *op.Title
	}
	if op.Body != nil {
		n.Body = *op.Body
		n.Tags = note.ExtractTags(*op.Body)
	}
	return n
}

func newWebsite(userID uint64, op Operation, now time.Time) *website.Website {
	w := &website.Website{ID: op.ID, UserID: userID, CreatedAt: now, UpdatedAt: now, Tags: []string{}}
	if op.URL != nil {
		w.URL = *op.URL
	}
	if op.Title != nil {
		w.Title = *op.Title
	}
	if op.Excerpt != nil {
		w.Excerpt = *op.Excerpt
	}
	if op.Tags != nil {
		w.Tags = op.Tags
	}
	return w
}

func newTask(userID uint64, op Operation, now time.Time) *task.Task {
	t := &task.Task{ID: op.ID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	if op.Title != nil {
		t.Title = *op.Title
	}
	if op.Notes != nil {
		t.Notes = *op.Notes
	}
	if op.Project != nil {
		t.Project = *op.Project
	}
	if op.Deadline != nil {
		t.Deadline = op.Deadline
	}
	if op.RecurrenceRule != nil {
		t.RecurrenceRule = op.RecurrenceRule
		t.Repeating = true
	}
	return t
}
