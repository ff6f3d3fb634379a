package sync

import (
	"testing"
	"time"

	"satchel/internal/note"
	"satchel/internal/task"
	"satchel/internal/userfile"
)

func strp(s string) *string { return &s }
func intp(n int) *int       { return &n }

func TestStale(t *testing.T) {
	server := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	older := server.Add(-time.Minute)
	newer := server.Add(time.Minute)

	tests := []struct {
		name   string
		client *time.Time
		want   bool
	}{
		{"client older than server", &older, true},
		{"client equal to server", &server, false},
		{"client newer than server", &newer, false},
		{"client sent no timestamp", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stale(tt.client, server); got != tt.want {
				t.Errorf("stale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMutateNote(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	t.Run("update retags from body", func(t *testing.T) {
		n := &note.Note{Title: "old", Body: "old", Tags: []string{"old"}}
		op := Operation{Op: OpUpdate, Body: strp("groceries #errands #home")}
		if err := mutateNote(n, op, now); err != nil {
			t.Fatal(err)
		}
		if n.Title != "old" {
			t.Errorf("title changed without a title field")
		}
		if len(n.Tags) != 2 || n.Tags[0] != "errands" || n.Tags[1] != "home" {
			t.Errorf("tags = %v", n.Tags)
		}
		if !n.UpdatedAt.Equal(now) {
			t.Errorf("updated_at not bumped")
		}
	})

	t.Run("rename requires a title", func(t *testing.T) {
		if err := mutateNote(&note.Note{}, Operation{Op: OpRename}, now); err == nil {
			t.Error("rename without title should fail")
		}
	})

	t.Run("delete clears the pin", func(t *testing.T) {
		order := 3
		n := &note.Note{Pinned: true, PinnedOrder: &order}
		if err := mutateNote(n, Operation{Op: OpDelete}, now); err != nil {
			t.Fatal(err)
		}
		if n.DeletedAt == nil || n.Pinned || n.PinnedOrder != nil {
			t.Errorf("delete left pin state: %+v", n)
		}
	})

	t.Run("unknown op", func(t *testing.T) {
		if err := mutateNote(&note.Note{}, Operation{Op: "teleport"}, now); err == nil {
			t.Error("unknown op should fail")
		}
	})
}

func TestMutateTask(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	deadline := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)

	t.Run("defer by days", func(t *testing.T) {
		tk := &task.Task{Deadline: &deadline}
		if err := mutateTask(tk, Operation{Op: OpDefer, DeferDays: intp(3)}, now); err != nil {
			t.Fatal(err)
		}
		if want := deadline.AddDate(0, 0, 3); !tk.Deadline.Equal(want) {
			t.Errorf("deadline = %v, want %v", tk.Deadline, want)
		}
	})

	t.Run("defer to explicit date", func(t *testing.T) {
		target := deadline.AddDate(0, 1, 0)
		tk := &task.Task{}
		if err := mutateTask(tk, Operation{Op: OpDefer, Deadline: &target}, now); err != nil {
			t.Fatal(err)
		}
		if !tk.Deadline.Equal(target) {
			t.Errorf("deadline = %v, want %v", tk.Deadline, target)
		}
	})

	t.Run("defer needs a target", func(t *testing.T) {
		if err := mutateTask(&task.Task{}, Operation{Op: OpDefer}, now); err == nil {
			t.Error("defer without days or deadline should fail")
		}
	})

	t.Run("clear_due", func(t *testing.T) {
		tk := &task.Task{Deadline: &deadline}
		if err := mutateTask(tk, Operation{Op: OpClearDue}, now); err != nil {
			t.Fatal(err)
		}
		if tk.Deadline != nil {
			t.Error("deadline not cleared")
		}
	})

	t.Run("update with a rule makes the task repeating", func(t *testing.T) {
		tk := &task.Task{}
		op := Operation{Op: OpUpdate, RecurrenceRule: []byte(`{"type":"daily","interval":1}`)}
		if err := mutateTask(tk, op, now); err != nil {
			t.Fatal(err)
		}
		if !tk.Repeating {
			t.Error("task not marked repeating")
		}
	})
}

func TestMutateFile(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	f := &userfile.File{Name: "a.pdf"}
	if err := mutateFile(f, Operation{Op: OpRename, Name: strp("b.pdf")}, now); err != nil {
		t.Fatal(err)
	}
	if f.Name != "b.pdf" {
		t.Errorf("name = %q", f.Name)
	}

	if err := mutateFile(f, Operation{Op: OpUpdate}, now); err == nil {
		t.Error("files do not support update")
	}
}

func TestPinLockKey(t *testing.T) {
	a := pinLockKey("note_pin", 7)
	if b := pinLockKey("note_pin", 7); a != b {
		t.Error("key not deterministic")
	}
	if b := pinLockKey("note_pin", 8); a == b {
		t.Error("key ignores user")
	}
	if b := pinLockKey("site_pin", 7); a == b {
		t.Error("key ignores scope")
	}
}

func TestTaskCountsChanged(t *testing.T) {
	res := &Result{Applied: []Applied{{Op: OpRename}, {Op: OpUpdate}}}
	if taskCountsChanged(res) {
		t.Error("rename/update should not trigger a notification")
	}
	res.Applied = append(res.Applied, Applied{Op: OpComplete})
	if !taskCountsChanged(res) {
		t.Error("complete should trigger a notification")
	}
}
