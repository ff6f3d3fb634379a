package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"satchel/internal/note"
	"satchel/internal/notify"
	"satchel/internal/task"
	"satchel/internal/userfile"
	"satchel/internal/website"
)

// Coordinator applies one client batch atomically. Operations run in
// submitted order and later operations observe earlier ones; conflicts are
// collected without aborting the rest, and the whole batch commits or
// rolls back together.
type Coordinator struct {
	DB       *gorm.DB
	Notifier notify.Publisher
}

func (c *Coordinator) ApplyOperations(ctx context.Context, userID uint64, kind Kind, ops []Operation) (*Result, error) {
	res := &Result{Applied: []Applied{}, Conflicts: []Conflict{}}

	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			now := time.Now()
			var err error
			switch kind {
			case KindNotes:
				err = c.applyNote(tx, userID, op, now, res)
			case KindWebsites:
				err = c.applyWebsite(tx, userID, op, now, res)
			case KindFiles:
				err = c.applyFile(tx, userID, op, now, res)
			case KindTasks:
				err = c.applyTask(tx, userID, op, now, res)
			default:
				err = fmt.Errorf("unknown entity kind %q", kind)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if kind == KindTasks && c.Notifier != nil && taskCountsChanged(res) {
		// fire-and-forget; correctness never waits on the publisher
		go c.Notifier.Publish(context.WithoutCancel(ctx), userID)
	}
	return res, nil
}

func (c *Coordinator) applyNote(tx *gorm.DB, userID uint64, op Operation, now time.Time, res *Result) error {
	var n note.Note
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id=? AND user_id=?", op.ID, userID).First(&n).Error
	missing := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !missing {
		return err
	}

	switch {
	case op.Op == OpAdd:
		if !missing {
			// replayed add: current state, untouched
			res.Applied = append(res.Applied, applied(op, n))
			return nil
		}
		fresh := newNote(userID, op, now)
		if err := tx.Create(fresh).Error; err != nil {
			return err
		}
		res.Applied = append(res.Applied, applied(op, *fresh))
		return nil
	case missing:
		res.Conflicts = append(res.Conflicts, conflict(op, time.Time{}, nil, ReasonMissing))
		return nil
	case stale(op.ClientUpdatedAt, n.UpdatedAt):
		res.Conflicts = append(res.Conflicts, conflict(op, n.UpdatedAt, n, ReasonStaleWrite))
		return nil
	}

	if op.Op == OpPin || op.Op == OpUnpin {
		return c.pinNote(tx, userID, &n, op, now, res)
	}

	if err := mutateNote(&n, op, now); err != nil {
		return err
	}
	if err := tx.Save(&n).Error; err != nil {
		return err
	}
	res.Applied = append(res.Applied, applied(op, n))
	return nil
}

func (c *Coordinator) pinNote(tx *gorm.DB, userID uint64, n *note.Note, op Operation, now time.Time, res *Result) error {
	if op.Op == OpUnpin {
		n.Pinned = false
		n.PinnedOrder = nil
		n.UpdatedAt = now
		if err := tx.Save(n).Error; err != nil {
			return err
		}
		res.Applied = append(res.Applied, applied(op, *n))
		return nil
	}

	return WithPinnedOrderLock(tx, userID, "note_pin", func() error {
		order, err := nextPinOrder(tx, userID)
		if err != nil {
			return err
		}
		n.Pinned = true
		n.PinnedOrder = &order
		n.UpdatedAt = now
		if err := tx.Save(n).Error; err != nil {
			return err
		}
		res.Applied = append(res.Applied, applied(op, *n))
		return nil
	})
}

// nextPinOrder reads the current maximum under the advisory lock and
// assigns the next integer.
func nextPinOrder(tx *gorm.DB, userID uint64) (int, error) {
	var maxOrder int
	err := tx.Raw(`select coalesce(max(pinned_order), 0) from notes where user_id=? and deleted_at is null`, userID).
		Scan(&maxOrder).Error
	if err != nil {
		return 0, err
	}
	return maxOrder + 1, nil
}

func (c *Coordinator) applyWebsite(tx *gorm.DB, userID uint64, op Operation, now time.Time, res *Result) error {
	var w website.Website
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id=? AND user_id=?", op.ID, userID).First(&w).Error
	missing := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !missing {
		return err
	}

	switch {
	case op.Op == OpAdd:
		if !missing {
			res.Applied = append(res.Applied, applied(op, w))
			return nil
		}
		fresh := newWebsite(userID, op, now)
		if err := tx.Create(fresh).Error; err != nil {
			return err
		}
		res.Applied = append(res.Applied, applied(op, *fresh))
		return nil
	case missing:
		res.Conflicts = append(res.Conflicts, conflict(op, time.Time{}, nil, ReasonMissing))
		return nil
	case stale(op.ClientUpdatedAt, w.UpdatedAt):
		res.Conflicts = append(res.Conflicts, conflict(op, w.UpdatedAt, w, ReasonStaleWrite))
		return nil
	}

	if err := mutateWebsite(&w, op, now); err != nil {
		return err
	}
	if err := tx.Save(&w).Error; err != nil {
		return err
	}
	res.Applied = append(res.Applied, applied(op, w))
	return nil
}

func (c *Coordinator) applyFile(tx *gorm.DB, userID uint64, op Operation, now time.Time, res *Result) error {
	var f userfile.File
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id=? AND user_id=?", op.ID, userID).First(&f).Error
	missing := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !missing {
		return err
	}

	switch {
	case missing:
		res.Conflicts = append(res.Conflicts, conflict(op, time.Time{}, nil, ReasonMissing))
		return nil
	case stale(op.ClientUpdatedAt, f.UpdatedAt):
		res.Conflicts = append(res.Conflicts, conflict(op, f.UpdatedAt, f, ReasonStaleWrite))
		return nil
	}

	if err := mutateFile(&f, op, now); err != nil {
		return err
	}
	if err := tx.Save(&f).Error; err != nil {
		return err
	}
	res.Applied = append(res.Applied, applied(op, f))
	return nil
}

// completeOutcome is what a task complete records and replays: the
// completed instance and, for a repeating series, the spawned next one.
type completeOutcome struct {
	Completed *task.Task `json:"completed"`
	Next      *task.Task `json:"next,omitempty"`
}

func (c *Coordinator) applyTask(tx *gorm.DB, userID uint64, op Operation, now time.Time, res *Result) error {
	// Replays short-circuit before anything is touched: a retransmitted
	// batch after a dropped response re-reads the recorded outcome.
	if op.OperationID != "" {
		entry, err := task.LookupOperation(tx, userID, op.OperationID)
		if err != nil {
			return err
		}
		if entry != nil {
			res.Applied = append(res.Applied, Applied{
				OperationID: op.OperationID,
				Op:          entry.OperationType,
				ID:          op.ID,
				Entity:      json.RawMessage(entry.Payload),
			})
			return nil
		}
	}

	var t task.Task
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id=? AND user_id=?", op.ID, userID).First(&t).Error
	missing := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !missing {
		return err
	}

	var outcome any
	switch {
	case op.Op == OpAdd:
		if !missing {
			res.Applied = append(res.Applied, applied(op, t))
			return nil
		}
		fresh := newTask(userID, op, now)
		if err := tx.Create(fresh).Error; err != nil {
			return err
		}
		outcome = *fresh
	case missing:
		res.Conflicts = append(res.Conflicts, conflict(op, time.Time{}, nil, ReasonMissing))
		return nil
	case stale(op.ClientUpdatedAt, t.UpdatedAt):
		res.Conflicts = append(res.Conflicts, conflict(op, t.UpdatedAt, t, ReasonStaleWrite))
		return nil
	case op.Op == OpComplete && t.RepeatTemplate:
		// the series root is never completed, only its dated instances
		res.Conflicts = append(res.Conflicts, conflict(op, t.UpdatedAt, t, ReasonNotAllowed))
		return nil
	case op.Op == OpComplete:
		out, err := c.completeTask(tx, &t, now)
		if err != nil {
			return err
		}
		outcome = out
	default:
		if err := mutateTask(&t, op, now); err != nil {
			return err
		}
		if err := tx.Save(&t).Error; err != nil {
			return err
		}
		outcome = t
	}

	if op.OperationID != "" {
		if err := task.RecordOperation(tx, userID, op.OperationID, op.Op, outcome); err != nil {
			return err
		}
	}
	res.Applied = append(res.Applied, Applied{OperationID: op.OperationID, Op: op.Op, ID: op.ID, Entity: outcome})
	return nil
}

func (c *Coordinator) completeTask(tx *gorm.DB, t *task.Task, now time.Time) (completeOutcome, error) {
	if t.Repeating && !t.RepeatTemplate {
		next, err := task.CompleteRepeating(tx, t, now)
		if err == nil {
			return completeOutcome{Completed: t, Next: next}, nil
		}
		if !errors.Is(err, task.ErrNotRepeating) {
			return completeOutcome{}, err
		}
		// undecodable rule: degrade to a plain completion
	}

	if t.CompletedAt == nil {
		t.CompletedAt = &now
		t.UpdatedAt = now
		if err := tx.Save(t).Error; err != nil {
			return completeOutcome{}, err
		}
	}
	return completeOutcome{Completed: t}, nil
}

func applied(op Operation, entity any) Applied {
	return Applied{OperationID: op.OperationID, Op: op.Op, ID: op.ID, Entity: entity}
}

func taskCountsChanged(res *Result) bool {
	for _, a := range res.Applied {
		switch a.Op {
		case OpAdd, OpDelete, OpTrash, OpComplete:
			return true
		}
	}
	return false
}
