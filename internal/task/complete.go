package task

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"satchel/internal/recurrence"
)

var ErrNotRepeating = errors.New("task is not repeating")

// CompleteRepeating completes one instance of a repeating task and creates
// the next one, exactly once no matter how many times it is invoked. It
// runs inside the caller's transaction.
//
// The flow: derive the next deadline from the instance's deadline and the
// rule, look for an already-spawned non-deleted instance at (template,
// deadline), mark the current instance completed, and insert the next one
// only if the lookup came up empty. The partial unique index on
// (repeat_template_id, deadline) is the last line of defense when two
// callers race past the lookup.
func CompleteRepeating(tx *gorm.DB, t *Task, now time.Time) (*Task, error) {
	rule, ok := decodeRule(t.RecurrenceRule)
	if !t.Repeating || !ok {
		return nil, ErrNotRepeating
	}

	templateID := t.ID
	if t.RepeatTemplateID != nil {
		templateID = *t.RepeatTemplateID
	}

	nextDeadline, hasNext := rule.Next(completionAnchor(t, rule, now))

	if hasNext {
		if existing, err := findInstance(tx, t.UserID, templateID, t.ID, nextDeadline); err != nil {
			return nil, err
		} else if existing != nil {
			// replayed completion: the next instance is already there, but
			// the current one must still end up completed
			if err := markCompleted(tx, t, now); err != nil {
				return nil, err
			}
			return existing, nil
		}
	}

	if err := markCompleted(tx, t, now); err != nil {
		return nil, err
	}
	if !hasNext {
		// series ended; nothing left to spawn
		return nil, nil
	}

	next := &Task{
		ID:               uuid.NewString(),
		UserID:           t.UserID,
		Title:            t.Title,
		Notes:            t.Notes,
		Project:          t.Project,
		Deadline:         &nextDeadline,
		Repeating:        true,
		RepeatTemplateID: &templateID,
		RecurrenceRule:   t.RecurrenceRule,
		NextInstanceDate: &nextDeadline,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.Create(next).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost the race; the winner's row is the next instance
			return findInstance(tx, t.UserID, templateID, t.ID, nextDeadline)
		}
		return nil, err
	}
	return next, nil
}

// completionAnchor picks the date the next deadline is computed from. The
// instance's own deadline wins so each completion moves the series forward;
// the rule's static anchor only seeds an instance that never had one.
func completionAnchor(t *Task, rule recurrence.Rule, now time.Time) time.Time {
	if t.Deadline != nil {
		return *t.Deadline
	}
	if rule.AnchorDate != nil {
		return *rule.AnchorDate
	}
	return now
}

func markCompleted(tx *gorm.DB, t *Task, now time.Time) error {
	if t.CompletedAt != nil {
		return nil
	}
	t.CompletedAt = &now
	t.UpdatedAt = now
	return tx.Model(&Task{}).
		Where("id=? AND user_id=?", t.ID, t.UserID).
		Updates(map[string]any{"completed_at": now, "updated_at": now}).Error
}

// findInstance looks up an already-spawned next instance. The row being
// completed is excluded: an anchored series can compute a next deadline
// equal to the current instance's own, and matching ourselves would turn
// the completion into a no-op.
func findInstance(tx *gorm.DB, userID uint64, templateID, currentID string, deadline time.Time) (*Task, error) {
	var existing Task
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id=? AND repeat_template_id=? AND deadline=? AND id<>? AND deleted_at IS NULL",
			userID, templateID, deadline, currentID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

// decodeRule accepts both the canonical wire shape and legacy imported
// payloads (numeric vendor type codes).
func decodeRule(raw []byte) (recurrence.Rule, bool) {
	if len(raw) == 0 {
		return recurrence.Rule{}, false
	}
	if r, ok := recurrence.DecodeLegacy(raw); ok {
		return r, true
	}
	var r recurrence.Rule
	if err := json.Unmarshal(raw, &r); err != nil || !r.Valid() {
		return recurrence.Rule{}, false
	}
	return r, true
}
