package task

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// OperationLogEntry records the first successful application of a
// client-submitted task operation. The (user_id, operation_id) unique index
// is what makes batch retransmission after a dropped response harmless.
type OperationLogEntry struct {
	ID     uint64 `gorm:"primaryKey"`
	UserID uint64 `gorm:"not null;uniqueIndex:uq_oplog_user_op"`

	OperationID   string          `gorm:"type:text;not null;uniqueIndex:uq_oplog_user_op"`
	OperationType string          `gorm:"type:text;not null"`
	Payload       json.RawMessage `gorm:"type:jsonb;not null;default:'{}'::jsonb"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

// LookupOperation returns the recorded outcome for (userID, operationID),
// or nil when the operation has never been applied.
func LookupOperation(tx *gorm.DB, userID uint64, operationID string) (*OperationLogEntry, error) {
	var e OperationLogEntry
	err := tx.Where("user_id=? AND operation_id=?", userID, operationID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// RecordOperation writes the outcome of a freshly applied operation.
func RecordOperation(tx *gorm.DB, userID uint64, operationID, operationType string, outcome any) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return tx.Create(&OperationLogEntry{
		UserID:        userID,
		OperationID:   operationID,
		OperationType: operationType,
		Payload:       payload,
	}).Error
}
