package batch

import (
	"time"

	"github.com/google/uuid"
)

type InputStatus int

const (
	InputStatusReady InputStatus = iota
	InputStatusAssigned
	InputStatusProcessed
)

func (s InputStatus) String() string {
	switch s {
	case InputStatusReady:
		return "ready"
	case InputStatusAssigned:
		return "assigned"
	case InputStatusProcessed:
		return "processed"
	default:
		return "unknown"
	}
}

// Input is a unit of work handed out to lab clients.
//
// A Ready input has no assignee and no batch label; Assigned and Processed
// inputs always carry the client that leased them.
type Input struct {
	ID               int64       `gorm:"primaryKey;autoIncrement;column:id" json:"inputId"`
	Status           InputStatus `gorm:"not null;default:0;column:status" json:"status"`
	BatchLabel       *uuid.UUID  `gorm:"type:uuid;index;column:batch_label" json:"batchId,omitempty"`
	AssignedClientID *int64      `gorm:"index;column:assigned_client_id" json:"-"`
	StorageKey       string      `gorm:"not null;size:1024;column:storage_key" json:"-"`

	// StorageURI is resolved per response from StorageKey and never persisted.
	StorageURI string `gorm:"-" json:"storageUri"`

	CreatedAt time.Time `gorm:"not null;column:created_on" json:"createdOn"`
	UpdatedAt time.Time `gorm:"not null;column:modified_on" json:"modifiedOn"`
}

func (Input) TableName() string { return "inputs" }

// IsAssignedTo reports whether the input is currently owned by clientID.
func (i *Input) IsAssignedTo(clientID int64) bool {
	return i != nil && i.AssignedClientID != nil && *i.AssignedClientID == clientID
}
