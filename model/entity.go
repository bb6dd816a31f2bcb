package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType tags every synced catalog record.
type EntityType string

const (
	EntityEmployee  EntityType = "EMPLOYEE"
	EntityChannel   EntityType = "CHANNEL"
	EntityProgram   EntityType = "PROGRAM"
	EntityBroadcast EntityType = "BROADCAST"
	EntitySetting   EntityType = "SETTING"
)

// SyncOrder is the fixed priority order of a full synchronization sweep.
// Referenced types load first so relation wiring finds its targets.
var SyncOrder = []EntityType{
	EntityEmployee,
	EntityChannel,
	EntityProgram,
	EntityBroadcast,
	EntitySetting,
}

// Entity is anything with a stable integer identity and a type tag.
type Entity interface {
	EntityID() int64
	EntityType() EntityType
}

// MetaData carries the server-authoritative timestamps of a synced record.
// DeletedAt != nil marks a tombstone: the record is removed locally, never upserted.
type MetaData struct {
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Tombstoned reports whether the record must be deleted locally.
func (m MetaData) Tombstoned() bool {
	return m.DeletedAt != nil
}

// OpKind is the kind of change the catalog store reports after a batch write.
type OpKind int

const (
	OpUpsert OpKind = iota
	OpDelete
)

func (k OpKind) String() string {
	if k == OpDelete {
		return "delete"
	}
	return "upsert"
}

// Operation is the unit of change in a Loaded event.
type Operation struct {
	ID   int64
	Type EntityType
	Kind OpKind
}

// DecodeEntity unmarshals a wire node into the concrete entity for the
// given type. An unmapped type is a schema mismatch and fails fast.
func DecodeEntity(t EntityType, data []byte) (Entity, error) {
	switch t {
	case EntityEmployee:
		var e Employee
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode employee: %w", err)
		}
		return &e, nil
	case EntityChannel:
		var c Channel
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode channel: %w", err)
		}
		return &c, nil
	case EntityProgram:
		var p Program
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode program: %w", err)
		}
		return &p, nil
	case EntityBroadcast:
		var b Broadcast
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decode broadcast: %w", err)
		}
		return &b, nil
	case EntitySetting:
		var s Setting
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode setting: %w", err)
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("unmapped entity type %q", t)
	}
}
