// Package graph implements the catalog wire protocol: JSON messages over a
// persistent duplex channel, correlated request/response pairs, cursor
// pagination and live subscription updates.
package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"AuraFM/model"

	"github.com/google/uuid"
)

// MessageType is the outer tag; every catalog message carries "graph".
const MessageType = "graph"

// Subtype discriminates catalog messages.
type Subtype string

const (
	SubtypeRequest              Subtype = "request"
	SubtypeRequestResponse      Subtype = "request_response"
	SubtypeSubscription         Subtype = "subscription"
	SubtypeSubscriptionResponse Subtype = "subscription_response"
	SubtypeSubscriptionUpdate   Subtype = "subscription_update"
	SubtypeCommand              Subtype = "command"
	SubtypeCommandResponse      Subtype = "command_response"
)

// Envelope is the outer frame of every catalog message.
type Envelope struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Subtype      Subtype         `json:"subtype"`
	RespondingTo string          `json:"respondingToMessageId,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Variables are the arguments of a catalog query.
type Variables struct {
	NodeQuery      map[string]any `json:"nodeQuery,omitempty"`
	MetaDataQuery  map[string]any `json:"metaDataQuery,omitempty"`
	First          *int           `json:"first,omitempty"`
	After          *string        `json:"after,omitempty"`
	Last           *int           `json:"last,omitempty"`
	Before         *string        `json:"before,omitempty"`
	IncludeDeleted bool           `json:"includeDeleted,omitempty"`
}

// Request carries a query string plus variables.
type Request struct {
	Query     string    `json:"query"`
	Variables Variables `json:"variables"`
}

// Edge is one record of a connection page.
type Edge struct {
	Cursor   string          `json:"cursor"`
	MetaData model.MetaData  `json:"metaData"`
	Node     json.RawMessage `json:"node"`
}

// PageInfo reports forward pagination state.
type PageInfo struct {
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// Connection is the result of a paginated catalog request.
type Connection struct {
	Edges    []Edge   `json:"edges"`
	PageInfo PageInfo `json:"pageInfo"`
	MetaData struct {
		QueryRunAt time.Time `json:"queryRunAt"`
	} `json:"metaData"`
}

// SubscriptionUpdate carries a single changed row pushed by the server.
type SubscriptionUpdate struct {
	EntityType model.EntityType `json:"entityType"`
	MetaData   model.MetaData   `json:"metaData"`
	Entity     json.RawMessage  `json:"entity"`
}

// queries per entity type; the node shape matches the model structs.
var entityQueries = map[model.EntityType]string{
	model.EntityEmployee:  "query employees { id name description imageUrl }",
	model.EntityChannel:   "query channels { id identifier name imageUrl live playable currentBroadcastId }",
	model.EntityProgram:   "query programs { id identifier name description imageUrl hidden }",
	model.EntityBroadcast: "query broadcasts { id title description imageUrl hidden durationMillis airedAt programId hosts { id } directFilePath hlsFolderSingleFile hlsFolderSegmented }",
	model.EntitySetting:   "query settings { id identifier value }",
}

// CatalogVariables builds the query arguments for one page of a sweep.
// With no watermark the bootstrap fetch excludes tombstones; with a
// watermark only newer changes (tombstones included) are requested.
func CatalogVariables(since *time.Time, after *string, pageSize int) Variables {
	v := Variables{
		First: &pageSize,
		After: after,
	}
	if since == nil {
		v.MetaDataQuery = map[string]any{"deletedAt": nil}
	} else {
		v.MetaDataQuery = map[string]any{"updatedAt_gt": since.Format(time.RFC3339Nano)}
		v.IncludeDeleted = true
	}
	return v
}

// NewCatalogRequest builds a request envelope for one page of the given
// entity type's sweep.
func NewCatalogRequest(t model.EntityType, since *time.Time, after *string, pageSize int) (Envelope, error) {
	query, ok := entityQueries[t]
	if !ok {
		return Envelope{}, fmt.Errorf("unmapped entity type %q", t)
	}
	payload, err := json.Marshal(Request{
		Query:     query,
		Variables: CatalogVariables(since, after, pageSize),
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("encode request: %w", err)
	}
	return Envelope{
		ID:      uuid.NewString(),
		Type:    MessageType,
		Subtype: SubtypeRequest,
		Payload: payload,
	}, nil
}

// NewSubscription builds the entity-update subscription request.
func NewSubscription() Envelope {
	return Envelope{
		ID:      uuid.NewString(),
		Type:    MessageType,
		Subtype: SubtypeSubscription,
	}
}

// DecodeConnection decodes a request_response payload.
// A malformed payload is a schema mismatch, not a runtime condition.
func DecodeConnection(payload json.RawMessage) (*Connection, error) {
	var conn Connection
	if err := json.Unmarshal(payload, &conn); err != nil {
		return nil, fmt.Errorf("malformed connection payload: %w", err)
	}
	return &conn, nil
}

// DecodeSubscriptionUpdate decodes a subscription_update payload.
func DecodeSubscriptionUpdate(payload json.RawMessage) (*SubscriptionUpdate, error) {
	var upd SubscriptionUpdate
	if err := json.Unmarshal(payload, &upd); err != nil {
		return nil, fmt.Errorf("malformed subscription update: %w", err)
	}
	return &upd, nil
}
