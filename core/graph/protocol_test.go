package graph

import (
	"encoding/json"
	"testing"
	"time"

	"AuraFM/model"
)

func TestCatalogVariablesBootstrap(t *testing.T) {
	v := CatalogVariables(nil, nil, 100)

	if v.First == nil || *v.First != 100 {
		t.Fatalf("First = %v, want 100", v.First)
	}
	if v.IncludeDeleted {
		t.Error("bootstrap fetch must not include tombstones")
	}
	val, ok := v.MetaDataQuery["deletedAt"]
	if !ok || val != nil {
		t.Errorf("MetaDataQuery = %v, want {deletedAt: null}", v.MetaDataQuery)
	}
	if _, ok := v.MetaDataQuery["updatedAt_gt"]; ok {
		t.Error("bootstrap fetch must not filter by updatedAt")
	}
}

func TestCatalogVariablesIncremental(t *testing.T) {
	since := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	cursor := "abc"
	v := CatalogVariables(&since, &cursor, 100)

	if got := v.MetaDataQuery["updatedAt_gt"]; got != since.Format(time.RFC3339Nano) {
		t.Errorf("updatedAt_gt = %v, want %s", got, since.Format(time.RFC3339Nano))
	}
	if !v.IncludeDeleted {
		t.Error("incremental fetch must include tombstones")
	}
	if v.After == nil || *v.After != "abc" {
		t.Errorf("After = %v, want abc", v.After)
	}
}

func TestNewCatalogRequestEnvelope(t *testing.T) {
	env, err := NewCatalogRequest(model.EntityBroadcast, nil, nil, 100)
	if err != nil {
		t.Fatalf("NewCatalogRequest: %v", err)
	}
	if env.ID == "" {
		t.Error("request envelope needs an id")
	}
	if env.Type != MessageType || env.Subtype != SubtypeRequest {
		t.Errorf("envelope tagged %s/%s, want graph/request", env.Type, env.Subtype)
	}

	var req Request
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if req.Query == "" {
		t.Error("request carries no query")
	}
}

func TestNewCatalogRequestUnmappedType(t *testing.T) {
	if _, err := NewCatalogRequest(model.EntityType("PODCAST"), nil, nil, 100); err == nil {
		t.Error("unmapped entity type must fail fast")
	}
}

func TestDecodeConnection(t *testing.T) {
	payload := []byte(`{
		"edges": [
			{"cursor": "c1",
			 "metaData": {"createdAt": "2025-01-01T00:00:00Z", "updatedAt": "2025-01-02T00:00:00Z"},
			 "node": {"id": 1, "name": "Alex"}},
			{"cursor": "c2",
			 "metaData": {"createdAt": "2025-01-01T00:00:00Z", "updatedAt": "2025-01-03T00:00:00Z", "deletedAt": "2025-01-04T00:00:00Z"},
			 "node": {"id": 2}}
		],
		"pageInfo": {"hasNextPage": true},
		"metaData": {"queryRunAt": "2025-01-05T00:00:00Z"}
	}`)

	conn, err := DecodeConnection(payload)
	if err != nil {
		t.Fatalf("DecodeConnection: %v", err)
	}
	if len(conn.Edges) != 2 {
		t.Fatalf("edges = %d, want 2", len(conn.Edges))
	}
	if conn.Edges[0].MetaData.Tombstoned() {
		t.Error("edge 0 wrongly tombstoned")
	}
	if !conn.Edges[1].MetaData.Tombstoned() {
		t.Error("edge 1 should be tombstoned")
	}
	if !conn.PageInfo.HasNextPage {
		t.Error("hasNextPage lost in decode")
	}
}

func TestDecodeConnectionMalformed(t *testing.T) {
	if _, err := DecodeConnection([]byte(`{"edges": "nope"`)); err == nil {
		t.Error("malformed payload must fail")
	}
}

func TestDecodeSubscriptionUpdate(t *testing.T) {
	payload := []byte(`{
		"entityType": "CHANNEL",
		"metaData": {"createdAt": "2025-01-01T00:00:00Z", "updatedAt": "2025-01-02T00:00:00Z"},
		"entity": {"id": 3, "identifier": "live", "live": true}
	}`)

	upd, err := DecodeSubscriptionUpdate(payload)
	if err != nil {
		t.Fatalf("DecodeSubscriptionUpdate: %v", err)
	}
	if upd.EntityType != model.EntityChannel {
		t.Errorf("entityType = %s, want CHANNEL", upd.EntityType)
	}

	entity, err := model.DecodeEntity(upd.EntityType, upd.Entity)
	if err != nil {
		t.Fatalf("DecodeEntity: %v", err)
	}
	ch := entity.(*model.Channel)
	if ch.ID != 3 || ch.Identifier != "live" || !ch.Live {
		t.Errorf("decoded channel = %+v", ch)
	}
}
