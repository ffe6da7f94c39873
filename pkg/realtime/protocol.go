package realtime

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Channel protocol events
const (
	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventClose     = "phx_close"
	eventError     = "phx_error"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
	eventSystem    = "system"

	heartbeatTopic = "phoenix"
	topicPrefix    = "realtime:"
)

// EventType is a row change kind
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

// ChangeFilter selects the row changes a channel receives
type ChangeFilter struct {
	Event  EventType `json:"event"`
	Schema string    `json:"schema"`
	Table  string    `json:"table"`
	Filter string    `json:"filter,omitempty"`
}

// Eq builds a column equality filter expression
func Eq(column, value string) string {
	return fmt.Sprintf("%s=eq.%s", column, value)
}

// Validate checks the filter is complete enough to join
func (f ChangeFilter) Validate() error {
	switch f.Event {
	case EventInsert, EventUpdate, EventDelete, EventAll:
	default:
		return fmt.Errorf("unknown event type %q", f.Event)
	}
	if f.Table == "" {
		return fmt.Errorf("table is required")
	}
	return nil
}

func (f ChangeFilter) withDefaults() ChangeFilter {
	if f.Schema == "" {
		f.Schema = "public"
	}
	return f
}

// ChangeEvent is one committed row change
type ChangeEvent struct {
	Type            EventType           `json:"type"`
	Schema          string              `json:"schema"`
	Table           string              `json:"table"`
	CommitTimestamp string              `json:"commit_timestamp"`
	Record          jsoniter.RawMessage `json:"record"`
	OldRecord       jsoniter.RawMessage `json:"old_record"`
}

// Row returns the record that identifies the change: the old record for deletes, the new one otherwise
func (e ChangeEvent) Row() jsoniter.RawMessage {
	if e.Type == EventDelete || len(e.Record) == 0 || string(e.Record) == "null" || string(e.Record) == "{}" {
		return e.OldRecord
	}
	return e.Record
}

// Decode unmarshals Row into v
func (e ChangeEvent) Decode(v interface{}) error {
	row := e.Row()
	if len(row) == 0 {
		return fmt.Errorf("%s event on %s carries no record", e.Type, e.Table)
	}
	return json.Unmarshal(row, v)
}

// RecordID returns the id column of Row, if present
func (e ChangeEvent) RecordID() string {
	var keyed struct {
		ID string `json:"id"`
	}
	if err := e.Decode(&keyed); err != nil {
		return ""
	}
	return keyed.ID
}

// frame is the wire envelope of every message in both directions
type frame struct {
	Topic   string              `json:"topic"`
	Event   string              `json:"event"`
	Payload jsoniter.RawMessage `json:"payload"`
	Ref     string              `json:"ref,omitempty"`
	JoinRef string              `json:"join_ref,omitempty"`
}

type joinConfig struct {
	Broadcast       map[string]bool   `json:"broadcast"`
	Presence        map[string]string `json:"presence"`
	PostgresChanges []ChangeFilter    `json:"postgres_changes"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

func newJoinPayload(filter ChangeFilter, token string) joinPayload {
	return joinPayload{
		Config: joinConfig{
			Broadcast:       map[string]bool{"self": false},
			Presence:        map[string]string{"key": ""},
			PostgresChanges: []ChangeFilter{filter},
		},
		AccessToken: token,
	}
}

// reply is the payload of phx_reply
type reply struct {
	Status   string              `json:"status"`
	Response jsoniter.RawMessage `json:"response"`
}

func (r reply) err() error {
	if r.Status == "ok" {
		return nil
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(r.Response, &body)
	if body.Reason == "" {
		body.Reason = string(r.Response)
	}
	return fmt.Errorf("%w: %s", ErrJoinRejected, body.Reason)
}

type changesPayload struct {
	Data ChangeEvent `json:"data"`
}
