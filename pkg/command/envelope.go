package command

import (
	"encoding/json"
	"sync"

	"github.com/harun/conclave/pkg/runnerstate"
	"github.com/xeipuuv/gojsonschema"
)

const (
	// EnvelopeType is the outer kind every command frame carries
	EnvelopeType = "event"
	// CommandIssuedEvent is the inner kind of an operator command
	CommandIssuedEvent = "orchestrator.command_issued"
)

// envelope mirrors the wire frame; data is decoded separately once the schema passed
type envelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var (
	envelopeSchemaOnce sync.Once
	envelopeSchema     *gojsonschema.Schema
	envelopeSchemaErr  error
)

func commandEnvelopeSchema() (*gojsonschema.Schema, error) {
	envelopeSchemaOnce.Do(func() {
		commandTypes := make([]interface{}, 0, len(runnerstate.CommandTypes))
		for _, ct := range runnerstate.CommandTypes {
			commandTypes = append(commandTypes, string(ct))
		}

		schemaMap := map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"type", "event", "data"},
			"properties": map[string]interface{}{
				"type":  map[string]interface{}{"type": "string", "enum": []interface{}{EnvelopeType}},
				"event": map[string]interface{}{"type": "string", "enum": []interface{}{CommandIssuedEvent}},
				"data": map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"sessionId", "commandType", "issuedBy"},
					"properties": map[string]interface{}{
						"sessionId":       map[string]interface{}{"type": "string", "minLength": 1},
						"commandType":     map[string]interface{}{"type": "string", "enum": commandTypes},
						"issuedBy":        map[string]interface{}{"type": "string", "minLength": 1},
						"targetAgentRole": map[string]interface{}{"type": "string"},
						"content":         map[string]interface{}{"type": "string"},
					},
				},
			},
		}

		envelopeSchema, envelopeSchemaErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	})
	return envelopeSchema, envelopeSchemaErr
}

// Parse validates a raw command frame. It returns false for anything that is
// not a well-formed command envelope; callers ignore such frames.
func Parse(payload []byte) (Event, bool) {
	if len(payload) == 0 || !json.Valid(payload) {
		return Event{}, false
	}

	schema, err := commandEnvelopeSchema()
	if err != nil {
		return Event{}, false
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil || !result.Valid() {
		return Event{}, false
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return Event{}, false
	}

	return ev, true
}
