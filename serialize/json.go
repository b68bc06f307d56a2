// Package serialize provides the default JSON serialization for commit
// headers, event payloads and snapshots.
package serialize

import (
	"encoding/json"
	"fmt"

	"github.com/getpup/commitstore/store"
)

// JSON is a store.Serializer backed by encoding/json.
type JSON struct{}

// Serialize implements store.Serializer.
func (JSON) Serialize(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}

// Deserialize implements store.Serializer.
func (JSON) Deserialize(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

// JSONEvents encodes a commit's event list as a single JSON array.
//
// Decoded event bodies come back as the generic JSON types
// (map[string]interface{}, []interface{}, string, float64, bool). Callers
// needing typed bodies supply their own store.EventSerializer.
type JSONEvents struct{}

// SerializeEvents implements store.EventSerializer.
func (JSONEvents) SerializeEvents(events []store.EventMessage) ([]byte, error) {
	data, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}
	return data, nil
}

// DeserializeEvents implements store.EventSerializer.
func (JSONEvents) DeserializeEvents(data []byte, _ store.CommitMeta) ([]store.EventMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var events []store.EventMessage
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	return events, nil
}
