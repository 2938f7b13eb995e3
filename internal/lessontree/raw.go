package lessontree

import "encoding/json"

// RawActivity is an activity as returned by the content API.
type RawActivity struct {
	ID          NodeID         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Type        NodeType       `json:"type,omitempty"`
	Description string         `json:"description,omitempty"`
	Raw         map[string]any `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps the full object in Raw.
func (a *RawActivity) UnmarshalJSON(data []byte) error {
	type plain RawActivity
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = RawActivity(p)
	a.Raw = raw
	return nil
}

// MarshalJSON writes the original object when one was decoded.
func (a RawActivity) MarshalJSON() ([]byte, error) {
	if a.Raw != nil {
		return json.Marshal(a.Raw)
	}
	type plain RawActivity
	return json.Marshal(plain(a))
}

// RawTopic is one element of a learning object's topics array. The API uses three
// shapes for it: a group wrapper with a nested Topics array, a topic with a direct
// Activities array, or a bare named object. A nil slice means the field was absent.
type RawTopic struct {
	ID          NodeID        `json:"id"`
	Name        string        `json:"name,omitempty"`
	Description string        `json:"description,omitempty"`
	Topics      []RawTopic    `json:"topics"`
	Activities  []RawActivity `json:"activities"`
}

// RawNodeDetail is the detail payload for a single node.
type RawNodeDetail struct {
	ID          NodeID     `json:"id"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Type        NodeType   `json:"type,omitempty"`
	Topics      []RawTopic `json:"topics"`
}
