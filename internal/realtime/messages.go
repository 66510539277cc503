package realtime

import "encoding/json"

// The socket speaks JSON messages keyed by a discriminant field. Inbound
// traffic uses whichever of event/type/action the cloud felt like that
// day; outbound traffic always uses action.
type message struct {
	Event  string `json:"event,omitempty"`
	Type   string `json:"type,omitempty"`
	Action string `json:"action,omitempty"`

	MAC        string            `json:"macAddr,omitempty"`
	Command    string            `json:"commandName,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	Message    string            `json:"message,omitempty"`
	Success    *bool             `json:"success,omitempty"`
}

func (m message) discriminant() string {
	if m.Event != "" {
		return m.Event
	}
	if m.Type != "" {
		return m.Type
	}
	return m.Action
}

// statusPayload carries one or more per-device property maps.
type statusPayload struct {
	Statuses []struct {
		MAC        string            `json:"macAddr"`
		Properties map[string]string `json:"properties"`
	} `json:"statuses"`
}
