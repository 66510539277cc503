package directory

import (
	"encoding/json"

	"github.com/mkurtov/haierbridge/internal/device"
)

// shapeMatcher attempts to read a device list out of one known response
// shape. Matchers are tried in order; the first success wins.
type shapeMatcher struct {
	name  string
	match func(data []byte) ([]device.Descriptor, bool)
}

var shapeMatchers = []shapeMatcher{
	{name: "flat_array", match: matchFlatArray},
	{name: "nested_list", match: matchNestedList},
	{name: "presentation_tree", match: matchPresentationTree},
}

type rawDevice struct {
	ID         string          `json:"id"`
	DeviceID   string          `json:"deviceId"`
	Name       string          `json:"name"`
	DeviceName string          `json:"deviceName"`
	Title      string          `json:"title"`
	Type       string          `json:"type"`
	DeviceType string          `json:"deviceType"`
	Model      string          `json:"model"`
	ModelName  string          `json:"modelName"`
	MAC        string          `json:"mac"`
	MACAddress string          `json:"macAddress"`
	Address    string          `json:"address"`
	Serial     string          `json:"serialNumber"`
	Firmware   string          `json:"firmwareVersion"`
	Status     json.RawMessage `json:"status"`
}

func (r rawDevice) identity() string {
	for _, v := range []string{r.DeviceID, r.ID, r.MACAddress, r.MAC, r.Address, r.Serial} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (r rawDevice) displayName() string {
	for _, v := range []string{r.Name, r.DeviceName, r.Title} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (r rawDevice) descriptor() device.Descriptor {
	mac := r.MACAddress
	if mac == "" {
		mac = r.MAC
	}
	if mac == "" {
		mac = r.Address
	}
	deviceType := r.DeviceType
	if deviceType == "" {
		deviceType = r.Type
	}
	model := r.Model
	if model == "" {
		model = r.ModelName
	}

	desc := device.Descriptor{
		ID:       r.identity(),
		Name:     r.displayName(),
		Type:     deviceType,
		Model:    model,
		MAC:      mac,
		Serial:   r.Serial,
		Firmware: r.Firmware,
	}
	if len(r.Status) > 0 {
		var status map[string]any
		if err := json.Unmarshal(r.Status, &status); err == nil {
			desc.InitialStatus = status
		}
	}
	return desc
}

// validateAll converts raw entries, requiring every entry to carry at
// least one identity field and one name-like field. A single bad entry
// disqualifies the whole candidate list so the next shape gets a try.
func validateAll(raws []rawDevice) ([]device.Descriptor, bool) {
	if len(raws) == 0 {
		return nil, false
	}
	out := make([]device.Descriptor, 0, len(raws))
	for _, raw := range raws {
		if raw.identity() == "" || raw.displayName() == "" {
			return nil, false
		}
		out = append(out, raw.descriptor())
	}
	return out, true
}

func matchFlatArray(data []byte) ([]device.Descriptor, bool) {
	var raws []rawDevice
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, false
	}
	return validateAll(raws)
}

// matchNestedList looks for the list under the usual envelope keys, at
// the top level or one level down under "data".
func matchNestedList(data []byte) ([]device.Descriptor, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, false
	}
	if inner, ok := envelope["data"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(inner, &nested); err == nil {
			if descs, ok := listFromKeys(nested); ok {
				return descs, true
			}
		}
	}
	return listFromKeys(envelope)
}

func listFromKeys(fields map[string]json.RawMessage) ([]device.Descriptor, bool) {
	for _, key := range []string{"devices", "items", "list", "results"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var raws []rawDevice
		if err := json.Unmarshal(raw, &raws); err != nil {
			continue
		}
		if descs, ok := validateAll(raws); ok {
			return descs, true
		}
	}
	return nil, false
}

// The UI-presentation document nests the device list inside a page
// layout: a scroll container holds named components, one of which is the
// device list with its state serialized as an embedded JSON string of
// room groups.
type presentationDoc struct {
	Data struct {
		Presentation struct {
			Layout struct {
				ScrollContainer []struct {
					ContractName string `json:"contractName"`
					State        string `json:"state"`
				} `json:"scrollContainer"`
			} `json:"layout"`
		} `json:"presentation"`
	} `json:"data"`
}

type presentationState struct {
	PageData []struct {
		Room  string      `json:"room"`
		Items []rawDevice `json:"items"`
	} `json:"pageData"`
}

func matchPresentationTree(data []byte) ([]device.Descriptor, bool) {
	var doc presentationDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	for _, component := range doc.Data.Presentation.Layout.ScrollContainer {
		if component.ContractName != "deviceList" || component.State == "" {
			continue
		}
		var state presentationState
		if err := json.Unmarshal([]byte(component.State), &state); err != nil {
			continue
		}
		var raws []rawDevice
		for _, page := range state.PageData {
			raws = append(raws, page.Items...)
		}
		if descs, ok := validateAll(raws); ok {
			return descs, true
		}
	}
	return nil, false
}
