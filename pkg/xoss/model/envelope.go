// Package model implements the JSON-envelope domain payloads (C7)
// exchanged over file transfer: a header block merged ("flattened")
// with a document-specific body.
package model

import (
	"encoding/json"
	"fmt"
)

// Header is the header block present at the top level of every
// JSON document the device stores, identifying the device and when
// the document was last written. Any header-level field this build
// doesn't know about is round-tripped verbatim through Extra, the same
// convention SettingsInner uses for its document body.
type Header struct {
	DeviceModel string                     `json:"device_model"`
	SN          string                     `json:"sn"`
	UpdatedAt   int64                      `json:"updated_at"`
	Version     string                     `json:"version"`
	Extra       map[string]json.RawMessage `json:"-"`
}

// MarshalJSON emits the known header fields plus whatever unknown ones
// Extra carried in from the last read, in the canonical "updated_at"
// spelling.
func (h Header) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	for k, v := range h.Extra {
		fields[k] = v
	}

	b, err := json.Marshal(h.DeviceModel)
	if err != nil {
		return nil, err
	}
	fields["device_model"] = b

	b, err = json.Marshal(h.SN)
	if err != nil {
		return nil, err
	}
	fields["sn"] = b

	b, err = json.Marshal(h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	fields["updated_at"] = b
	delete(fields, "update_at")

	b, err = json.Marshal(h.Version)
	if err != nil {
		return nil, err
	}
	fields["version"] = b

	return json.Marshal(fields)
}

// UnmarshalJSON accepts either "updated_at" or the historical typo
// "update_at" for the timestamp field — the device's firmware has
// shipped both spellings across versions — and preserves any other
// header-level field it doesn't recognize in Extra.
func (h *Header) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("model: decoding header: %w", err)
	}

	if raw, ok := fields["device_model"]; ok {
		if err := json.Unmarshal(raw, &h.DeviceModel); err != nil {
			return fmt.Errorf("model: decoding header.device_model: %w", err)
		}
		delete(fields, "device_model")
	}
	if raw, ok := fields["sn"]; ok {
		if err := json.Unmarshal(raw, &h.SN); err != nil {
			return fmt.Errorf("model: decoding header.sn: %w", err)
		}
		delete(fields, "sn")
	}
	if raw, ok := fields["updated_at"]; ok {
		if err := json.Unmarshal(raw, &h.UpdatedAt); err != nil {
			return fmt.Errorf("model: decoding header.updated_at: %w", err)
		}
		delete(fields, "updated_at")
	} else if raw, ok := fields["update_at"]; ok {
		if err := json.Unmarshal(raw, &h.UpdatedAt); err != nil {
			return fmt.Errorf("model: decoding header.update_at: %w", err)
		}
		delete(fields, "update_at")
	}
	if raw, ok := fields["version"]; ok {
		if err := json.Unmarshal(raw, &h.Version); err != nil {
			return fmt.Errorf("model: decoding header.version: %w", err)
		}
		delete(fields, "version")
	}

	h.Extra = fields
	return nil
}

// WithHeader flattens a Header and a document body T into a single JSON
// object on the wire, matching the device's own envelope convention
// (Go's encoding/json has no struct-tag equivalent of "flatten", so this
// is done by hand via MarshalJSON/UnmarshalJSON).
type WithHeader[T any] struct {
	Header Header
	Data   T
}

// MarshalJSON merges the header fields and the data fields into one
// JSON object. It requires that T itself marshal to a JSON object.
func (w WithHeader[T]) MarshalJSON() ([]byte, error) {
	headerJSON, err := json.Marshal(w.Header)
	if err != nil {
		return nil, fmt.Errorf("model: marshaling header: %w", err)
	}
	dataJSON, err := json.Marshal(w.Data)
	if err != nil {
		return nil, fmt.Errorf("model: marshaling data: %w", err)
	}

	var headerFields map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &headerFields); err != nil {
		return nil, fmt.Errorf("model: flattening header: %w", err)
	}
	var dataFields map[string]json.RawMessage
	if err := json.Unmarshal(dataJSON, &dataFields); err != nil {
		return nil, fmt.Errorf("model: flattening data: %w (data must marshal to a JSON object)", err)
	}

	for k, v := range dataFields {
		headerFields[k] = v
	}

	return json.Marshal(headerFields)
}

// UnmarshalJSON decodes data into both the Header and the document body
// T, preserving unknown header fields byte-for-byte by decoding the
// header first (tolerating the update_at alias) and the body from the
// same raw object.
func (w *WithHeader[T]) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &w.Header); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &w.Data); err != nil {
		return fmt.Errorf("model: decoding data: %w", err)
	}

	// Keys that T owns are body fields, not unknown header fields: drop
	// them from Header.Extra so a reused header never carries one
	// document's body into another.
	dataJSON, err := json.Marshal(w.Data)
	if err != nil {
		return fmt.Errorf("model: marshaling data: %w", err)
	}
	var dataFields map[string]json.RawMessage
	if json.Unmarshal(dataJSON, &dataFields) == nil {
		for k := range dataFields {
			delete(w.Header.Extra, k)
		}
	}
	return nil
}
