package model

import (
	"encoding/json"
	"fmt"
)

// UserProfileInner mirrors the device's training-profile fields. Names
// are kept in the device's own (partly all-caps) wire vocabulary rather
// than renamed to Go conventions, since these are exactly the JSON keys
// the device reads and writes.
type UserProfileInner struct {
	ALAHR    int64 `json:"ALAHR"`
	ALASpeed int64 `json:"ALASPEED"`
	FTP      int64 `json:"FTP"`
	LTHR     int64 `json:"LTHR"`
	MaxHR    int64 `json:"MAXHR"`
	Birthday int64 `json:"birthday"`
	Gender   int64 `json:"gender"`
	Height   int64 `json:"height"`
	TimeZone int64 `json:"time_zone"`
	Weight   int64 `json:"weight"`
}

// User identifies the account a UserProfile belongs to, when the device
// has synced with a cloud account.
type User struct {
	Platform string `json:"platform"`
	UID      uint32 `json:"uid"`
	UserName string `json:"user_name"`
}

// UserProfile is the document stored behind the user-profile filename:
// optional account identity plus the training-profile fields.
type UserProfile struct {
	User        *User             `json:"user"`
	UserProfile UserProfileInner `json:"user_profile"`
}

// WorkoutState is the device's lifecycle state for a recorded workout.
type WorkoutState int

const (
	WorkoutNotSynchronized WorkoutState = iota
	WorkoutRecording
	WorkoutSyncing
	WorkoutSynced
	WorkoutBroken
)

// WorkoutsItem describes one recorded workout file. The device encodes
// it as a 3-element JSON array ([name, size, state]), not an object, so
// MarshalJSON/UnmarshalJSON are implemented by hand.
type WorkoutsItem struct {
	Name  uint64
	Size  uint32
	State WorkoutState
}

func (w WorkoutsItem) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int64{int64(w.Name), int64(w.Size), int64(w.State)})
}

func (w *WorkoutsItem) UnmarshalJSON(data []byte) error {
	var tuple [3]int64
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("model: decoding workout item tuple: %w", err)
	}
	w.Name = uint64(tuple[0])
	w.Size = uint32(tuple[1])
	w.State = WorkoutState(tuple[2])
	return nil
}

// Workouts is the document stored behind the workouts-index filename.
type Workouts struct {
	Workouts []WorkoutsItem `json:"workouts"`
}

// Settings is the document stored behind settings.json, wrapped in a
// top-level "settings" field per spec.md's envelope contract. The
// source crate defining this document's exact field set was not part
// of the retrieved reference material (only the CLI caller that reads
// and logs it), so unknown fields are preserved via Extra rather than
// guessed at.
type Settings struct {
	Settings SettingsInner `json:"settings"`
}

// SettingsInner carries the settings fields this implementation knows
// about explicitly; anything else the device sends is round-tripped
// verbatim through Extra so a write never drops firmware-specific
// fields this build doesn't understand.
type SettingsInner struct {
	Units  string `json:"units,omitempty"`
	Locale string `json:"locale,omitempty"`
	Extra  map[string]json.RawMessage `json:"-"`
}

func (s SettingsInner) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	for k, v := range s.Extra {
		fields[k] = v
	}
	if s.Units != "" {
		b, err := json.Marshal(s.Units)
		if err != nil {
			return nil, err
		}
		fields["units"] = b
	}
	if s.Locale != "" {
		b, err := json.Marshal(s.Locale)
		if err != nil {
			return nil, err
		}
		fields["locale"] = b
	}
	return json.Marshal(fields)
}

func (s *SettingsInner) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("model: decoding settings: %w", err)
	}
	if raw, ok := fields["units"]; ok {
		if err := json.Unmarshal(raw, &s.Units); err != nil {
			return fmt.Errorf("model: decoding settings.units: %w", err)
		}
		delete(fields, "units")
	}
	if raw, ok := fields["locale"]; ok {
		if err := json.Unmarshal(raw, &s.Locale); err != nil {
			return fmt.Errorf("model: decoding settings.locale: %w", err)
		}
		delete(fields, "locale")
	}
	s.Extra = fields
	return nil
}

// GearItem describes one configured piece of equipment (bike, shoe,
// …) tracked for maintenance/odometer purposes.
type GearItem struct {
	ID       uint32 `json:"id"`
	Name     string `json:"name"`
	Type     int64  `json:"type"`
	Distance uint32 `json:"distance"`
}

// GearProfile is the document stored behind gear_profile.json.
type GearProfile struct {
	Gears []GearItem `json:"gears"`
}

// Route is one stored route. The device's `source` field's exact
// semantics are unknown (spec.md §9's open question); it is preserved
// as raw JSON rather than interpreted, so a read-then-write round trip
// never corrupts it.
type Route struct {
	Name   string          `json:"name"`
	Source json.RawMessage `json:"source,omitempty"`
}

// RouteBook is the document stored behind routebooks.json.
type RouteBook struct {
	Routes []Route `json:"routes"`
}
