package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestHeader_AcceptsUpdateAtTypo(t *testing.T) {
	var h Header
	if err := json.Unmarshal([]byte(`{"device_model":"G","sn":"123","update_at":42,"version":"1.0"}`), &h); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if h.UpdatedAt != 42 {
		t.Fatalf("UpdatedAt = %d, want 42", h.UpdatedAt)
	}
}

func TestHeader_PrefersUpdatedAt(t *testing.T) {
	var h Header
	if err := json.Unmarshal([]byte(`{"device_model":"G","sn":"123","updated_at":99,"version":"1.0"}`), &h); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if h.UpdatedAt != 99 {
		t.Fatalf("UpdatedAt = %d, want 99", h.UpdatedAt)
	}
}

func TestHeader_RoundTripsUnknownFields(t *testing.T) {
	raw := []byte(`{"device_model":"G2","sn":"ABC123","updated_at":1700000000,"version":"2.0.0","build_channel":"beta"}`)

	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := h.Extra["build_channel"]; !ok {
		t.Fatalf("Extra missing unrecognized field build_channel, got %+v", h.Extra)
	}

	out, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(out, &flat); err != nil {
		t.Fatalf("Unmarshal into map: %v", err)
	}
	for _, key := range []string{"device_model", "sn", "updated_at", "version", "build_channel"} {
		if _, ok := flat[key]; !ok {
			t.Errorf("round-tripped JSON missing key %q", key)
		}
	}
}

func TestWithHeader_FlattenRoundTrip(t *testing.T) {
	orig := WithHeader[Workouts]{
		Header: Header{DeviceModel: "G2", SN: "ABC123", UpdatedAt: 1700000000, Version: "2.1.0"},
		Data: Workouts{Workouts: []WorkoutsItem{
			{Name: 1001, Size: 2048, State: WorkoutSynced},
		}},
	}

	raw, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		t.Fatalf("Unmarshal into map: %v", err)
	}
	for _, key := range []string{"device_model", "sn", "updated_at", "version", "workouts"} {
		if _, ok := flat[key]; !ok {
			t.Errorf("flattened JSON missing key %q", key)
		}
	}

	var got WithHeader[Workouts]
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	got.Header.Extra = nil
	orig.Header.Extra = nil
	if !reflect.DeepEqual(got.Header, orig.Header) {
		t.Errorf("header round trip mismatch: got %+v, want %+v", got.Header, orig.Header)
	}
	if len(got.Data.Workouts) != 1 || got.Data.Workouts[0] != orig.Data.Workouts[0] {
		t.Errorf("data round trip mismatch: got %+v, want %+v", got.Data, orig.Data)
	}
}

func TestSettingsInner_RoundTripsUnknownFields(t *testing.T) {
	raw := []byte(`{"units":"metric","locale":"en-US","auto_lap_km":5}`)

	var s SettingsInner
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s.Units != "metric" || s.Locale != "en-US" {
		t.Fatalf("got Units=%q Locale=%q, want metric/en-US", s.Units, s.Locale)
	}
	if _, ok := s.Extra["auto_lap_km"]; !ok {
		t.Fatalf("Extra missing unrecognized field auto_lap_km, got %+v", s.Extra)
	}

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(out, &flat); err != nil {
		t.Fatalf("Unmarshal into map: %v", err)
	}
	for _, key := range []string{"units", "locale", "auto_lap_km"} {
		if _, ok := flat[key]; !ok {
			t.Errorf("round-tripped JSON missing key %q", key)
		}
	}
}

func TestRoute_PreservesSourceVerbatim(t *testing.T) {
	raw := []byte(`{"name":"Morning Loop","source":{"points":[[1,2],[3,4]],"format":"gpx"}}`)

	var r Route
	if err := json.Unmarshal(raw, &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if r.Name != "Morning Loop" {
		t.Fatalf("Name = %q, want Morning Loop", r.Name)
	}

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var gotSource, wantSource interface{}
	if err := json.Unmarshal(r.Source, &wantSource); err != nil {
		t.Fatalf("Unmarshal want source: %v", err)
	}
	var roundTripped Route
	if err := json.Unmarshal(out, &roundTripped); err != nil {
		t.Fatalf("Unmarshal round-tripped: %v", err)
	}
	if err := json.Unmarshal(roundTripped.Source, &gotSource); err != nil {
		t.Fatalf("Unmarshal got source: %v", err)
	}
	if !reflect.DeepEqual(gotSource, wantSource) {
		t.Fatalf("source mismatch: got %+v, want %+v", gotSource, wantSource)
	}
}

func TestWorkoutsItem_TupleEncoding(t *testing.T) {
	item := WorkoutsItem{Name: 55, Size: 4096, State: WorkoutBroken}
	raw, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw) != "[55,4096,4]" {
		t.Fatalf("got %s, want a 3-element tuple array", raw)
	}

	var got WorkoutsItem
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != item {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, item)
	}
}
