package schema

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestTypeNames(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{String(), "string"},
		{Int(), "int"},
		{Float(), "float"},
		{Bool(), "bool"},
		{Slice(String()), "[string]"},
		{Slice(Slice(Int())), "[[int]]"},
		{Object(), "object"},
		{Raw("array", map[string]any{"type": "array"}), "array"},
	}

	for _, tt := range tests {
		if got := tt.typ.Name(); got != tt.want {
			t.Errorf("Name() = %q, want %q", got, tt.want)
		}
	}
}

func TestTypeJSONSchema(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		want map[string]any
	}{
		{"string", String(), map[string]any{"type": "string"}},
		{"int", Int(), map[string]any{"type": "integer"}},
		{"float", Float(), map[string]any{"type": "number"}},
		{"bool", Bool(), map[string]any{"type": "boolean"}},
		{"slice", Slice(Int()), map[string]any{"type": "array", "items": map[string]any{"type": "integer"}}},
		{"enum", Enum("low", "high"), map[string]any{"type": "string", "enum": []any{"low", "high"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.typ.JSONSchema()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("JSONSchema() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRawType_IsolatesCallerMap(t *testing.T) {
	src := map[string]any{"type": "string"}
	typ := Raw("string", src)
	src["type"] = "integer"

	if got := typ.JSONSchema()["type"]; got != "string" {
		t.Errorf("Raw type changed with caller map: got %v", got)
	}
	frag := typ.JSONSchema()
	frag["type"] = "boolean"
	if got := typ.JSONSchema()["type"]; got != "string" {
		t.Errorf("Raw type changed through returned fragment: got %v", got)
	}
}

func TestNullable(t *testing.T) {
	got := nullable(Enum("a", "b").JSONSchema())
	want := map[string]any{"type": []any{"string", "null"}, "enum": []any{"a", "b", nil}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("nullable(enum) = %v, want %v", got, want)
	}

	got = nullable(map[string]any{"type": []any{"null", "array"}})
	if _, ok := got["anyOf"]; !ok {
		t.Errorf("nullable(multi-type) should wrap in anyOf, got %v", got)
	}
}

func TestDescriptor_Document(t *testing.T) {
	d := New("Patient",
		Required("name", String(), "Full name"),
		Optional("age", Int(), ""),
		Required("vitals", Object(Optional("heart_rate", Int(), "")), ""),
	)

	doc := d.Document([]string{"no-op", "A", "B"})

	if doc["additionalProperties"] != false {
		t.Error("document should be closed")
	}
	required, _ := doc["required"].([]any)
	wantRequired := []any{"name", "age", "vitals", TransitionField}
	if !reflect.DeepEqual(required, wantRequired) {
		t.Errorf("required = %v, want %v", required, wantRequired)
	}

	props := doc["properties"].(map[string]any)
	age := props["age"].(map[string]any)
	if !reflect.DeepEqual(age["type"], []any{"integer", "null"}) {
		t.Errorf("optional field should be nullable, got %v", age["type"])
	}
	name := props["name"].(map[string]any)
	if name["description"] != "Full name" {
		t.Errorf("description not propagated: %v", name)
	}
	tr := props[TransitionField].(map[string]any)
	if !reflect.DeepEqual(tr["enum"], []any{"no-op", "A", "B"}) {
		t.Errorf("transition enum = %v", tr["enum"])
	}

	if _, err := json.Marshal(doc); err != nil {
		t.Fatalf("document must be serializable: %v", err)
	}
}

func TestDescriptor_DocumentWithoutTransitions(t *testing.T) {
	doc := DefaultResponse().Document(nil)
	props := doc["properties"].(map[string]any)
	if _, ok := props[TransitionField]; ok {
		t.Error("transition field should be omitted when transitions is nil")
	}
	if _, ok := props[ContentField]; !ok {
		t.Error("default response must declare content")
	}
}

func TestDescriptor_Check(t *testing.T) {
	tests := []struct {
		name    string
		d       *Descriptor
		wantErr bool
	}{
		{"valid", DefaultResponse(), false},
		{"empty name", New("x", Required("", String(), "")), true},
		{"reserved", New("x", Required(TransitionField, String(), "")), true},
		{"duplicate", New("x", Required("a", String(), ""), Optional("a", Int(), "")), true},
		{"nil type", New("x", Field{Name: "a"}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Check()
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDescriptor_MarshalJSON(t *testing.T) {
	d := New("Switch", Required("on", Bool(), "Light state"))
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"name":"Switch","fields":[{"name":"on","type":"bool","description":"Light state"}]}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

type inferred struct {
	Name     string   `json:"name"`
	Age      int      `json:"age"`
	Nickname string   `json:"nickname,omitempty"`
	Tags     []string `json:"tags"`
}

func TestFromType(t *testing.T) {
	d, err := FromType[inferred]("Inferred")
	if err != nil {
		t.Fatalf("FromType failed: %v", err)
	}

	if got := d.Names(); !reflect.DeepEqual(got, []string{"age", "name", "nickname", "tags"}) {
		t.Errorf("field names = %v", got)
	}
	nick, _ := d.Field("nickname")
	if !nick.Optional {
		t.Error("omitempty field should be optional")
	}
	name, _ := d.Field("name")
	if name.Optional {
		t.Error("plain field should be required")
	}
	if name.Type.Name() != "string" {
		t.Errorf("name type = %s", name.Type.Name())
	}
}
