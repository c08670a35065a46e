package model

import "testing"

func TestPayloadFromJSON_flattens(t *testing.T) {
	p, err := PayloadFromJSON([]byte(`{
		"applicationId": "app-1",
		"aiScore": 92,
		"candidate": {"name": "Ada", "skills": ["go", "sql"]},
		"remote": true,
		"ignored": null
	}`))
	if err != nil {
		t.Fatalf("PayloadFromJSON: %v", err)
	}
	if s, _ := p.Lookup("applicationId").AsString(); s != "app-1" {
		t.Errorf("applicationId = %v, want app-1", p.Lookup("applicationId"))
	}
	if n, _ := p.Lookup("aiScore").AsNumber(); n != 92 {
		t.Errorf("aiScore = %v, want 92", p.Lookup("aiScore"))
	}
	if s, _ := p.Lookup("candidate.name").AsString(); s != "Ada" {
		t.Errorf("candidate.name = %v, want Ada", p.Lookup("candidate.name"))
	}
	if got := p.Lookup("candidate.skills").Text(); got != "go, sql" {
		t.Errorf("candidate.skills = %q, want %q", got, "go, sql")
	}
	if !p.Lookup("ignored").IsAbsent() {
		t.Error("null field should be absent")
	}
	if !p.Lookup("missing").IsAbsent() {
		t.Error("missing field should be absent")
	}
}

func TestPayloadFromJSON_rejects(t *testing.T) {
	for _, raw := range []string{`[1,2]`, `{"a":`, `"str"`} {
		if _, err := PayloadFromJSON([]byte(raw)); err == nil {
			t.Errorf("PayloadFromJSON(%s) error = nil, want error", raw)
		}
	}
	p, err := PayloadFromJSON(nil)
	if err != nil || len(p) != 0 {
		t.Errorf("PayloadFromJSON(nil) = %v, %v; want empty payload", p, err)
	}
}

func TestPayloadFromMap(t *testing.T) {
	p := PayloadFromMap(map[string]any{
		"status": "hired",
		"job":    map[string]any{"title": "Engineer"},
	})
	if got := p.Lookup("job.title").Text(); got != "Engineer" {
		t.Errorf("job.title = %q, want Engineer", got)
	}
	if keys := p.Keys(); len(keys) != 2 || keys[0] != "job.title" {
		t.Errorf("Keys() = %v, want [job.title status]", keys)
	}
}

func TestPayload_Merge_does_not_mutate(t *testing.T) {
	base := Payload{"a": Number(1)}
	merged := base.Merge(Payload{"a": Number(2), "b": Bool(true)})
	if n, _ := base.Lookup("a").AsNumber(); n != 1 {
		t.Errorf("base mutated: a = %v", base.Lookup("a"))
	}
	if n, _ := merged.Lookup("a").AsNumber(); n != 2 {
		t.Errorf("merged a = %v, want 2", merged.Lookup("a"))
	}
}

func TestPayload_nil_lookup(t *testing.T) {
	var p Payload
	if !p.Lookup("x").IsAbsent() {
		t.Error("nil payload lookup should be absent")
	}
}
