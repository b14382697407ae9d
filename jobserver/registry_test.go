package jobserver

import (
	"context"
	"testing"
)

func TestRegistryValidateExactMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(Process{
		Name:   "echo",
		Params: []Param{{Name: "a"}, {Name: "b"}},
		Run:    func(ctx context.Context, p map[string]interface{}) (interface{}, error) { return p, nil },
	})

	verr, found := r.Validate("echo", map[string]interface{}{"a": 1, "b": 2})
	if !found {
		t.Fatal("want process found")
	}
	if verr != nil {
		t.Errorf("want no validation error for exact match, got %+v", verr)
	}
}

func TestRegistryValidateReportsMissingAndUnexpected(t *testing.T) {
	r := NewRegistry()
	r.Register(Process{
		Name:   "echo",
		Params: []Param{{Name: "a"}, {Name: "b"}},
		Run:    func(ctx context.Context, p map[string]interface{}) (interface{}, error) { return p, nil },
	})

	verr, found := r.Validate("echo", map[string]interface{}{"a": 1, "c": 3})
	if !found {
		t.Fatal("want process found")
	}
	if verr == nil {
		t.Fatal("want a validation error")
	}
	if len(verr.Missing) != 1 || verr.Missing[0] != "b" {
		t.Errorf("want missing=[b], got %v", verr.Missing)
	}
	if len(verr.Unexpected) != 1 || verr.Unexpected[0] != "c" {
		t.Errorf("want unexpected=[c], got %v", verr.Unexpected)
	}
}

func TestRegistryValidateUnknownProcess(t *testing.T) {
	r := NewRegistry()
	if _, found := r.Validate("nope", nil); found {
		t.Error("want found=false for unregistered process")
	}
}

func TestNoopProcess(t *testing.T) {
	r := NewRegistry()
	r.Register(Process{Name: "noop", Run: noop})
	proc, ok := r.Get("noop")
	if !ok {
		t.Fatal("want noop registered")
	}
	result, err := proc.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := result.(map[string]interface{})
	if !ok || m["ok"] != true {
		t.Errorf("want {ok:true}, got %+v", result)
	}
}
