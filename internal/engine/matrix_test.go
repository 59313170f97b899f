package engine

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/domain"
)

func TestExpand_NValues(t *testing.T) {
	runID := uuid.New()
	tmpl := &domain.JobTemplate{
		Name:   "build",
		Matrix: []string{"linux", "macos", "windows"},
		Steps: []domain.StepDef{
			{ID: "compile", Action: ActionShell, Params: map[string]string{"command": "make"}},
		},
	}

	instances, err := Expand(runID, tmpl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(instances) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(instances))
	}

	ids := make(map[uuid.UUID]bool)
	for i, inst := range instances {
		if inst.MatrixValue != tmpl.Matrix[i] {
			t.Errorf("instance %d: matrix value %s, want %s", i, inst.MatrixValue, tmpl.Matrix[i])
		}
		if inst.Label() != tmpl.Matrix[i] {
			t.Errorf("instance %d: label %s", i, inst.Label())
		}
		if inst.RunID != runID {
			t.Errorf("instance %d: wrong run id", i)
		}
		if inst.Status != domain.JobStatusQueued {
			t.Errorf("instance %d: status %s, want QUEUED", i, inst.Status)
		}
		ids[inst.ID] = true
	}
	if len(ids) != 3 {
		t.Error("instance IDs must be unique")
	}
}

func TestExpand_Isolation(t *testing.T) {
	tmpl := &domain.JobTemplate{
		Name:   "build",
		Matrix: []string{"a", "b"},
		Steps: []domain.StepDef{
			{ID: "s", Action: ActionShell, Params: map[string]string{"command": "make"},
				Retry: &domain.RetryPolicy{MaxAttempts: 2}},
		},
	}

	instances, err := Expand(uuid.New(), tmpl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Изменение одного экземпляра не видно ни соседу, ни шаблону
	instances[0].Steps[0].Params["command"] = "rm -rf"
	instances[0].Steps[0].Retry.MaxAttempts = 9
	instances[0].Steps = append(instances[0].Steps, domain.StepDef{ID: "extra"})

	if instances[1].Steps[0].Params["command"] != "make" {
		t.Error("sibling params were mutated")
	}
	if instances[1].Steps[0].Retry.MaxAttempts != 2 {
		t.Error("sibling retry policy was mutated")
	}
	if len(instances[1].Steps) != 1 {
		t.Error("sibling steps slice was mutated")
	}
	if tmpl.Steps[0].Params["command"] != "make" {
		t.Error("template params were mutated")
	}
}

func TestExpand_EmptyAxis(t *testing.T) {
	tmpl := &domain.JobTemplate{Name: "release", Steps: []domain.StepDef{{ID: "s", Action: ActionRelease}}}

	instances, err := Expand(uuid.New(), tmpl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(instances) != 1 {
		t.Fatalf("expected exactly 1 instance, got %d", len(instances))
	}
	if instances[0].MatrixValue != "" {
		t.Errorf("expected empty matrix value, got %q", instances[0].MatrixValue)
	}
	if instances[0].Label() != "release" {
		t.Errorf("label should fall back to template name, got %s", instances[0].Label())
	}
}

func TestExpand_InvalidAxis(t *testing.T) {
	tests := []struct {
		name   string
		matrix []string
	}{
		{"empty value", []string{"linux", ""}},
		{"blank value", []string{"  ", "linux"}},
		{"tab value", []string{"linux", "\t"}},
		{"duplicate value", []string{"linux", "macos", "linux"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := &domain.JobTemplate{Name: "build", Matrix: tt.matrix}

			instances, err := Expand(uuid.New(), tmpl)
			if !errors.Is(err, ErrInvalidMatrix) {
				t.Fatalf("expected ErrInvalidMatrix, got %v", err)
			}
			if instances != nil {
				t.Error("no instances should be produced for invalid axis")
			}
		})
	}
}
