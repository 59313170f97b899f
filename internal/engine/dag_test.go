package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Shipyard/internal/domain"
)

func job(name string, deps ...string) domain.JobTemplate {
	return domain.JobTemplate{
		Name:      name,
		DependsOn: deps,
		Steps:     []domain.StepDef{{ID: "step-1", Action: ActionSetOutput}},
	}
}

func TestBuildDAG_SimpleChain(t *testing.T) {
	spec := &domain.PipelineSpec{
		Jobs: []domain.JobTemplate{job("build"), job("test", "build"), job("release", "test")},
	}

	dag, err := BuildDAG(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dag.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", dag.Size())
	}
	if len(dag.RootNodes) != 1 || dag.RootNodes[0].Name != "build" {
		t.Fatalf("expected single root build, got %v", dag.RootNodes)
	}

	want := []string{"build", "test", "release"}
	for i, node := range dag.Order {
		if node.Name != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, node.Name, want[i])
		}
	}
}

func TestBuildDAG_Diamond(t *testing.T) {
	// build → lint → package
	// build → test → package
	spec := &domain.PipelineSpec{
		Jobs: []domain.JobTemplate{
			job("package", "lint", "test"),
			job("test", "build"),
			job("lint", "build"),
			job("build"),
		},
	}

	dag, err := BuildDAG(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dag.GetNode("package").InDegree != 2 {
		t.Errorf("package should have inDegree 2, got %d", dag.GetNode("package").InDegree)
	}

	// Каждая job идёт после всех своих зависимостей
	pos := make(map[string]int)
	for i, node := range dag.Order {
		pos[node.Name] = i
	}
	for _, node := range dag.Order {
		for _, dep := range node.DependsOn {
			if pos[dep.Name] >= pos[node.Name] {
				t.Errorf("%s scheduled before its dependency %s", node.Name, dep.Name)
			}
		}
	}

	levels := dag.Levels()
	if len(levels) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(levels))
	}
	if len(levels[1]) != 2 {
		t.Errorf("expected lint and test in stage 1, got %d nodes", len(levels[1]))
	}
}

func TestBuildDAG_DuplicateDependsOn(t *testing.T) {
	spec := &domain.PipelineSpec{
		Jobs: []domain.JobTemplate{job("build"), job("test", "build", "build")},
	}

	dag, err := BuildDAG(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dag.GetNode("test").InDegree != 1 {
		t.Errorf("duplicate depends_on must count once, got %d", dag.GetNode("test").InDegree)
	}
}

func TestBuildDAG_Cycle(t *testing.T) {
	spec := &domain.PipelineSpec{
		Jobs: []domain.JobTemplate{job("a", "c"), job("b", "a"), job("c", "b"), job("free")},
	}

	_, err := BuildDAG(spec)
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestBuildDAG_UnknownDependency(t *testing.T) {
	spec := &domain.PipelineSpec{
		Jobs: []domain.JobTemplate{job("test", "build")},
	}

	_, err := BuildDAG(spec)
	if !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency, got %v", err)
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatal("expected ValidationError")
	}
	if vErr.Job != "test" || vErr.Field != "depends_on" {
		t.Errorf("unexpected validation context: %+v", vErr)
	}
}

func TestDAG_DescendantsAndAncestors(t *testing.T) {
	spec := &domain.PipelineSpec{
		Jobs: []domain.JobTemplate{
			job("build"),
			job("test", "build"),
			job("package", "test"),
			job("release", "package"),
			job("docs"),
		},
	}

	dag, err := BuildDAG(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	desc := dag.Descendants("build")
	if len(desc) != 3 {
		t.Errorf("expected 3 descendants of build, got %d", len(desc))
	}
	for _, n := range desc {
		if n.Name == "docs" {
			t.Error("docs is not a descendant of build")
		}
	}

	anc := dag.Ancestors("release")
	if len(anc) != 3 {
		t.Errorf("expected 3 ancestors of release, got %d", len(anc))
	}

	if dag.Descendants("missing") != nil {
		t.Error("unknown node should have no descendants")
	}
}
