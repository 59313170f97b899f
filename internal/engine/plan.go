package engine

import (
	"sort"

	"github.com/shaiso/Shipyard/internal/domain"
)

// Plan — план выполнения pipeline без запуска шагов.
type Plan struct {
	Pipeline string       `json:"pipeline"`
	Order    []string     `json:"order"`
	Stages   [][]string   `json:"stages"`
	Jobs     []PlannedJob `json:"jobs"`
}

// PlannedJob — одна job в плане.
//
// Needs — все транзитивные зависимости, Blocks — job, которые будут
// SKIPPED, если эта job не выполнится. Оба списка в порядке выполнения.
type PlannedJob struct {
	Name      string        `json:"name"`
	Stage     int           `json:"stage"`
	FailFast  bool          `json:"fail_fast"`
	DependsOn []string      `json:"depends_on"`
	Needs     []string      `json:"needs"`
	Blocks    []string      `json:"blocks"`
	Instances []string      `json:"instances"`
	Steps     []PlannedStep `json:"steps"`
}

// PlannedStep — шаг в плане.
type PlannedStep struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	BestEffort bool   `json:"best_effort,omitempty"`
}

// BuildPlan строит план выполнения: порядок job, стадии и метки экземпляров.
func BuildPlan(spec *domain.PipelineSpec) (*Plan, error) {
	dag, err := BuildDAG(spec)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Pipeline: spec.Name,
		Order:    make([]string, 0, len(dag.Order)),
		Stages:   make([][]string, 0),
		Jobs:     make([]PlannedJob, 0, len(dag.Order)),
	}

	stageOf := make(map[string]int)
	for i, level := range dag.Levels() {
		names := make([]string, 0, len(level))
		for _, node := range level {
			names = append(names, node.Name)
			stageOf[node.Name] = i
		}
		plan.Stages = append(plan.Stages, names)
	}

	position := make(map[string]int, len(dag.Order))
	for i, node := range dag.Order {
		position[node.Name] = i
	}
	names := func(nodes []*Node) []string {
		out := make([]string, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, n.Name)
		}
		sort.Slice(out, func(i, j int) bool { return position[out[i]] < position[out[j]] })
		return out
	}

	for _, node := range dag.Order {
		plan.Order = append(plan.Order, node.Name)

		job := node.Job
		if err := ValidateMatrix(job); err != nil {
			return nil, err
		}

		labels := job.Matrix
		if len(labels) == 0 {
			labels = []string{job.Name}
		}

		steps := make([]PlannedStep, 0, len(job.Steps))
		for _, s := range job.Steps {
			steps = append(steps, PlannedStep{ID: s.ID, Action: s.Action, BestEffort: s.BestEffort})
		}

		deps := make([]string, 0, len(node.DependsOn))
		for _, dep := range node.DependsOn {
			deps = append(deps, dep.Name)
		}

		plan.Jobs = append(plan.Jobs, PlannedJob{
			Name:      job.Name,
			Stage:     stageOf[job.Name],
			FailFast:  job.IsFailFast(),
			DependsOn: deps,
			Needs:     names(dag.Ancestors(node.Name)),
			Blocks:    names(dag.Descendants(node.Name)),
			Instances: append([]string(nil), labels...),
			Steps:     steps,
		})
	}

	return plan, nil
}
