package engine

import (
	"fmt"

	"github.com/shaiso/Shipyard/internal/domain"
)

// Node — узел в DAG: один JobTemplate.
type Node struct {
	// Job — шаблон job из PipelineSpec.
	Job *domain.JobTemplate

	// Name — имя job.
	Name string

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// DAG — направленный ациклический граф job в pipeline.
type DAG struct {
	// Nodes — все узлы графа (имя job → Node).
	Nodes map[string]*Node

	// RootNodes — узлы без зависимостей, в порядке объявления.
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node

	// declared — узлы в порядке объявления в PipelineSpec.
	declared []*Node
}

// BuildDAG строит DAG из PipelineSpec.
//
// Неизвестная зависимость возвращает ErrMissingDependency,
// цикл — ErrCyclicDependency. В обоих случаях run не создаётся.
func BuildDAG(spec *domain.PipelineSpec) (*DAG, error) {
	dag := &DAG{
		Nodes:     make(map[string]*Node, len(spec.Jobs)),
		RootNodes: make([]*Node, 0),
		declared:  make([]*Node, 0, len(spec.Jobs)),
	}

	// Первый проход: создаём все узлы
	for i := range spec.Jobs {
		job := &spec.Jobs[i]
		node := &Node{
			Job:        job,
			Name:       job.Name,
			DependsOn:  make([]*Node, 0),
			Dependents: make([]*Node, 0),
		}
		dag.Nodes[job.Name] = node
		dag.declared = append(dag.declared, node)
	}

	// Второй проход: связываем узлы по зависимостям
	for _, node := range dag.declared {
		for _, dep := range node.Job.DependsOn {
			depNode, exists := dag.Nodes[dep]
			if !exists {
				return nil, NewValidationError(node.Name, "depends_on",
					fmt.Sprintf("depends on unknown job: %s", dep), ErrMissingDependency)
			}
			dag.addEdge(depNode, node)
		}
	}

	dag.findRootNodes()

	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// addEdge добавляет ребро между узлами.
// Повторные depends_on не увеличивают InDegree.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.Name == from.Name {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// findRootNodes находит узлы без входящих рёбер.
func (d *DAG) findRootNodes() {
	d.RootNodes = make([]*Node, 0)
	for _, node := range d.declared {
		if node.InDegree == 0 {
			d.RootNodes = append(d.RootNodes, node)
		}
	}
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(d.Nodes))
	for name, node := range d.Nodes {
		inDegree[name] = node.InDegree
	}

	queue := make([]*Node, len(d.RootNodes))
	copy(queue, d.RootNodes)

	order := make([]*Node, 0, len(d.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.Name]--
			if inDegree[dependent.Name] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(d.Nodes) {
		stuck := make([]string, 0)
		for _, node := range d.declared {
			if inDegree[node.Name] > 0 {
				stuck = append(stuck, node.Name)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrCyclicDependency, stuck)
	}

	return order, nil
}

// Levels группирует узлы по стадиям: стадия узла на единицу больше
// максимальной стадии его зависимостей. Узлы одной стадии независимы.
func (d *DAG) Levels() [][]*Node {
	level := make(map[string]int, len(d.Nodes))
	maxLevel := 0
	for _, node := range d.Order {
		l := 0
		for _, dep := range node.DependsOn {
			if level[dep.Name]+1 > l {
				l = level[dep.Name] + 1
			}
		}
		level[node.Name] = l
		if l > maxLevel {
			maxLevel = l
		}
	}

	out := make([][]*Node, maxLevel+1)
	for _, node := range d.declared {
		l := level[node.Name]
		out[l] = append(out[l], node)
	}
	return out
}

// Descendants возвращает все узлы, транзитивно зависящие от name.
func (d *DAG) Descendants(name string) []*Node {
	start, ok := d.Nodes[name]
	if !ok {
		return nil
	}

	seen := map[string]bool{name: true}
	out := make([]*Node, 0)
	queue := []*Node{start}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, dependent := range node.Dependents {
			if seen[dependent.Name] {
				continue
			}
			seen[dependent.Name] = true
			out = append(out, dependent)
			queue = append(queue, dependent)
		}
	}
	return out
}

// Ancestors возвращает все узлы, от которых транзитивно зависит name.
func (d *DAG) Ancestors(name string) []*Node {
	start, ok := d.Nodes[name]
	if !ok {
		return nil
	}

	seen := map[string]bool{name: true}
	out := make([]*Node, 0)
	queue := []*Node{start}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, dep := range node.DependsOn {
			if seen[dep.Name] {
				continue
			}
			seen[dep.Name] = true
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	return out
}

// GetNode возвращает узел по имени job.
func (d *DAG) GetNode(name string) *Node {
	return d.Nodes[name]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}
