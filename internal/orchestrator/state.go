package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/engine"
)

// RunState — состояние выполнения одного run в памяти.
//
// RunState создаётся при Submit и живёт, пока run не вытеснен из истории.
// Экземпляры job принадлежат планировщику: воркер получает копию
// экземпляра и возвращает её через канал результатов.
type RunState struct {
	// Run — запись run. Читать только через Snapshot.
	Run *domain.Run

	// Spec — нормализованный pipeline.
	Spec *domain.PipelineSpec

	// DAG — граф зависимостей job.
	DAG *engine.DAG

	// instances — экземпляры в порядке раскрытия матрицы.
	instances []*domain.JobInstance

	// byID — экземпляр по ID.
	byID map[uuid.UUID]*domain.JobInstance

	// byTemplate — экземпляры по имени шаблона.
	byTemplate map[string][]*domain.JobInstance

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu sync.RWMutex
}

// NewRunState создаёт состояние run из раскрытых экземпляров.
func NewRunState(run *domain.Run, spec *domain.PipelineSpec, dag *engine.DAG, instances []*domain.JobInstance) *RunState {
	s := &RunState{
		Run:        run,
		Spec:       spec,
		DAG:        dag,
		instances:  instances,
		byID:       make(map[uuid.UUID]*domain.JobInstance, len(instances)),
		byTemplate: make(map[string][]*domain.JobInstance),
		done:       make(chan struct{}),
	}
	for _, inst := range instances {
		s.byID[inst.ID] = inst
		s.byTemplate[inst.Template] = append(s.byTemplate[inst.Template], inst)
	}
	return s
}

// RunID возвращает ID run.
func (s *RunState) RunID() uuid.UUID {
	return s.Run.ID
}

// Done закрывается, когда run завершён.
func (s *RunState) Done() <-chan struct{} {
	return s.done
}

// Ready возвращает ID экземпляров, готовых к запуску: QUEUED и
// все шаблоны-зависимости удовлетворены.
func (s *RunState) Ready() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ready []uuid.UUID
	for _, node := range s.DAG.Order {
		if !s.depsSatisfied(node) {
			continue
		}
		for _, inst := range s.byTemplate[node.Name] {
			if inst.Status == domain.JobStatusQueued {
				ready = append(ready, inst.ID)
			}
		}
	}
	return ready
}

// Dispatch переводит экземпляр в RUNNING и возвращает копию для воркера
// вместе со снимком экземпляров зависимостей.
func (s *RunState) Dispatch(id uuid.UUID) (*domain.JobInstance, []domain.JobInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst := s.byID[id]
	inst.MarkRunning()
	work := *inst

	var upstream []domain.JobInstance
	for _, dep := range s.DAG.Nodes[inst.Template].DependsOn {
		for _, u := range s.byTemplate[dep.Name] {
			upstream = append(upstream, *u)
		}
	}
	return &work, upstream
}

// Complete сохраняет результат воркера.
//
// Возвращает экземпляры, которые стали SKIPPED вследствие этого результата:
// при fail_fast упавший экземпляр пропускает ещё не запущенных соседей,
// а зависимые job пропускаются, как только их зависимость не может
// быть удовлетворена.
func (s *RunState) Complete(result *domain.JobInstance) []domain.JobInstance {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[result.ID]
	if !ok {
		return nil
	}
	*stored = *result

	var skipped []domain.JobInstance
	node := s.DAG.Nodes[stored.Template]
	if stored.Status == domain.JobStatusFailed && node.Job.IsFailFast() {
		reason := fmt.Sprintf("sibling %s failed", stored.Label())
		for _, sib := range s.byTemplate[stored.Template] {
			if sib.Status == domain.JobStatusQueued {
				sib.MarkSkipped(reason)
				skipped = append(skipped, *sib)
			}
		}
	}

	return append(skipped, s.sweep()...)
}

// SkipQueued пропускает все ещё не запущенные экземпляры.
func (s *RunState) SkipQueued(reason string) []domain.JobInstance {
	s.mu.Lock()
	defer s.mu.Unlock()

	var skipped []domain.JobInstance
	for _, inst := range s.instances {
		if inst.Status == domain.JobStatusQueued {
			inst.MarkSkipped(reason)
			skipped = append(skipped, *inst)
		}
	}
	return skipped
}

// sweep пропускает QUEUED экземпляры шаблонов, у которых зависимость
// уже не может быть удовлетворена. Обход в топологическом порядке
// распространяет пропуск транзитивно. Вызывается под s.mu.
func (s *RunState) sweep() []domain.JobInstance {
	var skipped []domain.JobInstance
	for _, node := range s.DAG.Order {
		dep := s.blockedBy(node)
		if dep == "" {
			continue
		}
		reason := fmt.Sprintf("dependency %s not satisfied", dep)
		for _, inst := range s.byTemplate[node.Name] {
			if inst.Status == domain.JobStatusQueued {
				inst.MarkSkipped(reason)
				skipped = append(skipped, *inst)
			}
		}
	}
	return skipped
}

// blockedBy возвращает имя первой зависимости, которая уже не может
// быть удовлетворена, или "".
func (s *RunState) blockedBy(node *engine.Node) string {
	for _, dep := range node.DependsOn {
		if s.unsatisfiable(dep) {
			return dep.Name
		}
	}
	return ""
}

// depsSatisfied проверяет, что все зависимости узла удовлетворены.
func (s *RunState) depsSatisfied(node *engine.Node) bool {
	for _, dep := range node.DependsOn {
		if !s.satisfied(dep) {
			return false
		}
	}
	return true
}

// satisfied — шаблон удовлетворён: все его экземпляры SUCCEEDED.
// fail_fast на это не влияет, он решает только судьбу соседей.
func (s *RunState) satisfied(node *engine.Node) bool {
	insts := s.byTemplate[node.Name]
	if len(insts) == 0 {
		return false
	}
	for _, inst := range insts {
		if inst.Status != domain.JobStatusSucceeded {
			return false
		}
	}
	return true
}

// unsatisfiable — шаблон уже никогда не будет удовлетворён.
func (s *RunState) unsatisfiable(node *engine.Node) bool {
	for _, inst := range s.byTemplate[node.Name] {
		if inst.Status == domain.JobStatusFailed || inst.Status == domain.JobStatusSkipped {
			return true
		}
	}
	return false
}

// Unsatisfied возвращает шаблоны, которые не удовлетворены,
// в топологическом порядке.
func (s *RunState) Unsatisfied() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, node := range s.DAG.Order {
		if !s.satisfied(node) {
			out = append(out, node.Name)
		}
	}
	return out
}

// HasQueued проверяет, остались ли не запущенные экземпляры.
func (s *RunState) HasQueued() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inst := range s.instances {
		if inst.Status == domain.JobStatusQueued {
			return true
		}
	}
	return false
}

// SetRelease сохраняет итог Release Gate.
func (s *RunState) SetRelease(summary *domain.ReleaseSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Run.Release = summary
}

// Update изменяет запись run под мьютексом.
func (s *RunState) Update(fn func(run *domain.Run)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.Run)
}

// Snapshot возвращает копию run с текущим списком экземпляров.
func (s *RunState) Snapshot() *domain.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run := *s.Run
	run.Jobs = make([]domain.JobInstance, len(s.instances))
	for i, inst := range s.instances {
		run.Jobs[i] = *inst
	}
	if s.Run.Release != nil {
		rel := *s.Run.Release
		run.Release = &rel
	}
	return &run
}

// Jobs возвращает копии экземпляров, отсортированные по шаблону
// в топологическом порядке и затем по метке.
func (s *RunState) Jobs() []domain.JobInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rank := make(map[string]int, len(s.DAG.Order))
	for i, node := range s.DAG.Order {
		rank[node.Name] = i
	}

	out := make([]domain.JobInstance, len(s.instances))
	for i, inst := range s.instances {
		out[i] = *inst
	}
	sort.SliceStable(out, func(i, j int) bool {
		if rank[out[i].Template] != rank[out[j].Template] {
			return rank[out[i].Template] < rank[out[j].Template]
		}
		return out[i].Label() < out[j].Label()
	})
	return out
}

// Stats возвращает статистику выполнения.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RunStats{Total: len(s.instances)}
	for _, inst := range s.instances {
		stats.add(inst.Status)
	}
	return stats
}

// CountJobs считает экземпляры по статусам.
func CountJobs(jobs []domain.JobInstance) RunStats {
	stats := RunStats{Total: len(jobs)}
	for i := range jobs {
		stats.add(jobs[i].Status)
	}
	return stats
}

// RunStats — статистика экземпляров run.
type RunStats struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (st *RunStats) add(status domain.JobStatus) {
	switch status {
	case domain.JobStatusQueued:
		st.Queued++
	case domain.JobStatusRunning:
		st.Running++
	case domain.JobStatusSucceeded:
		st.Succeeded++
	case domain.JobStatusFailed:
		st.Failed++
	case domain.JobStatusSkipped:
		st.Skipped++
	}
}
