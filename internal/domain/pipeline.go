package domain

// PipelineSpec — декларативное описание pipeline.
//
// Пример YAML:
//
//	name: release
//	jobs:
//	  - name: build
//	    matrix: [linux, macos, windows]
//	    steps:
//	      - action: shell
//	        params: {command: "make build OS={{ .Matrix }}"}
//	  - name: release
//	    depends_on: [build]
//	    steps:
//	      - action: release
//	        params: {artifact: shipyard.tar.gz}
type PipelineSpec struct {
	// Name — имя pipeline.
	Name string `json:"name" yaml:"name"`

	// Defaults — значения по умолчанию для всех шагов.
	Defaults *StepDefaults `json:"defaults,omitempty" yaml:"defaults,omitempty"`

	// Jobs — шаблоны job. Порядок не важен, зависимости задаются через DependsOn.
	Jobs []JobTemplate `json:"jobs" yaml:"jobs"`
}

// StepDefaults — настройки шагов, применяемые если шаг не задал свои.
type StepDefaults struct {
	TimeoutSec int          `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
	Retry      *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// Job возвращает шаблон по имени.
func (p *PipelineSpec) Job(name string) (*JobTemplate, bool) {
	for i := range p.Jobs {
		if p.Jobs[i].Name == name {
			return &p.Jobs[i], true
		}
	}
	return nil, false
}

// JobTemplate — переиспользуемое описание job.
type JobTemplate struct {
	// Name — уникальное имя job внутри pipeline.
	Name string `json:"name" yaml:"name"`

	// Matrix — ось матрицы (например, платформы).
	// Пустая ось означает один экземпляр без значения матрицы.
	Matrix []string `json:"matrix,omitempty" yaml:"matrix,omitempty"`

	// FailFast — политика fail-fast. Nil означает true.
	FailFast *bool `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`

	// DependsOn — имена job, которые должны завершиться до этой.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Steps — упорядоченный список шагов.
	Steps []StepDef `json:"steps" yaml:"steps"`
}

// IsFailFast возвращает значение fail-fast с учётом default=true.
func (t *JobTemplate) IsFailFast() bool {
	return t.FailFast == nil || *t.FailFast
}

// StepDef — описание одного шага.
type StepDef struct {
	// ID — идентификатор шага. По умолчанию "step-N".
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Action — тип действия: shell, set-output, package, upload-artifact, release.
	Action string `json:"action" yaml:"action"`

	// Params — параметры действия. Значения могут содержать шаблоны.
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`

	// BestEffort — падение шага не останавливает экземпляр.
	BestEffort bool `json:"best_effort,omitempty" yaml:"best_effort,omitempty"`

	// TimeoutSec — таймаут шага в секундах.
	TimeoutSec int `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`

	// Retry — политика повторов.
	Retry *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// Clone возвращает глубокую копию шага.
func (s StepDef) Clone() StepDef {
	out := s
	if s.Params != nil {
		out.Params = make(map[string]string, len(s.Params))
		for k, v := range s.Params {
			out.Params[k] = v
		}
	}
	if s.Retry != nil {
		r := *s.Retry
		out.Retry = &r
	}
	return out
}

// RetryPolicy — политика повторных попыток.
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// Backoff — стратегия задержки: "fixed" или "exponential".
	Backoff string `json:"backoff,omitempty" yaml:"backoff,omitempty"`

	// DelaySec — базовая задержка в секундах.
	DelaySec int `json:"delay_sec,omitempty" yaml:"delay_sec,omitempty"`
}
