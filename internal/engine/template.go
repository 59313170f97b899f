package engine

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/shaiso/Shipyard/internal/domain"
)

// Context — контекст для рендеринга параметров шагов.
//
// Используется в Go templates для доступа к данным:
//   - {{ .Matrix }}, {{ .Label }}, {{ .Job }}
//   - {{ .Trigger.Ref }}, {{ .Trigger.Tag }}, {{ .Trigger.Event }}
//   - {{ .Steps.step_id.Outputs.key }}
//   - {{ .Env.VAR_NAME }}
//
// Обращение к отсутствующему ключу map — ошибка рендеринга.
// Необязательные значения читаются через index:
//
//	{{ default "none" (index .Env "VAR_NAME") }}
type Context struct {
	// Matrix — значение оси матрицы экземпляра.
	Matrix string `json:"matrix"`

	// Label — метка экземпляра (значение матрицы или имя job).
	Label string `json:"label"`

	// Job — имя шаблона job.
	Job string `json:"job"`

	// RunID — идентификатор run.
	RunID string `json:"run_id"`

	// Trigger — событие, запустившее run.
	Trigger TriggerContext `json:"trigger"`

	// Steps — результаты уже выполненных шагов этого экземпляра.
	Steps map[string]*StepContext `json:"steps"`

	// Env — дополнительные переменные.
	Env map[string]string `json:"env"`
}

// TriggerContext — данные триггера, доступные в шаблонах.
type TriggerContext struct {
	Event    string `json:"event"`
	Ref      string `json:"ref"`
	Tag      string `json:"tag"`
	ShortRef string `json:"short_ref"`
}

// StepContext — результат выполнения шага для использования в шаблонах.
type StepContext struct {
	// Outputs — выходные данные шага.
	Outputs map[string]string `json:"outputs"`

	// Status — статус выполнения: "SUCCEEDED", "FAILED", "SKIPPED".
	Status string `json:"status"`
}

// NewContext создаёт контекст рендеринга для экземпляра job.
func NewContext(inst *domain.JobInstance, trigger domain.Trigger) *Context {
	return &Context{
		Matrix: inst.MatrixValue,
		Label:  inst.Label(),
		Job:    inst.Template,
		RunID:  inst.RunID.String(),
		Trigger: TriggerContext{
			Event:    string(trigger.Event),
			Ref:      trigger.Ref,
			Tag:      trigger.TagName(),
			ShortRef: trigger.ShortRef(),
		},
		Steps: make(map[string]*StepContext),
		Env:   make(map[string]string),
	}
}

// AddStepResult добавляет результат выполнения шага в контекст.
func (c *Context) AddStepResult(stepID string, outputs map[string]string, status string) {
	if outputs == nil {
		outputs = make(map[string]string)
	}
	c.Steps[stepID] = &StepContext{
		Outputs: outputs,
		Status:  status,
	}
}

// SetEnv устанавливает переменную.
func (c *Context) SetEnv(key, value string) {
	c.Env[key] = value
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// default — возвращает значение по умолчанию, если второй аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// coalesce — возвращает первое непустое значение
	"coalesce": func(values ...string) string {
		for _, v := range values {
			if v != "" {
				return v
			}
		}
		return ""
	},

	"join":       func(sep string, items []string) string { return strings.Join(items, sep) },
	"split":      func(sep, s string) []string { return strings.Split(s, sep) },
	"contains":   func(substr, s string) bool { return strings.Contains(s, substr) },
	"hasPrefix":  func(prefix, s string) bool { return strings.HasPrefix(s, prefix) },
	"hasSuffix":  func(suffix, s string) bool { return strings.HasSuffix(s, suffix) },
	"trimPrefix": func(prefix, s string) string { return strings.TrimPrefix(s, prefix) },
	"trimSuffix": func(suffix, s string) string { return strings.TrimSuffix(s, suffix) },
	"lower":      strings.ToLower,
	"upper":      strings.ToUpper,
	"trim":       strings.TrimSpace,
	"replace":    strings.ReplaceAll,
}

// Render рендерит строковый шаблон с контекстом.
//
// Шаблон может содержать Go template выражения:
//
//	{{ .Matrix }}
//	{{ .Steps.build.Outputs.path }}
//	{{ if hasPrefix "refs/tags/" .Trigger.Ref }}...{{ end }}
//
// Отсутствующий шаг или выход — ErrTemplateRender, а не "<no value>".
func Render(tmpl string, data any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Option("missingkey=error").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderParams рендерит все параметры шага.
// Исходная map не изменяется.
func RenderParams(params map[string]string, ctx *Context) (map[string]string, error) {
	result := make(map[string]string, len(params))
	for key, val := range params {
		rendered, err := Render(val, ctx)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", key, err)
		}
		result[key] = rendered
	}
	return result, nil
}

// MustRender рендерит шаблон и паникует при ошибке.
// Используется только для тестов.
func MustRender(tmpl string, data any) string {
	result, err := Render(tmpl, data)
	if err != nil {
		panic(err)
	}
	return result
}
