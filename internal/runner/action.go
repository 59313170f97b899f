package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/domain"
)

// Action — один вариант действия шага.
//
// Execute возвращает ошибку при инфраструктурном сбое; логическое
// падение выражается через Result.ExitCode != 0. Оба случая считаются
// падением шага. Действие должно уважать ctx.Done().
type Action interface {
	Name() string
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// Request — входные данные действия.
type Request struct {
	RunID      uuid.UUID
	Trigger    domain.Trigger
	Job        string
	Label      string
	InstanceID uuid.UUID
	StepID     string

	// Params — параметры шага после рендеринга шаблонов.
	Params map[string]string

	// Workspace — локальное хранилище экземпляра.
	Workspace *Workspace

	// Upstream — снимок экземпляров job, от которых зависит эта job.
	Upstream []domain.JobInstance

	Logger *slog.Logger
}

// Log возвращает логгер шага или глобальный, если он не задан.
func (r *Request) Log() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Param возвращает параметр или значение по умолчанию.
func (r *Request) Param(key, def string) string {
	if v, ok := r.Params[key]; ok && v != "" {
		return v
	}
	return def
}

// RequireParam возвращает обязательный параметр.
func (r *Request) RequireParam(key string) (string, error) {
	v := r.Params[key]
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: %q is required", ErrInvalidParams, key)
	}
	return v, nil
}

// Result — результат действия.
type Result struct {
	// ExitCode — 0 означает успех.
	ExitCode int

	// Outputs — выходные данные, доступные следующим шагам экземпляра
	// через {{ .Steps.<id>.Outputs.<key> }}.
	Outputs map[string]string

	// Error — описание логической ошибки при ExitCode != 0.
	Error string
}

// Success возвращает успешный результат с outputs.
func Success(outputs map[string]string) *Result {
	if outputs == nil {
		outputs = make(map[string]string)
	}
	return &Result{Outputs: outputs}
}

// actionFunc — Action из функции.
type actionFunc struct {
	name string
	fn   func(ctx context.Context, req *Request) (*Result, error)
}

// ActionFunc создаёт Action из функции.
func ActionFunc(name string, fn func(ctx context.Context, req *Request) (*Result, error)) Action {
	return &actionFunc{name: name, fn: fn}
}

func (a *actionFunc) Name() string { return a.name }

func (a *actionFunc) Execute(ctx context.Context, req *Request) (*Result, error) {
	return a.fn(ctx, req)
}

// Registry — таблица действий по имени.
// Потокобезопасен.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register регистрирует действие.
// Действие с тем же именем перезаписывается.
func (r *Registry) Register(action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[action.Name()] = action
}

// Get возвращает действие по имени.
func (r *Registry) Get(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return action, nil
}

// Has проверяет, зарегистрировано ли действие.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

// Names возвращает отсортированный список действий.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
