package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/domain"
)

// ValidateMatrix проверяет ось матрицы шаблона:
// значения не пустые (пробелы не в счёт) и не повторяются.
func ValidateMatrix(tmpl *domain.JobTemplate) error {
	seen := make(map[string]bool, len(tmpl.Matrix))
	for i, v := range tmpl.Matrix {
		if strings.TrimSpace(v) == "" {
			return NewValidationError(tmpl.Name, "matrix",
				fmt.Sprintf("matrix value %d is empty", i), ErrInvalidMatrix)
		}
		if seen[v] {
			return NewValidationError(tmpl.Name, "matrix",
				fmt.Sprintf("duplicate matrix value: %s", v), ErrInvalidMatrix)
		}
		seen[v] = true
	}
	return nil
}

// Expand разворачивает шаблон по оси матрицы.
//
// Для оси из n значений возвращает n экземпляров в порядке оси,
// у каждого своя глубокая копия шагов. Пустая ось даёт ровно один
// экземпляр с пустым MatrixValue. Некорректная ось отклоняется до
// создания экземпляров.
func Expand(runID uuid.UUID, tmpl *domain.JobTemplate) ([]*domain.JobInstance, error) {
	if err := ValidateMatrix(tmpl); err != nil {
		return nil, err
	}

	values := tmpl.Matrix
	if len(values) == 0 {
		values = []string{""}
	}

	instances := make([]*domain.JobInstance, 0, len(values))
	for _, v := range values {
		instances = append(instances, &domain.JobInstance{
			ID:          uuid.New(),
			RunID:       runID,
			Template:    tmpl.Name,
			MatrixValue: v,
			Status:      domain.JobStatusQueued,
			Steps:       cloneSteps(tmpl.Steps),
		})
	}

	return instances, nil
}

// ExpandAll разворачивает все шаблоны pipeline в порядке DAG.
func ExpandAll(runID uuid.UUID, dag *DAG) ([]*domain.JobInstance, error) {
	out := make([]*domain.JobInstance, 0, len(dag.Order))
	for _, node := range dag.Order {
		instances, err := Expand(runID, node.Job)
		if err != nil {
			return nil, err
		}
		out = append(out, instances...)
	}
	return out, nil
}

func cloneSteps(steps []domain.StepDef) []domain.StepDef {
	out := make([]domain.StepDef, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}
