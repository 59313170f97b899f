package release

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/runner"
)

// DefaultAssetName — шаблон имени файла в релизе.
// Подстановки: {label}, {artifact}, {tag}.
const DefaultAssetName = "{label}-{artifact}"

// Action — действие "release" для runner.
//
// Параметры:
//   - artifact (обязательный) — имя артефакта у каждой платформы
//   - from — метки платформ через запятую; по умолчанию метки успешно
//     завершённых матричных экземпляров зависимостей (если матричных
//     зависимостей нет, то метки всех успешных экземпляров)
//   - asset_name — шаблон имени файла (default: {label}-{artifact})
//   - content_type — переопределяет тип содержимого артефакта
//   - tag_prefix — переопределяет префикс предиката
//   - title — заголовок релиза
//   - prerelease — "true"/"false"; по умолчанию по дефису в теге
//
// Outputs: release_state, tag, assets, reason.
type Action struct {
	Gate *Gate
}

// NewAction создаёт действие поверх Gate.
func NewAction(gate *Gate) *Action {
	return &Action{Gate: gate}
}

// Name возвращает имя действия.
func (a *Action) Name() string { return "release" }

// Execute запускает Release Gate.
func (a *Action) Execute(ctx context.Context, req *runner.Request) (*runner.Result, error) {
	name, err := req.RequireParam("artifact")
	if err != nil {
		return nil, err
	}

	labels := splitLabels(req.Param("from", ""))
	if len(labels) == 0 {
		labels = upstreamLabels(req.Upstream)
	}

	tag := req.Trigger.TagName()
	nameTmpl := req.Param("asset_name", DefaultAssetName)

	assets := make([]AssetSpec, 0, len(labels))
	for _, label := range labels {
		assets = append(assets, AssetSpec{
			Key:         domain.ArtifactKey{Label: label, Name: name},
			Name:        expandAssetName(nameTmpl, label, name, tag),
			ContentType: req.Param("content_type", ""),
		})
	}

	gateReq := &Request{
		RunID:     req.RunID,
		Trigger:   req.Trigger,
		TagPrefix: req.Param("tag_prefix", ""),
		Title:     req.Param("title", ""),
		Assets:    assets,
	}
	if raw := req.Param("prerelease", ""); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: prerelease %q", runner.ErrInvalidParams, raw)
		}
		gateReq.Prerelease = &v
	}

	outcome, gateErr := a.Gate.Run(ctx, gateReq)

	outputs := map[string]string{
		"release_state": string(outcome.State),
		"reason":        outcome.Reason,
	}
	if outcome.Record != nil {
		outputs["tag"] = outcome.Record.Tag
		outputs["assets"] = strconv.Itoa(len(outcome.Record.Assets))
	}

	if gateErr != nil {
		return &runner.Result{ExitCode: 1, Outputs: outputs, Error: gateErr.Error()}, gateErr
	}
	return runner.Success(outputs), nil
}

// splitLabels разбирает список меток через запятую.
func splitLabels(s string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// upstreamLabels возвращает отсортированные метки успешных экземпляров зависимостей.
// Нематричные зависимости (lint, test) платформами не считаются,
// пока среди зависимостей есть хотя бы одна матричная.
func upstreamLabels(upstream []domain.JobInstance) []string {
	matrixOnly := false
	for i := range upstream {
		if upstream[i].MatrixValue != "" {
			matrixOnly = true
			break
		}
	}

	seen := make(map[string]bool)
	out := make([]string, 0, len(upstream))
	for i := range upstream {
		inst := &upstream[i]
		if inst.Status != domain.JobStatusSucceeded || seen[inst.Label()] {
			continue
		}
		if matrixOnly && inst.MatrixValue == "" {
			continue
		}
		seen[inst.Label()] = true
		out = append(out, inst.Label())
	}
	sort.Strings(out)
	return out
}

// expandAssetName подставляет {label}, {artifact} и {tag}.
func expandAssetName(tmpl, label, artifactName, tag string) string {
	return strings.NewReplacer(
		"{label}", label,
		"{artifact}", artifactName,
		"{tag}", tag,
	).Replace(tmpl)
}

// SummaryFromResults восстанавливает итог Gate из результатов шагов
// экземпляра. Возвращает nil, если шаг release не выполнялся.
func SummaryFromResults(results []domain.StepResult) *domain.ReleaseSummary {
	for _, res := range results {
		if res.Action != "release" || res.Status == domain.StepStatusSkipped {
			continue
		}
		state := domain.ReleaseState(res.Outputs["release_state"])
		if state == "" {
			// Шаг упал до запуска Gate (например, не хватает параметров)
			state = domain.ReleaseStateFailed
		}
		reason := res.Outputs["reason"]
		if reason == "" && state == domain.ReleaseStateFailed {
			reason = res.Error
		}
		return &domain.ReleaseSummary{
			State:  state,
			Tag:    res.Outputs["tag"],
			Reason: reason,
		}
	}
	return nil
}
