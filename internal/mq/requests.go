package mq

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaiso/Shipyard/internal/domain"
	"github.com/shaiso/Shipyard/internal/telemetry"
)

// PipelineSource возвращает pipeline по имени.
type PipelineSource interface {
	Pipeline(name string) (*domain.PipelineSpec, error)
}

// RunSubmitter запускает run в фоне.
type RunSubmitter interface {
	Submit(ctx context.Context, spec *domain.PipelineSpec, trigger domain.Trigger) (*domain.Run, error)
}

// NewRunRequestHandler создаёт обработчик очереди runs.requested.
//
// Некорректный запрос (неизвестный pipeline, неверный тип события)
// подтверждается и только логируется: повтор не поможет. Ошибка Submit
// возвращается, и сообщение уходит обратно в очередь. Логгер берётся
// из контекста доставки, logger — запасной.
func NewRunRequestHandler(pipelines PipelineSource, runs RunSubmitter, logger *slog.Logger) Handler {
	return func(ctx context.Context, d *Delivery) error {
		logger := telemetry.FromContext(ctx, logger)

		if d.Message.Type != MessageTypeRunRequested {
			logger.Warn("unexpected message type", "type", d.Message.Type, "message_id", d.Message.ID)
			return nil
		}

		req, err := ParsePayload[RunRequestPayload](&d.Message)
		if err != nil {
			logger.Error("invalid run request", "message_id", d.Message.ID, "error", err)
			return nil
		}

		trigger, err := requestTrigger(req)
		if err != nil {
			logger.Error("invalid run request", "message_id", d.Message.ID, "error", err)
			return nil
		}

		spec, err := pipelines.Pipeline(req.Pipeline)
		if err != nil {
			logger.Error("run request rejected",
				"message_id", d.Message.ID,
				"pipeline", req.Pipeline,
				"error", err,
			)
			return nil
		}

		run, err := runs.Submit(ctx, spec, trigger)
		if err != nil {
			return fmt.Errorf("submit %s: %w", req.Pipeline, err)
		}

		logger.Info("run requested via queue",
			"run_id", run.ID,
			"pipeline", run.Pipeline,
			"ref", trigger.Ref,
		)
		return nil
	}
}

// requestTrigger строит Trigger из запроса. Пустой тип события выводится из ref.
func requestTrigger(req RunRequestPayload) (domain.Trigger, error) {
	if req.Pipeline == "" {
		return domain.Trigger{}, fmt.Errorf("pipeline is required")
	}
	if req.Ref == "" {
		return domain.Trigger{}, fmt.Errorf("ref is required")
	}

	event := req.Event
	switch {
	case event == "" && strings.HasPrefix(req.Ref, domain.RefTagsPrefix):
		event = domain.EventTag
	case event == "":
		event = domain.EventPush
	default:
		parsed, err := domain.ParseEventKind(string(event))
		if err != nil {
			return domain.Trigger{}, err
		}
		event = parsed
	}

	return domain.Trigger{Event: event, Ref: req.Ref}, nil
}
