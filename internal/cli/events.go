package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Shipyard/internal/mq"
	"github.com/shaiso/Shipyard/internal/telemetry"
)

// NewEventsCmd создаёт команду чтения событий из RabbitMQ.
//
// Каждое событие выводится одной строкой, в JSON режиме — как есть.
func NewEventsCmd(outputFn func() *Output, amqpURLFn func() string) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail lifecycle events from RabbitMQ",
		Long: `Tail lifecycle events (run.started, job.finished, run.finished,
release.finished) published by shipyard-server.

--key accepts a topic pattern, e.g. "run.*" or "release.finished".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			logger := telemetry.SetupLoggerWith("warn", "text", os.Stderr)

			conn, err := mq.NewConnection(amqpURLFn(), logger)
			if err != nil {
				return fmt.Errorf("connect to RabbitMQ: %w", err)
			}
			defer conn.Close()

			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Binding:  &mq.Binding{Exchange: mq.ExchangeEvents, RoutingKey: mq.RoutingKey(key)},
				Handler:  eventPrinter(out),
				Prefetch: 16,
			})

			out.Success("Listening for events, press Ctrl+C to stop")
			err = consumer.Start(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&key, "key", string(mq.RoutingKeyAllEvents), "Routing key pattern")

	return cmd
}

// eventPrinter возвращает обработчик, печатающий событие.
func eventPrinter(out *Output) mq.Handler {
	return func(_ context.Context, d *mq.Delivery) error {
		if out.IsJSON() {
			out.JSON(d.Message)
			return nil
		}
		out.Line("%s", formatEvent(&d.Message))
		return nil
	}
}

// formatEvent форматирует событие в одну строку.
func formatEvent(msg *mq.Message) string {
	ts := msg.Timestamp.Format("15:04:05")

	switch msg.Type {
	case mq.MessageTypeRunStarted, mq.MessageTypeRunFinished:
		p, err := mq.ParsePayload[mq.RunEventPayload](msg)
		if err != nil {
			break
		}
		line := fmt.Sprintf("%s %-16s run=%s pipeline=%s ref=%s status=%s", ts, msg.Type, p.RunID, p.Pipeline, p.Ref, p.Status)
		if p.Error != "" {
			line += fmt.Sprintf(" error=%q", p.Error)
		}
		return line

	case mq.MessageTypeJobFinished:
		p, err := mq.ParsePayload[mq.JobEventPayload](msg)
		if err != nil {
			break
		}
		line := fmt.Sprintf("%s %-16s run=%s job=%s label=%s status=%s", ts, msg.Type, p.RunID, p.Job, p.Label, p.Status)
		if p.Error != "" {
			line += fmt.Sprintf(" error=%q", p.Error)
		}
		if p.SkipReason != "" {
			line += fmt.Sprintf(" reason=%q", p.SkipReason)
		}
		return line

	case mq.MessageTypeReleaseFinished:
		p, err := mq.ParsePayload[mq.ReleaseEventPayload](msg)
		if err != nil {
			break
		}
		line := fmt.Sprintf("%s %-16s run=%s state=%s tag=%s", ts, msg.Type, p.RunID, p.State, p.Tag)
		if p.Reason != "" {
			line += fmt.Sprintf(" reason=%q", p.Reason)
		}
		return line
	}

	raw, _ := json.Marshal(msg.Payload)
	return fmt.Sprintf("%s %-16s %s", ts, msg.Type, raw)
}

