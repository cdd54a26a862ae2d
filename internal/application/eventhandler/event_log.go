package eventhandler

import (
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

// EventLogger returns a handler that writes every event to log as an audit trail.
func EventLogger(log *logger.Logger) shared.EventHandler {
	log = log.With(logger.Component("events"))
	return func(e shared.Event) error {
		env := shared.Envelope(e)
		fields := []logger.Field{
			logger.String("event_type", string(env.Type)),
			logger.UserID(env.AggregateID),
			logger.Any("payload", env.Payload),
		}
		if env.CorrelationID != "" {
			fields = append(fields, logger.String("correlation_id", env.CorrelationID))
		}
		log.Info("domain event", fields...)
		return nil
	}
}
