package observability

import (
	"go.uber.org/zap"

	"flowershop/internal/config"
)

// NewLogger консольный логгер для development, JSON для остальных окружений
func NewLogger(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.With(
		zap.String("service.name", config.ServiceName),
		zap.String("service.version", config.ServiceVersion),
	), nil
}
