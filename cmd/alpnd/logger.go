package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Development mode logs to the console; otherwise structured JSON.
func newLogger(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	if development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", "alpnd")), nil
}
