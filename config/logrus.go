package config

import (
	"context"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/coordinator_backend/appctx"
	"github.com/sirupsen/logrus"
)

var (
	logg *logrus.Logger
)

func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetLevel(logLevelFromEnv())
	logg.SetOutput(os.Stdout)
}

func logLevelFromEnv() logrus.Level {
	raw := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if raw == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// LoggerWithContext attaches request scoped fields (correlation id, user) to the logger.
func LoggerWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	fields := logrus.Fields{}
	if v, ok := appctx.GetString(ctx, appctx.ContextKeyCorrelationId); ok && v != "" {
		fields["correlationId"] = v
	}
	if v, ok := appctx.GetString(ctx, appctx.ContextKeyUserId); ok && v != "" {
		fields["userId"] = v
	}
	if v, ok := appctx.GetString(ctx, appctx.ContextKeyUserName); ok && v != "" {
		fields["userName"] = v
	}
	if v, ok := appctx.GetString(ctx, appctx.ContextKeyOperation); ok && v != "" {
		fields["operation"] = v
	}
	return logger.WithFields(fields)
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	if logger == nil || err == nil {
		return
	}
	if data != nil {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"context":  context,
			"data":     data,
		}).Error(err.Error())
	} else {
		logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"funcName": funcName,
			"context":  context,
		}).Error(err.Error())
	}
}
