//go:build debug

package pool

import "go.uber.org/zap"

// defaultLogger prints everything when built with -tags debug.
func defaultLogger() *zap.Logger {
	logger, err := zap.NewDevelopment(zap.AddCaller())
	if err != nil {
		return zap.NewNop()
	}
	return logger.Named("elasticpool")
}
