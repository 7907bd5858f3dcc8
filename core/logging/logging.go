package logging

import (
	"go.uber.org/zap"
)

// Logger is the package-level logger used by SDK components that were not
// given an explicit logger. It defaults to zap's production configuration;
// applications embedding the SDK can replace it once at startup.
var Logger *zap.Logger

func init() {
	logger, err := zap.NewProduction()
	if err != nil {
		// zap.NewProduction only fails on invalid config; ours is the default
		logger = zap.NewNop()
	}
	Logger = logger
}

// SetLogger replaces the package-level logger. Not safe for concurrent use
// with in-flight operations; call it during process initialization.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	Logger = logger
}
