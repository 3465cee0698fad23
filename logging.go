package pushy

import "go.uber.org/zap"

// NewProductionLogger returns a zap logger configured for JSON, leveled
// production output, collapsing the error zap.NewProduction can return
// (a broken sink configuration) into a no-op logger so callers who just
// want "reasonable defaults" never have to check it themselves.
func NewProductionLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// NewDevelopmentLogger returns a zap logger configured for human-readable,
// console output, suitable for local runs against the development APNs
// environment.
func NewDevelopmentLogger() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
