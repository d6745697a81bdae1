package smrproxy

import "go.uber.org/zap"

// nopLogger is the default logger for every engine constructor. The
// engines never emit logs on the reader or retire hot path, so logging
// only ever matters at construction, shutdown, and the fatal conditions
// in errors.go.
func nopLogger() *zap.Logger {
	return zap.NewNop()
}
