package core

// Logger is implemented by the services/logger package.
// args may carry errors, map[string]interface{} custom data or other values worth reporting.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
