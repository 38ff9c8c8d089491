package core

// Fields carries structured context alongside a log message.
type Fields map[string]interface{}

// Logger is any service that can log & report messages.
// expected args: error | Fields
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
