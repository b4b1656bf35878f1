package logging

// Tee returns a logger that forwards every entry to all the given loggers.
// This supports logging to the terminal and a structured log file at the same
// time, each with its own formatter. Level gating stays with the underlying
// loggers; SetLevel on the tee applies to all of them.
func Tee(loggers ...Logger) Logger {
	return &teeLogger{loggers: loggers}
}

type teeLogger struct {
	loggers []Logger
}

func (t *teeLogger) Debug(msg string, fields ...Field) {
	for _, l := range t.loggers {
		l.Debug(msg, fields...)
	}
}

func (t *teeLogger) Info(msg string, fields ...Field) {
	for _, l := range t.loggers {
		l.Info(msg, fields...)
	}
}

func (t *teeLogger) Warn(msg string, fields ...Field) {
	for _, l := range t.loggers {
		l.Warn(msg, fields...)
	}
}

func (t *teeLogger) Error(msg string, fields ...Field) {
	for _, l := range t.loggers {
		l.Error(msg, fields...)
	}
}

func (t *teeLogger) WithFields(fields ...Field) Logger {
	derived := make([]Logger, len(t.loggers))
	for i, l := range t.loggers {
		derived[i] = l.WithFields(fields...)
	}
	return &teeLogger{loggers: derived}
}

func (t *teeLogger) WithError(err error) Logger {
	derived := make([]Logger, len(t.loggers))
	for i, l := range t.loggers {
		derived[i] = l.WithError(err)
	}
	return &teeLogger{loggers: derived}
}

func (t *teeLogger) SetLevel(level Level) {
	for _, l := range t.loggers {
		l.SetLevel(level)
	}
}

func (t *teeLogger) GetLevel() Level {
	if len(t.loggers) == 0 {
		return InfoLevel
	}
	return t.loggers[0].GetLevel()
}
