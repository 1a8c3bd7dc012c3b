package logger

import (
	"io"
	"log"
	"os"

	waLog "go.mau.fi/whatsmeow/util/log"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

type Logger struct {
	prefix string
	level  Level
	output io.Writer
}

func New(prefix string, level Level) *Logger {
	return &Logger{
		prefix: prefix,
		level:  level,
		output: os.Stdout,
	}
}

func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

func (l *Logger) logf(min Level, tag, format string, args ...interface{}) {
	if l.level <= min {
		log.New(l.output, l.prefix+tag, log.LstdFlags).Printf(format, args...)
	}
}

func (l *Logger) logln(min Level, tag string, args ...interface{}) {
	if l.level <= min {
		log.New(l.output, l.prefix+tag, log.LstdFlags).Println(args...)
	}
}

func (l *Logger) Debug(args ...interface{}) { l.logln(DEBUG, "[DEBUG] ", args...) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(DEBUG, "[DEBUG] ", format, args...)
}

func (l *Logger) Info(args ...interface{}) { l.logln(INFO, "[INFO] ", args...) }

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(INFO, "[INFO] ", format, args...)
}

func (l *Logger) Warn(args ...interface{}) { l.logln(WARN, "[WARN] ", args...) }

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(WARN, "[WARN] ", format, args...)
}

func (l *Logger) Error(args ...interface{}) { l.logln(ERROR, "[ERROR] ", args...) }

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(ERROR, "[ERROR] ", format, args...)
}

func (l *Logger) Fatal(args ...interface{}) {
	log.New(l.output, l.prefix+"[FATAL] ", log.LstdFlags).Fatalln(args...)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	log.New(l.output, l.prefix+"[FATAL] ", log.LstdFlags).Fatalf(format, args...)
}

// WhatsAppLogger adapta o Logger para a interface waLog.Logger do whatsmeow.
type WhatsAppLogger struct {
	logger *Logger
}

func NewWhatsAppLogger(prefix string, level Level) waLog.Logger {
	return &WhatsAppLogger{logger: New(prefix, level)}
}

func (w *WhatsAppLogger) Debugf(format string, args ...interface{}) {
	w.logger.Debugf(format, args...)
}

func (w *WhatsAppLogger) Infof(format string, args ...interface{}) {
	w.logger.Infof(format, args...)
}

func (w *WhatsAppLogger) Warnf(format string, args ...interface{}) {
	w.logger.Warnf(format, args...)
}

func (w *WhatsAppLogger) Errorf(format string, args ...interface{}) {
	w.logger.Errorf(format, args...)
}

func (w *WhatsAppLogger) Sub(module string) waLog.Logger {
	return &WhatsAppLogger{
		logger: &Logger{
			prefix: w.logger.prefix + "[" + module + "] ",
			level:  w.logger.level,
			output: w.logger.output,
		},
	}
}
