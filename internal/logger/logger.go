package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger *logrus.Logger

// InitLogger sets up the global logger: JSON to stdout plus rotating
// error/info/debug files under logDir.
func InitLogger(logLevel, logDir string) error {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	l := logrus.New()

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})

	l.AddHook(&FileHook{
		ErrorWriter: rotating(filepath.Join(logDir, "error.log")),
		InfoWriter:  rotating(filepath.Join(logDir, "info.log")),
		DebugWriter: rotating(filepath.Join(logDir, "debug.log")),
	})

	l.SetOutput(os.Stdout)

	Logger = l
	return nil
}

func rotating(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
}

// FileHook routes entries to a writer per level group.
type FileHook struct {
	ErrorWriter io.Writer
	InfoWriter  io.Writer
	DebugWriter io.Writer
}

func (hook *FileHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}

	var w io.Writer
	switch entry.Level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		w = hook.ErrorWriter
	case logrus.WarnLevel, logrus.InfoLevel:
		w = hook.InfoWriter
	case logrus.DebugLevel, logrus.TraceLevel:
		w = hook.DebugWriter
	}
	if w == nil {
		return nil
	}

	_, err = w.Write([]byte(line))
	return err
}

func (hook *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fields is shorthand for structured log fields.
type Fields = map[string]interface{}

func Error(msg string, fields Fields) {
	if Logger != nil {
		Logger.WithFields(fields).Error(msg)
	}
}

func Info(msg string, fields Fields) {
	if Logger != nil {
		Logger.WithFields(fields).Info(msg)
	}
}

func Debug(msg string, fields Fields) {
	if Logger != nil {
		Logger.WithFields(fields).Debug(msg)
	}
}

func Warn(msg string, fields Fields) {
	if Logger != nil {
		Logger.WithFields(fields).Warn(msg)
	}
}

func InfoMsg(msg string) {
	Info(msg, nil)
}

func DebugMsg(msg string) {
	Debug(msg, nil)
}

func WarnMsg(msg string) {
	Warn(msg, nil)
}
