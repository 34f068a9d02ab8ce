// Package logger is the process-wide structured logger.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log = New(zapcore.DebugLevel, os.Stdout)

// New builds a console logger writing to w.
func New(level zapcore.Level, w zapcore.WriteSyncer) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		NameKey:      "logger",
		CallerKey:    "caller",
		MessageKey:   "msg",
		LineEnding:   zapcore.DefaultLineEnding,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), w, level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// Init replaces the global logger; production drops debug output.
func Init(production bool) {
	level := zapcore.DebugLevel
	if production {
		level = zapcore.InfoLevel
	}
	Log = New(level, os.Stdout)
}

func Sync() { _ = Log.Sync() }

func Debugf(format string, args ...interface{}) { Log.Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...interface{})  { Log.Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...interface{})  { Log.Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...interface{}) { Log.Error(fmt.Sprintf(format, args...)) }

// Fatalf logs and exits the process.
func Fatalf(format string, args ...interface{}) { Log.Fatal(fmt.Sprintf(format, args...)) }
