package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitGlobalLogger initializes the zap global logger. Long soak runs
// write to a rotated file, short runs to stderr when logFile is empty.
func InitGlobalLogger(logFile string) {
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	logger := zap.New(zapcore.NewCore(encoder, getLogWriter(logFile), zapcore.DebugLevel))
	zap.ReplaceGlobals(logger)
}

func getLogWriter(logFile string) zapcore.WriteSyncer {
	if logFile == "" {
		return zapcore.AddSync(os.Stderr)
	}
	lumberJackLogger := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    128,
		MaxBackups: 4,
	}
	return zapcore.AddSync(lumberJackLogger)
}
