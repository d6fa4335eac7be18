package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

// NewMultiCore creates a zapcore.Core that writes to stdout and, when filePath
// is not empty, to a rotating file.
//
// The file output always uses JSON. The console uses the coloured
// human-readable encoder in development and JSON otherwise.
func NewMultiCore(level zapcore.Level, filePath string, fileCfg FileWriterConfig, isDev bool) (zapcore.Core, error) {
	consoleCore := zapcore.NewCore(consoleEncoder(isDev), zapcore.Lock(os.Stdout), level)
	if filePath == "" {
		return consoleCore, nil
	}

	fileWriter, err := NewFileWriter(filePath, fileCfg)
	if err != nil {
		return nil, err
	}

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), fileWriter, level)
	return zapcore.NewTee(consoleCore, fileCore), nil
}

// NewMultiCoreWithWriters tees to the provided writers. Used by tests and by
// callers that manage their own sinks.
func NewMultiCoreWithWriters(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), fileWriter, level)
	consoleCore := zapcore.NewCore(consoleEncoder(isDev), consoleWriter, level)
	return zapcore.NewTee(consoleCore, fileCore)
}

func consoleEncoder(isDev bool) zapcore.Encoder {
	if isDev {
		return zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	}
	return zapcore.NewJSONEncoder(NewEncoderConfig())
}
