package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	unsupportedLogLevelTemplateConstant  = "unsupported log level %q"
	unsupportedLogFormatTemplateConstant = "unsupported log format %q"
	timestampFieldNameConstant           = "timestamp"
	levelFieldNameConstant               = "level"
	messageFieldNameConstant             = "message"
	callerFieldNameConstant              = "caller"
)

// LogLevel enumerates supported diagnostic verbosity levels.
type LogLevel string

// LogFormat enumerates supported diagnostic encodings.
type LogFormat string

// Supported log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Supported log formats.
const (
	LogFormatStructured LogFormat = "structured"
	LogFormatConsole    LogFormat = "console"
)

// LoggerOutputs pairs the diagnostic logger with a console logger meant for human-facing progress lines.
// The console logger discards output when the structured format is active.
type LoggerOutputs struct {
	DiagnosticLogger *zap.Logger
	ConsoleLogger    *zap.Logger
}

// LoggerFactory builds zap loggers writing to a single sink, standard error by default.
type LoggerFactory struct {
	output zapcore.WriteSyncer
}

// NewLoggerFactory constructs a LoggerFactory writing to standard error.
func NewLoggerFactory() LoggerFactory {
	return LoggerFactory{output: zapcore.Lock(zapcore.AddSync(os.Stderr))}
}

// NewLoggerFactoryWithOutput constructs a LoggerFactory writing to the provided writer.
func NewLoggerFactoryWithOutput(writer io.Writer) LoggerFactory {
	if writer == nil {
		return NewLoggerFactory()
	}
	return LoggerFactory{output: zapcore.Lock(zapcore.AddSync(writer))}
}

// CreateLoggerOutputs builds the diagnostic and console loggers for the requested level and format.
func (factory LoggerFactory) CreateLoggerOutputs(logLevel LogLevel, logFormat LogFormat) (LoggerOutputs, error) {
	zapLevel, levelError := resolveZapLevel(logLevel)
	if levelError != nil {
		return LoggerOutputs{}, levelError
	}

	sink := factory.output
	if sink == nil {
		sink = zapcore.Lock(zapcore.AddSync(os.Stderr))
	}

	switch LogFormat(strings.ToLower(strings.TrimSpace(string(logFormat)))) {
	case LogFormatStructured:
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = timestampFieldNameConstant
		encoderConfig.LevelKey = levelFieldNameConstant
		encoderConfig.MessageKey = messageFieldNameConstant
		encoderConfig.CallerKey = callerFieldNameConstant
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		diagnosticCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, zapLevel)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(diagnosticCore, zap.AddCaller()),
			ConsoleLogger:    zap.NewNop(),
		}, nil
	case LogFormatConsole:
		diagnosticConfig := zap.NewDevelopmentEncoderConfig()
		diagnosticConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		diagnosticCore := zapcore.NewCore(zapcore.NewConsoleEncoder(diagnosticConfig), sink, zapLevel)

		consoleConfig := zapcore.EncoderConfig{
			MessageKey:     messageFieldNameConstant,
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeDuration: zapcore.StringDurationEncoder,
		}
		consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), sink, zapLevel)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(diagnosticCore),
			ConsoleLogger:    zap.New(consoleCore),
		}, nil
	default:
		return LoggerOutputs{}, fmt.Errorf(unsupportedLogFormatTemplateConstant, logFormat)
	}
}

func resolveZapLevel(logLevel LogLevel) (zapcore.Level, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(string(logLevel)))) {
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo:
		return zapcore.InfoLevel, nil
	case LogLevelWarn:
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf(unsupportedLogLevelTemplateConstant, logLevel)
	}
}
