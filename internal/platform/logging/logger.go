package logging

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/janisto/swarm-rest-example/internal/platform/timeutil"
)

// Name is the logger name stamped on every entry. The file sink renders it as [Name].
const Name = "swarm-rest"

// FileTimeLayout is the timestamp layout of the file sink (HH:mm:ss,SSS).
const FileTimeLayout = "15:04:05,000"

// ErrAlreadyInitialized is returned by Init when the process logger was built before.
var ErrAlreadyInitialized = errors.New("logger already initialized")

// Options controls how the process-wide logger is built.
type Options struct {
	// Level is the minimum severity written to every sink.
	Level zapcore.Level
	// FilePath enables the plain-text file sink when non-empty.
	FilePath string
}

var (
	loggerOnce  sync.Once
	baseLogger  *zap.Logger
	sugarLogger *zap.SugaredLogger
	loggerErr   error
	closeFile   func()
)

// Init builds the process logger from opts. It must run before the first call to
// Logger; afterwards it returns ErrAlreadyInitialized.
func Init(opts Options) error {
	initialized := false
	loggerOnce.Do(func() {
		initialized = true
		initLogger(opts)
	})
	if !initialized {
		return ErrAlreadyInitialized
	}
	return loggerErr
}

// encodeTimeMicros formats timestamps as RFC 3339 with fixed microsecond precision.
func encodeTimeMicros(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(timeutil.RFC3339Micros))
}

// initLogger constructs the shared zap logger instance: JSON on stdout plus an optional file sink.
func initLogger(opts Options) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(opts.Level)
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = encodeTimeMicros
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.EncodeLevel = encodeSeverity
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.CallerKey = "caller"

	buildOpts := []zap.Option{zap.AddCaller()}
	if opts.FilePath != "" {
		sink, closeFn, err := zap.Open(opts.FilePath)
		if err != nil {
			loggerErr = fmt.Errorf("open log file %s: %w", opts.FilePath, err)
		} else {
			closeFile = closeFn
			fileCore := errorFieldsCore{zapcore.NewCore(zapcore.NewConsoleEncoder(fileEncoderConfig()), sink, cfg.Level)}
			buildOpts = append(buildOpts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
				return zapcore.NewTee(core, fileCore)
			}))
		}
	}

	logger, err := cfg.Build(buildOpts...)
	if err != nil {
		loggerErr = errors.Join(loggerErr, err)
		logger = zap.NewNop()
	}
	baseLogger = logger.Named(Name)
	sugarLogger = baseLogger.Sugar()
}

// fileEncoderConfig renders "HH:mm:ss,SSS LEVEL [logger] (caller) message {error}".
func fileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		CallerKey:        "C",
		MessageKey:       "M",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
		EncodeTime:       zapcore.TimeEncoderOfLayout(FileTimeLayout),
		EncodeLevel:      encodePaddedLevel,
		EncodeName:       encodeBracketName,
		EncodeCaller:     encodeParenCaller,
		EncodeDuration:   zapcore.StringDurationEncoder,
	}
}

// errorFieldsCore keeps only error fields, so file lines read "message" or "message {error}".
type errorFieldsCore struct {
	zapcore.Core
}

func (c errorFieldsCore) With(fields []zapcore.Field) zapcore.Core {
	return errorFieldsCore{c.Core.With(errorFields(fields))}
}

func (c errorFieldsCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c errorFieldsCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, errorFields(fields))
}

func errorFields(fields []zapcore.Field) []zapcore.Field {
	var kept []zapcore.Field
	for _, f := range fields {
		if f.Type == zapcore.ErrorType {
			kept = append(kept, f)
		}
	}
	return kept
}

func encodePaddedLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("%-5s", level.CapitalString()))
}

func encodeBracketName(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + name + "]")
}

func encodeParenCaller(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("(" + caller.TrimmedPath() + ")")
}

// encodeSeverity maps zap levels to Cloud Logging severity names.
func encodeSeverity(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var severity string
	switch level {
	case zapcore.DebugLevel:
		severity = "DEBUG"
	case zapcore.InfoLevel:
		severity = "INFO"
	case zapcore.WarnLevel:
		severity = "WARNING"
	case zapcore.ErrorLevel:
		severity = "ERROR"
	case zapcore.DPanicLevel:
		severity = "CRITICAL"
	case zapcore.PanicLevel:
		severity = "ALERT"
	case zapcore.FatalLevel:
		severity = "EMERGENCY"
	default:
		severity = "DEFAULT"
	}
	enc.AppendString(severity)
}

// ParseLevel converts a textual level (debug, info, warn, error) into a zapcore.Level.
func ParseLevel(text string) (zapcore.Level, error) {
	return zapcore.ParseLevel(text)
}

func defaultInit() {
	initLogger(Options{Level: zapcore.InfoLevel})
}

// Logger returns the process-wide zap.Logger instance.
func Logger() *zap.Logger {
	loggerOnce.Do(defaultInit)
	return baseLogger
}

// Sugar returns a sugared logger sharing the same core as Logger.
func Sugar() *zap.SugaredLogger {
	loggerOnce.Do(defaultInit)
	return sugarLogger
}

// Sync flushes buffered log entries. Call during shutdown.
func Sync() error {
	loggerOnce.Do(defaultInit)
	return baseLogger.Sync()
}

// Close flushes the logger and releases the log file, if one was opened.
func Close() error {
	err := Sync()
	if closeFile != nil {
		closeFile()
		closeFile = nil
	}
	return err
}

// Err reports initialization failure, if any.
func Err() error {
	loggerOnce.Do(defaultInit)
	return loggerErr
}
