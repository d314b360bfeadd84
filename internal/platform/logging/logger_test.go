package logging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/janisto/swarm-rest-example/internal/platform/timeutil"
)

// captureLogOutput captures a single log entry emitted by logFn and returns it as a map.
func captureLogOutput(t *testing.T, logFn func(*zap.Logger)) map[string]any {
	t.Helper()

	resetLoggerForTest()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	defer func() { _ = r.Close() }()

	origStdout := os.Stdout
	origStderr := os.Stderr
	os.Stdout = w
	os.Stderr = w
	defer func() {
		os.Stdout = origStdout
		os.Stderr = origStderr
	}()

	logger := Logger()
	logFn(logger)
	_ = logger.Sync()

	if closeErr := w.Close(); closeErr != nil {
		t.Fatalf("failed to close writer: %v", closeErr)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read log output: %v", err)
	}

	line := strings.TrimSpace(string(data))
	if line == "" {
		t.Fatalf("expected log output, got empty string")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("failed to unmarshal log JSON: %v", err)
	}

	return payload
}

// resetLoggerForTest clears the singleton state so tests can capture fresh log output.
func resetLoggerForTest() {
	if closeFile != nil {
		closeFile()
	}
	loggerOnce = sync.Once{}
	baseLogger = nil
	sugarLogger = nil
	loggerErr = nil
	closeFile = nil
}

func TestLoggerStructuredOutput(t *testing.T) {
	payload := captureLogOutput(t, func(l *zap.Logger) {
		l.Info("GET /service/say/World")
	})

	if got := payload["severity"]; got != "INFO" {
		t.Fatalf("expected severity INFO, got %v", got)
	}
	if _, exists := payload["level"]; exists {
		t.Fatalf("did not expect level field, but found one: %v", exists)
	}
	if msg, ok := payload["message"].(string); !ok || msg != "GET /service/say/World" {
		t.Fatalf("expected message 'GET /service/say/World', got %v", payload["message"])
	}
	if got := payload["logger"]; got != Name {
		t.Fatalf("expected logger %q, got %v", Name, got)
	}

	ts, ok := payload["timestamp"].(string)
	if !ok {
		t.Fatalf("expected timestamp field to be a string, got %T", payload["timestamp"])
	}
	if _, err := time.Parse(timeutil.RFC3339Micros, ts); err != nil {
		t.Fatalf("timestamp is not RFC3339Micros: %v", err)
	}
}

func TestSugarLoggerStructuredOutput(t *testing.T) {
	payload := captureLogOutput(t, func(*zap.Logger) {
		Sugar().Warnw("slow response", "latency_ms", 120)
	})

	if got := payload["severity"]; got != "WARNING" {
		t.Fatalf("expected severity WARNING, got %v", got)
	}
	if latency, ok := payload["latency_ms"].(float64); !ok || latency != 120 {
		t.Fatalf("expected latency_ms 120, got %v", payload["latency_ms"])
	}
}

func TestLoggerIncludesCallerField(t *testing.T) {
	payload := captureLogOutput(t, func(l *zap.Logger) {
		l.Info("caller test")
	})

	caller, ok := payload["caller"].(string)
	if !ok {
		t.Fatal("expected caller field to be a string")
	}
	if !strings.Contains(caller, "logger_test.go") {
		t.Fatalf("expected caller to reference logger_test.go, got %s", caller)
	}
}

func TestEncodeSeverityMapping(t *testing.T) {
	tests := []struct {
		level    zapcore.Level
		expected string
	}{
		{zapcore.DebugLevel, "DEBUG"},
		{zapcore.InfoLevel, "INFO"},
		{zapcore.WarnLevel, "WARNING"},
		{zapcore.ErrorLevel, "ERROR"},
		{zapcore.DPanicLevel, "CRITICAL"},
		{zapcore.PanicLevel, "ALERT"},
		{zapcore.FatalLevel, "EMERGENCY"},
		{zapcore.Level(99), "DEFAULT"},
	}

	for _, tt := range tests {
		enc := &captureArrayEncoder{}
		encodeSeverity(tt.level, enc)
		if len(enc.values) != 1 || enc.values[0] != tt.expected {
			t.Fatalf("encodeSeverity(%v) = %v, want %s", tt.level, enc.values, tt.expected)
		}
	}
}

func TestEncodePaddedLevel(t *testing.T) {
	tests := []struct {
		level    zapcore.Level
		expected string
	}{
		{zapcore.InfoLevel, "INFO "},
		{zapcore.WarnLevel, "WARN "},
		{zapcore.ErrorLevel, "ERROR"},
		{zapcore.DebugLevel, "DEBUG"},
	}

	for _, tt := range tests {
		enc := &captureArrayEncoder{}
		encodePaddedLevel(tt.level, enc)
		if len(enc.values) != 1 || enc.values[0] != tt.expected {
			t.Fatalf("encodePaddedLevel(%v) = %q, want %q", tt.level, enc.values, tt.expected)
		}
	}
}

func TestEncodeTimeMicrosFormatsCorrectly(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{
			name:     "UTC time with microseconds",
			input:    time.Date(2024, 6, 15, 10, 30, 45, 123456000, time.UTC),
			expected: "2024-06-15T10:30:45.123456Z",
		},
		{
			name:     "non-UTC time converts to UTC",
			input:    time.Date(2024, 6, 15, 12, 0, 0, 500000000, time.FixedZone("EST", -5*60*60)),
			expected: "2024-06-15T17:00:00.500000Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &captureArrayEncoder{}
			encodeTimeMicros(tt.input, enc)
			if len(enc.values) != 1 || enc.values[0] != tt.expected {
				t.Fatalf("expected %q, got %v", tt.expected, enc.values)
			}
		})
	}
}

func TestFileTimeLayout(t *testing.T) {
	ts := time.Date(2024, 6, 15, 9, 5, 7, 42000000, time.UTC)
	if got := ts.Format(FileTimeLayout); got != "09:05:07,042" {
		t.Fatalf("expected 09:05:07,042, got %q", got)
	}
}

func TestLoggerSingletonBehavior(t *testing.T) {
	resetLoggerForTest()

	if Logger() != Logger() {
		t.Fatal("expected Logger() to return the same instance")
	}
	if Sugar().Desugar().Core() != Logger().Core() {
		t.Fatal("expected Logger and Sugar to share the same core")
	}
}

func TestLoggerConcurrentAccess(t *testing.T) {
	resetLoggerForTest()

	var wg sync.WaitGroup
	results := make(chan *zap.Logger, 100)

	for range 100 {
		wg.Go(func() {
			results <- Logger()
		})
	}

	wg.Wait()
	close(results)

	var first *zap.Logger
	for logger := range results {
		if first == nil {
			first = logger
		} else if logger != first {
			t.Fatal("concurrent Logger() calls returned different instances")
		}
	}
}

func TestErrReturnsNilOnSuccess(t *testing.T) {
	resetLoggerForTest()

	if err := Err(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if baseLogger == nil {
		t.Fatal("expected baseLogger to be initialized after Err()")
	}
}

func TestInitAfterLoggerReturnsAlreadyInitialized(t *testing.T) {
	resetLoggerForTest()
	_ = Logger()

	err := Init(Options{Level: zapcore.InfoLevel})
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestInitWritesFileSink(t *testing.T) {
	resetLoggerForTest()
	t.Cleanup(resetLoggerForTest)

	path := filepath.Join(t.TempDir(), "swarm.log")
	if err := Init(Options{Level: zapcore.InfoLevel, FilePath: path}); err != nil {
		t.Fatalf("init: %v", err)
	}

	Logger().Info("file sink test", zap.String("name", "World"))
	Logger().Debug("below threshold")
	if err := Close(); err != nil {
		t.Logf("Close returned error (may be expected for stdout): %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)

	line := regexp.MustCompile(
		`(?m)^\d{2}:\d{2}:\d{2},\d{3} INFO  \[swarm-rest\] \(logging/logger_test\.go:\d+\) file sink test$`,
	)
	if !line.MatchString(content) {
		t.Fatalf("unexpected file log content: %q", content)
	}
	if strings.Contains(content, "below threshold") {
		t.Fatalf("debug entry should be filtered at INFO, got %q", content)
	}
}

func TestFileSinkKeepsOnlyErrorFields(t *testing.T) {
	resetLoggerForTest()
	t.Cleanup(resetLoggerForTest)

	path := filepath.Join(t.TempDir(), "swarm.log")
	if err := Init(Options{Level: zapcore.InfoLevel, FilePath: path}); err != nil {
		t.Fatalf("init: %v", err)
	}

	Logger().With(zap.String("requestId", "req-1")).Error("write failed", zap.Int("status", 500), zap.Error(errors.New("disk full")))
	_ = Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `write failed {"error": "disk full"}`) {
		t.Fatalf("expected message followed by error only, got %q", content)
	}
	if strings.Contains(content, "req-1") || strings.Contains(content, "status") {
		t.Fatalf("expected non-error fields dropped from file sink, got %q", content)
	}
}

func TestContextHelpersReportCallSite(t *testing.T) {
	resetLoggerForTest()
	t.Cleanup(resetLoggerForTest)

	path := filepath.Join(t.TempDir(), "swarm.log")
	if err := Init(Options{Level: zapcore.InfoLevel, FilePath: path}); err != nil {
		t.Fatalf("init: %v", err)
	}

	ctx := context.Background()
	LogInfo(ctx, "server starting", zap.String("addr", ":8080"))
	LogWarn(ctx, "slow start")
	LogError(ctx, "boom", errors.New("bad"))
	_ = Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)

	for _, pattern := range []string{
		`(?m)^\d{2}:\d{2}:\d{2},\d{3} INFO  \[swarm-rest\] \(logging/logger_test\.go:\d+\) server starting$`,
		`(?m)^\d{2}:\d{2}:\d{2},\d{3} WARN  \[swarm-rest\] \(logging/logger_test\.go:\d+\) slow start$`,
		`(?m)^\d{2}:\d{2}:\d{2},\d{3} ERROR \[swarm-rest\] \(logging/logger_test\.go:\d+\) boom \{"error": "bad"\}$`,
	} {
		if !regexp.MustCompile(pattern).MatchString(content) {
			t.Errorf("expected line matching %s in %q", pattern, content)
		}
	}
	if strings.Contains(content, "context.go") {
		t.Fatalf("caller must name the call site, not the helper: %q", content)
	}
}

func TestInitHonoursLevel(t *testing.T) {
	resetLoggerForTest()
	t.Cleanup(resetLoggerForTest)

	path := filepath.Join(t.TempDir(), "swarm.log")
	if err := Init(Options{Level: zapcore.ErrorLevel, FilePath: path}); err != nil {
		t.Fatalf("init: %v", err)
	}

	Logger().Warn("warning dropped")
	Logger().Error("error kept")
	_ = Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(data), "warning dropped") {
		t.Fatalf("warn entry should be filtered at ERROR level: %q", data)
	}
	if !strings.Contains(string(data), "ERROR [swarm-rest]") {
		t.Fatalf("expected error entry in file, got %q", data)
	}
}

func TestInitReportsUnwritableFile(t *testing.T) {
	resetLoggerForTest()
	t.Cleanup(resetLoggerForTest)

	path := filepath.Join(t.TempDir(), "missing", "dir", "swarm.log")
	if err := Init(Options{Level: zapcore.InfoLevel, FilePath: path}); err == nil {
		t.Fatal("expected error for unwritable log file")
	}
	if Logger() == nil {
		t.Fatal("expected a usable stdout logger after file failure")
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warn")
	if err != nil || lvl != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %v (%v)", lvl, err)
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

// captureArrayEncoder collects strings appended via the PrimitiveArrayEncoder interface.
type captureArrayEncoder struct {
	values []string
}

func (c *captureArrayEncoder) AppendBool(bool)             {}
func (c *captureArrayEncoder) AppendByteString([]byte)     {}
func (c *captureArrayEncoder) AppendComplex128(complex128) {}
func (c *captureArrayEncoder) AppendComplex64(complex64)   {}
func (c *captureArrayEncoder) AppendFloat64(float64)       {}
func (c *captureArrayEncoder) AppendFloat32(float32)       {}
func (c *captureArrayEncoder) AppendInt(int)               {}
func (c *captureArrayEncoder) AppendInt64(int64)           {}
func (c *captureArrayEncoder) AppendInt32(int32)           {}
func (c *captureArrayEncoder) AppendInt16(int16)           {}
func (c *captureArrayEncoder) AppendInt8(int8)             {}
func (c *captureArrayEncoder) AppendString(s string)       { c.values = append(c.values, s) }
func (c *captureArrayEncoder) AppendUint(uint)             {}
func (c *captureArrayEncoder) AppendUint64(uint64)         {}
func (c *captureArrayEncoder) AppendUint32(uint32)         {}
func (c *captureArrayEncoder) AppendUint16(uint16)         {}
func (c *captureArrayEncoder) AppendUint8(uint8)           {}
func (c *captureArrayEncoder) AppendUintptr(uintptr)       {}
