package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Global logger instance
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Initialize sets up the global logger. When extra writers are given (for example a
// journal file opened with FileWriter) every entry is written to the console and to them.
func Initialize(logLevel string, extra ...io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
	}

	var output io.Writer = consoleWriter
	if len(extra) > 0 {
		writers := append([]io.Writer{consoleWriter}, extra...)
		output = zerolog.MultiLevelWriter(writers...)
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(logLevel))

	// Replace standard log with zerolog
	log.Logger = Logger
}

// ParseLevel maps the LOG_LEVEL values used in .env files to zerolog levels.
// Unknown or empty values fall back to info.
func ParseLevel(logLevel string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter opens a log file for use alongside console logging.
func FileWriter(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Setup initializes the global logger from LOG_LEVEL and LOG_FILE style settings. When
// logFile is set every entry is also appended to it as JSON; the returned function
// closes the file.
func Setup(logLevel, logFile string) (func() error, error) {
	if logFile == "" {
		Initialize(logLevel)
		return func() error { return nil }, nil
	}
	file, err := FileWriter(logFile)
	if err != nil {
		Initialize(logLevel)
		return func() error { return nil }, err
	}
	Initialize(logLevel, file)
	return file.Close, nil
}
