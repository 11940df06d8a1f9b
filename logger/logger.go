package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"purpleair_status/config"
)

var (
	// Global logger instances
	InfoLogger  *log.Logger
	ErrorLogger *log.Logger
	DebugLogger *log.Logger
	WarnLogger  *log.Logger

	logFile      *os.File
	logLevel     = INFO
	logToConsole bool
	accessWriter io.Writer = os.Stdout
)

// LogLevel constants
const (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
)

var levels = map[string]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
}

// Init initializes the logging system using configuration
func Init(cfg *config.Config) error {
	// Get current working directory
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %w", err)
	}

	// Set global variables from config
	logToConsole = cfg.Logging.LogToConsole
	logLevel = cfg.Logging.LogLevel

	// Create log file path
	logPath := cfg.Logging.LogFile
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(cwd, logPath)
	}

	// Create or open log file
	logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	// Write only to file unless console output is on
	stdout, stderr := io.Writer(logFile), io.Writer(logFile)
	if logToConsole {
		stdout = io.MultiWriter(os.Stdout, logFile)
		stderr = io.MultiWriter(os.Stderr, logFile)
	}

	// Create loggers with no prefix; level prefixes are added per call
	flags := log.Ldate | log.Ltime
	InfoLogger = log.New(stdout, "", flags)
	ErrorLogger = log.New(stderr, "", flags)
	DebugLogger = log.New(stdout, "", flags)
	WarnLogger = log.New(stdout, "", flags)
	accessWriter = stdout

	// Log session start
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	InfoLogger.Printf("=== Session started at %s ===\n", timestamp)
	InfoLogger.Printf("Log file: %s\n", logPath)
	InfoLogger.Printf("Log level: %s\n", logLevel)
	InfoLogger.Printf("Log to console: %t\n", logToConsole)
	LogDivider()

	return nil
}

// Close closes the log file
func Close() error {
	if logFile != nil {
		// Log session end
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		LogDivider()
		InfoLogger.Printf("=== Session ended at %s ===\n\n", timestamp)
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// Writer returns the destination for HTTP access logs
func Writer() io.Writer {
	return accessWriter
}

// Enabled reports whether messages at the given level are written
func Enabled(messageLevel string) bool {
	currentLevel, exists := levels[logLevel]
	if !exists {
		currentLevel = levels[INFO]
	}

	// Unknown levels are always logged
	messageLogLevel, exists := levels[messageLevel]
	if !exists {
		return true
	}

	return messageLogLevel >= currentLevel
}

func output(l *log.Logger, level, prefix, format string, v ...interface{}) {
	if !Enabled(level) {
		return
	}
	if l != nil {
		l.Printf(prefix+format, v...)
		return
	}
	// Not initialized yet, fall back to the console
	if level == ERROR {
		fmt.Fprintf(os.Stderr, prefix+format, v...)
		return
	}
	fmt.Printf(prefix+format, v...)
}

// Printf prints formatted text to log (respects log level)
func Printf(format string, v ...interface{}) {
	output(InfoLogger, INFO, "", format, v...)
}

// Println prints a line to log (respects log level)
func Println(v ...interface{}) {
	output(InfoLogger, INFO, "", "%s\n", fmt.Sprint(v...))
}

// Debugf prints formatted debug text
func Debugf(format string, v ...interface{}) {
	output(DebugLogger, DEBUG, "DEBUG: ", format, v...)
}

// Warnf prints formatted warning text
func Warnf(format string, v ...interface{}) {
	output(WarnLogger, WARN, "WARN: ", format, v...)
}

// Errorf prints formatted error text (always logged regardless of level)
func Errorf(format string, v ...interface{}) {
	if ErrorLogger != nil {
		ErrorLogger.Printf("ERROR: "+format, v...)
	} else {
		fmt.Fprintf(os.Stderr, "ERROR: "+format, v...)
	}
}

// Fatalf prints formatted fatal error and exits (always logged)
func Fatalf(format string, v ...interface{}) {
	if ErrorLogger != nil {
		ErrorLogger.Printf("FATAL: "+format, v...)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: "+format, v...)
	}
	Close()
	os.Exit(1)
}

// LogCommand logs the command being executed
func LogCommand(command string, args []string) {
	if len(args) > 1 {
		Printf("Command executed: %s %v\n", command, args[1:])
		return
	}
	Printf("Command executed: %s\n", command)
}

// LogDivider prints a divider line for better log organization
func LogDivider() {
	Println("------------------------------------------------------------")
}

// LogResult logs a result with status
func LogResult(operation string, success bool, details string) {
	mark, outcome := "✅", "SUCCESS"
	if !success {
		mark, outcome = "❌", "FAILED"
	}
	if details != "" {
		Printf("%s %s: %s - %s\n", mark, operation, outcome, details)
		return
	}
	Printf("%s %s: %s\n", mark, operation, outcome)
}

// LogProgress logs progress information
func LogProgress(current, total int, item string) {
	Debugf("Progress: [%d/%d] %s\n", current, total, item)
}

// GetLogFileName returns the current log file name
func GetLogFileName() string {
	if logFile != nil {
		return logFile.Name()
	}
	return "result.log"
}
