package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger is a per-session file logger for trading activity. One file per
// selector per day.
type Logger struct {
	selector string
	period   string
	logFile  *os.File
	logger   *log.Logger
	mu       sync.Mutex
	logDir   string
	debug    bool
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelTrade  LogLevel = "TRADE"
	LogLevelStatus LogLevel = "STATUS"
	LogLevelDebug  LogLevel = "DEBUG"
)

// NewLogger creates a new file logger for the specified selector and period length.
func NewLogger(selector, period string) (*Logger, error) {
	return NewLoggerWithDebug(selector, period, false)
}

// NewLoggerWithDebug creates a file logger with debug logging toggled.
func NewLoggerWithDebug(selector, period string, debug bool) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s_%s.log", selector, period, timestamp)
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		selector: selector,
		period:   period,
		logFile:  file,
		logger:   log.New(file, "", 0),
		logDir:   logDir,
		debug:    debug,
	}

	l.writeSessionHeader()
	return l, nil
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
TRADING SESSION STARTED
================================================================================
Selector: %s | Period: %s
Started: %s
================================================================================
`, l.selector, l.period, time.Now().Format("2006-01-02 15:04:05"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, message))
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs an order or fill event
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs market status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// Debug logs a debug message when debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.Log(LogLevelDebug, format, args...)
}

// LogFill logs a completed order execution.
func (l *Logger) LogFill(side string, size, price, fee, slippage float64, executionTime time.Duration) {
	l.Trade("%s order completed: %.8f at %.8g (fee %.8g, slippage %.4f%%, execution %s)",
		side, size, price, fee, slippage*100, executionTime)
}

// LogStop logs a triggered stop with the trade worth that tripped it.
func (l *Logger) LogStop(kind string, tradeWorth float64) {
	l.Warning("%s triggered at %.2f%% trade worth", kind, tradeWorth*100)
}

// LogBalanceSync logs a balance reconciliation against the exchange.
func (l *Logger) LogBalanceSync(asset, currency, deposit float64) {
	l.Info("balance synced: asset %.8f, currency %.2f, deposit %.2f", asset, currency, deposit)
}

// LogError logs an error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		footer := fmt.Sprintf(`
================================================================================
TRADING SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, time.Now().Format("2006-01-02 15:04:05"))
		l.logger.Print(footer)
		return l.logFile.Close()
	}
	return nil
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s_%s.log", l.selector, l.period, timestamp)
	return filepath.Join(l.logDir, filename)
}
