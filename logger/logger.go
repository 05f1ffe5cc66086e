package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

var (
	AppLogger   *log.Logger
	ProxyLogger *log.Logger
	ErrorLogger *log.Logger

	mu           sync.Mutex
	logLevel     = LevelInfo
	appLogFile   *os.File
	proxyLogFile *os.File
	initialized  bool
)

// openLogFile opens path for appending, creating its directory. On failure the
// returned writer discards output and the returned name says so.
func openLogFile(kind, path string) (io.Writer, *os.File, string) {
	if path == "" {
		return io.Discard, nil, "(discarded)"
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		ErrorLogger.Printf("Failed to create %s log directory %s: %v. %s logs will be discarded.", kind, dir, err, kind)
		return io.Discard, nil, "(discarded)"
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		ErrorLogger.Printf("Failed to open %s log file %s: %v. %s logs will be discarded.", kind, path, err, kind)
		return io.Discard, nil, "(discarded)"
	}
	return f, f, path
}

// InitGlobalLoggers (re)opens the app and proxy log files and sets the level.
// Errors always go to stderr as well.
func InitGlobalLoggers(appLogPath, proxyLogPath, level string) error {
	mu.Lock()
	defer mu.Unlock()

	newLevel := strings.ToUpper(strings.TrimSpace(level))
	if newLevel == "" {
		newLevel = LevelInfo
	}
	if _, ok := levelRank[newLevel]; !ok {
		return fmt.Errorf("unknown log level %q (want DEBUG, INFO, WARN or ERROR)", level)
	}

	closeFilesLocked()
	logLevel = newLevel

	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)

	appWriter, appFile, appName := openLogFile("app", appLogPath)
	appLogFile = appFile
	AppLogger = log.New(appWriter, "APP: ", log.Ldate|log.Ltime|log.Lshortfile)

	proxyWriter, proxyFile, proxyName := openLogFile("proxy", proxyLogPath)
	proxyLogFile = proxyFile
	ProxyLogger = log.New(proxyWriter, "PROXY: ", log.Ldate|log.Ltime|log.Lshortfile)

	if !initialized {
		AppLogger.Printf("App logger initialized. Log level: %s. Output file: %s", logLevel, appName)
		ProxyLogger.Printf("Proxy logger initialized. Log level: %s. Output file: %s", logLevel, proxyName)
	}
	initialized = true
	return nil
}

// SetOutput points all loggers at w. Used by tests and by commands that want logs on the terminal.
func SetOutput(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	closeFilesLocked()
	if l := strings.ToUpper(level); l != "" {
		if _, ok := levelRank[l]; ok {
			logLevel = l
		}
	}
	AppLogger = log.New(w, "APP: ", 0)
	ProxyLogger = log.New(w, "PROXY: ", 0)
	ErrorLogger = log.New(w, "ERROR: ", 0)
	initialized = true
}

// Level returns the active log level.
func Level() string {
	mu.Lock()
	defer mu.Unlock()
	return logLevel
}

func enabled(level string) bool {
	return levelRank[level] >= levelRank[logLevel]
}

func Info(format string, v ...interface{}) {
	if AppLogger != nil && enabled(LevelInfo) {
		AppLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

func Debug(format string, v ...interface{}) {
	if AppLogger != nil && enabled(LevelDebug) {
		AppLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

func Warn(format string, v ...interface{}) {
	if AppLogger != nil && enabled(LevelWarn) {
		AppLogger.Output(2, "WARN: "+fmt.Sprintf(format, v...))
	}
}

func Error(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Output(2, message)
	}
	if AppLogger != nil && appLogFile != nil {
		AppLogger.Output(2, message)
	}
}

func Fatal(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Fatal(message)
	} else {
		log.Fatal(message)
	}
}

func ProxyInfo(format string, v ...interface{}) {
	if ProxyLogger != nil && enabled(LevelInfo) {
		ProxyLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

func ProxyDebug(format string, v ...interface{}) {
	if ProxyLogger != nil && enabled(LevelDebug) {
		ProxyLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

func ProxyError(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Output(2, message)
	}
	if ProxyLogger != nil && proxyLogFile != nil {
		ProxyLogger.Output(2, message)
	}
}

func closeFilesLocked() {
	if appLogFile != nil {
		appLogFile.Close()
		appLogFile = nil
	}
	if proxyLogFile != nil {
		proxyLogFile.Close()
		proxyLogFile = nil
	}
}

func CloseLogFiles() {
	mu.Lock()
	defer mu.Unlock()
	if appLogFile != nil && AppLogger != nil {
		AppLogger.Println("Closing app log file.")
	}
	if proxyLogFile != nil && ProxyLogger != nil {
		ProxyLogger.Println("Closing proxy log file.")
	}
	closeFilesLocked()
	initialized = false
}
