package logging

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из конфигурации (регистр не важен)
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level %q", s)
	}
}

var levelColors = map[LogLevel]*color.Color{
	TRACE: color.New(color.FgHiBlack),
	DEBUG: color.New(color.FgCyan),
	INFO:  color.New(color.FgGreen),
	WARN:  color.New(color.FgYellow),
	ERROR: color.New(color.FgRed, color.Bold),
}

// Options настройки логгеров
type Options struct {
	Dir          string   // Каталог файлов логов; пусто - только консоль
	ConsoleLevel LogLevel // Минимальный уровень для консоли
	FileLevel    LogLevel // Минимальный уровень для файла
}

// Logger логгер компонента: консоль и, опционально, файл
type Logger struct {
	mu              sync.Mutex
	component       string
	consoleLogger   *log.Logger
	fileLogger      *log.Logger
	file            *os.File
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
}

var (
	optionsMu      sync.RWMutex
	currentOptions = Options{ConsoleLevel: INFO, FileLevel: DEBUG}
	defaultLogger  = NewWriterLogger("", os.Stdout, INFO)
)

// Init задаёт настройки для всех логгеров, созданных после вызова
func Init(opts Options) error {
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return fmt.Errorf("ошибка создания директории логов: %w", err)
		}
	}
	optionsMu.Lock()
	currentOptions = opts
	optionsMu.Unlock()

	l, err := NewLogger("server")
	if err != nil {
		return err
	}
	defaultLogger = l
	return nil
}

// NewLogger создаёт логгер компонента согласно текущим настройкам
func NewLogger(component string) (*Logger, error) {
	optionsMu.RLock()
	opts := currentOptions
	optionsMu.RUnlock()

	l := NewWriterLogger(component, os.Stdout, opts.ConsoleLevel)
	if opts.Dir == "" {
		return l, nil
	}

	name := component
	if name == "" {
		name = "server"
	}
	filename := filepath.Join(opts.Dir, fmt.Sprintf("%s_%s.log", name, time.Now().Format("2006-01-02_15-04-05")))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}
	l.file = file
	l.fileLogger = log.New(file, "", log.LstdFlags|log.Lmicroseconds)
	l.minFileLevel = opts.FileLevel
	return l, nil
}

// NewWriterLogger логгер без файла, пишущий в w. Удобен для тестов.
func NewWriterLogger(component string, w io.Writer, level LogLevel) *Logger {
	return &Logger{
		component:       component,
		consoleLogger:   log.New(w, "", log.LstdFlags),
		minConsoleLevel: level,
		minFileLevel:    ERROR + 1,
	}
}

// Close закрывает файл логов
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file, l.fileLogger = nil, nil
	return err
}

// SetLevels меняет пороги консоли и файла
func (l *Logger) SetLevels(console, file LogLevel) {
	l.mu.Lock()
	l.minConsoleLevel, l.minFileLevel = console, file
	l.mu.Unlock()
}

// Levels текущие пороги консоли и файла
func (l *Logger) Levels() (console, file LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minConsoleLevel, l.minFileLevel
}

// Enabled будет ли сообщение уровня level куда-либо записано
func (l *Logger) Enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.minConsoleLevel || (l.fileLogger != nil && level >= l.minFileLevel)
}

func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	toConsole := level >= l.minConsoleLevel
	toFile := l.fileLogger != nil && level >= l.minFileLevel
	if !toConsole && !toFile {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		msg = "[" + l.component + "] " + msg
	}
	if toFile {
		l.fileLogger.Printf("[%s] %s", level, msg)
	}
	if toConsole {
		l.consoleLogger.Printf("%s %s", levelColors[level].Sprintf("[%s]", level), msg)
	}
}

// Trace логирует сообщение уровня TRACE
func (l *Logger) Trace(format string, args ...interface{}) { l.logf(TRACE, format, args...) }

// Debug логирует сообщение уровня DEBUG
func (l *Logger) Debug(format string, args ...interface{}) { l.logf(DEBUG, format, args...) }

// Info логирует сообщение уровня INFO
func (l *Logger) Info(format string, args ...interface{}) { l.logf(INFO, format, args...) }

// Warn логирует сообщение уровня WARN
func (l *Logger) Warn(format string, args ...interface{}) { l.logf(WARN, format, args...) }

// Error логирует сообщение уровня ERROR
func (l *Logger) Error(format string, args ...interface{}) { l.logf(ERROR, format, args...) }

// Функции логгера по умолчанию

func Trace(format string, args ...interface{}) { defaultLogger.logf(TRACE, format, args...) }
func Debug(format string, args ...interface{}) { defaultLogger.logf(DEBUG, format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.logf(INFO, format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.logf(WARN, format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.logf(ERROR, format, args...) }

// HexDump создаёт hex дамп данных, не больше 256 байт
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "No data"
	}
	size := len(data)
	if size > 256 {
		size = 256
	}
	return hex.Dump(data[:size])
}

// LogPacket логирует исходящий кадр с hex дампом на уровне TRACE
func LogPacket(l *Logger, player string, packets int, payload []byte) {
	if !l.Enabled(TRACE) {
		return
	}
	l.Trace("=== OUT %s: %d packets, %d bytes ===", player, packets, len(payload))
	l.Trace("%s", HexDump(payload))
}
