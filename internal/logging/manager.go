package logging

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// Levels пороги одного компонента
type Levels struct {
	Console LogLevel
	File    LogLevel
}

// LoggerManager хранит логгеры компонентов (world, network, storage, api, events)
// и переопределения их уровней. Переопределение применяется и к логгерам,
// которые будут созданы позже.
type LoggerManager struct {
	mu        sync.Mutex
	loggers   map[string]*Logger
	overrides map[string]Levels
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{
			loggers:   make(map[string]*Logger),
			overrides: make(map[string]Levels),
		}
	})
	return globalManager
}

// GetLogger возвращает логгер компонента, создавая его при первом обращении
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if l, ok := lm.loggers[component]; ok {
		return l, nil
	}
	l, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("logger %s: %w", component, err)
	}
	if lv, ok := lm.overrides[component]; ok {
		l.SetLevels(lv.Console, lv.File)
	}
	lm.loggers[component] = l
	return l, nil
}

// MustGetLogger возвращает логгер или консольный fallback при ошибке файла
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	l, err := lm.GetLogger(component)
	if err != nil {
		Warn("Логгер %s работает без файла: %v", component, err)
		l = NewWriterLogger(component, os.Stdout, INFO)
		lm.mu.Lock()
		lm.loggers[component] = l
		lm.mu.Unlock()
	}
	return l
}

// CloseAll закрывает файлы всех логгеров
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var lastErr error
	for component, l := range lm.loggers {
		if err := l.Close(); err != nil {
			lastErr = fmt.Errorf("close logger %s: %w", component, err)
		}
	}
	lm.loggers = make(map[string]*Logger)
	return lastErr
}

// Components уровни всех созданных логгеров и переопределений
func (lm *LoggerManager) Components() map[string]Levels {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	out := make(map[string]Levels, len(lm.loggers)+len(lm.overrides))
	for name, lv := range lm.overrides {
		out[name] = lv
	}
	for name, l := range lm.loggers {
		c, f := l.Levels()
		out[name] = Levels{Console: c, File: f}
	}
	return out
}

// ListComponents отсортированные имена из Components
func (lm *LoggerManager) ListComponents() []string {
	comps := lm.Components()
	names := make([]string, 0, len(comps))
	for name := range comps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetLogLevel меняет уровни компонента сейчас и для будущих логгеров с этим именем
func (lm *LoggerManager) SetLogLevel(component string, consoleLevel, fileLevel LogLevel) error {
	if component == "" {
		return fmt.Errorf("empty component name")
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.overrides[component] = Levels{Console: consoleLevel, File: fileLevel}
	if l, ok := lm.loggers[component]; ok {
		l.SetLevels(consoleLevel, fileLevel)
	}
	return nil
}

// ApplyOverrides разбирает карту компонент -> уровень из конфигурации.
// Уровень задаёт порог консоли; файл получает тот же порог или DEBUG, если он ниже.
func (lm *LoggerManager) ApplyOverrides(levels map[string]string) error {
	for component, name := range levels {
		lv, err := ParseLevel(name)
		if err != nil {
			return fmt.Errorf("logging.components.%s: %w", component, err)
		}
		if err := lm.SetLogLevel(component, lv, min(lv, DEBUG)); err != nil {
			return err
		}
	}
	return nil
}

// GetComponentLogger логгер компонента из глобального менеджера
func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().MustGetLogger(component)
}

func GetWorldLogger() *Logger {
	return GetComponentLogger("world")
}

func GetStorageLogger() *Logger {
	return GetComponentLogger("storage")
}

func GetServerLogger() *Logger {
	return GetComponentLogger("server")
}
