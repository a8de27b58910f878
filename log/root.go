package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	RPCMonitoring     = "rpc_mod"     // provider round-trips
	StorageMonitoring = "storage_mod" // storage address resolution
	ScanMonitoring    = "scan_mod"    // event log scanning
	ClientMonitoring  = "client_mod"  // contract query facade
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// holder keeps the stored type constant for atomic.Value across Logger implementations.
type holder struct{ l Logger }

var root atomic.Value

func init() {
	root.Store(holder{&logger{slog.New(DiscardHandler())}})
}

func ParseLevel(lvl string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(lvl)) {
	case "MAX", "MAXVERBOSITY":
		return levelMaxVerbosity, nil
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "CRIT", "CRITICAL":
		return LevelCrit, nil
	default:
		return 0, fmt.Errorf("invalid level: %s", lvl)
	}
}

// InitLogger installs a stderr logger at the given level and format.
func InitLogger(logLevel string, format string) error {
	return InitLoggerTo(os.Stderr, logLevel, format)
}

// InitLoggerTo is InitLogger with an explicit destination.
func InitLoggerTo(w io.Writer, logLevel string, format string) error {
	logLvl, err := ParseLevel(logLevel)
	if err != nil {
		return err
	}
	switch strings.ToLower(format) {
	case "", FormatText:
		SetDefault(NewLogger(NewTerminalHandlerWithLevel(w, logLvl, false)))
	case FormatJSON:
		SetDefault(NewLogger(NewJSONHandler(w, logLvl)))
	default:
		return fmt.Errorf("invalid log format: %s", format)
	}
	return nil
}

// SetDefault sets the default global logger
func SetDefault(l Logger) {
	root.Store(holder{l})
	if lg, ok := l.(*logger); ok {
		slog.SetDefault(lg.inner)
	}
}

// Root returns the root logger
func Root() Logger {
	return root.Load().(holder).l
}

// --- Module management ---
// moduleEnabled keeps track of whether a module's debug/trace logging is enabled.
var (
	moduleMu      sync.RWMutex
	moduleEnabled = map[string]bool{
		RPCMonitoring:     false,
		StorageMonitoring: false,
		ScanMonitoring:    false,
		ClientMonitoring:  false,
	}
)

// EnableModule enables logging for the specified module.
func EnableModule(module string) {
	moduleMu.Lock()
	moduleEnabled[module] = true
	moduleMu.Unlock()
}

// DisableModule disables logging for the specified module.
func DisableModule(module string) {
	moduleMu.Lock()
	moduleEnabled[module] = false
	moduleMu.Unlock()
}

// EnableModules enables a comma separated list of modules. "all" enables every known module.
func EnableModules(list string) {
	for _, module := range strings.Split(list, ",") {
		module = strings.TrimSpace(module)
		switch module {
		case "":
		case "all":
			for _, m := range []string{RPCMonitoring, StorageMonitoring, ScanMonitoring, ClientMonitoring} {
				EnableModule(m)
			}
		default:
			EnableModule(module)
		}
	}
}

// isModuleEnabled checks if logging is enabled for the given module.
func isModuleEnabled(module string) bool {
	moduleMu.RLock()
	defer moduleMu.RUnlock()
	return moduleEnabled[module]
}

// Trace logs a message at the trace level for a specific module.
func Trace(module string, msg string, ctx ...interface{}) {
	if !isModuleEnabled(module) {
		return
	}
	Root().Write(LevelTrace, module, msg, ctx...)
}

// Debug logs a message at the debug level for a specific module.
func Debug(module string, msg string, ctx ...interface{}) {
	if !isModuleEnabled(module) {
		return
	}
	Root().Write(slog.LevelDebug, module, msg, ctx...)
}

// The rest of the logging functions (Info, Warn, Error, Crit, New) dont filter on module
func Info(module string, msg string, ctx ...interface{}) {
	Root().Write(slog.LevelInfo, module, msg, ctx...)
}

func Warn(module string, msg string, ctx ...interface{}) {
	Root().Write(slog.LevelWarn, module, msg, ctx...)
}

func Error(module string, msg string, ctx ...interface{}) {
	Root().Write(slog.LevelError, module, msg, ctx...)
}

func Crit(module string, msg string, ctx ...interface{}) {
	Root().Write(LevelCrit, module, msg, ctx...)
	os.Exit(1)
}

func New(ctx ...interface{}) Logger {
	return Root().With(ctx...)
}
