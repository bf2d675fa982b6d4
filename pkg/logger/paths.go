// pkg/logger/paths.go

package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap/zapcore"
)

// PlatformLogPaths returns candidate log paths in priority order.
func PlatformLogPaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			filepath.Join(os.Getenv("HOME"), ".local", "state", "aegis", "aegis.log"),
			"./aegis.log",
			"/tmp/aegis/aegis.log",
		}
	case "linux":
		return []string{
			"/var/log/aegis/aegis.log",
			filepath.Join(os.Getenv("HOME"), ".local", "state", "aegis", "aegis.log"),
			"./aegis.log",
			"/tmp/aegis/aegis.log",
		}
	default:
		return []string{"./aegis.log"}
	}
}

// GetLogFileWriter opens (creating if needed) a log file with restrictive
// permissions and returns it as a WriteSyncer.
func GetLogFileWriter(path string) (zapcore.WriteSyncer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return zapcore.AddSync(os.Stdout), fmt.Errorf("log directory error: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return zapcore.AddSync(os.Stdout), fmt.Errorf("failed to open log file: %w", err)
	}
	return zapcore.AddSync(file), nil
}

// FindWritableLogPath returns the first usable path from PlatformLogPaths.
func FindWritableLogPath() (string, error) {
	if p := os.Getenv("AEGIS_LOG_PATH"); p != "" {
		if _, err := GetLogFileWriter(p); err == nil {
			return p, nil
		}
	}
	for _, path := range PlatformLogPaths() {
		if _, err := GetLogFileWriter(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no writable log path found")
}
