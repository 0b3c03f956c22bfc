package log

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "juru"

// getDefaultDir is ~/Library/Logs/juru on macOS, %LOCALAPPDATA%\juru\logs
// on Windows and $XDG_CONFIG_HOME/juru/logs elsewhere.
func getDefaultDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Logs", appName), nil
	case "windows":
		// UserCacheDir is %LocalAppData%
		base, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(base, appName, "logs"), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName, "logs"), nil
}
