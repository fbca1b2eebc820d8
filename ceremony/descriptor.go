package ceremony

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// DeviceDescriptor returns a best-effort human-readable description of the
// current device, used as the default enrollment label for audit display.
func DeviceDescriptor() string {
	platform := platformName(runtime.GOOS)
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fmt.Sprintf("%s (%s)", platform, runtime.GOARCH)
	}
	return fmt.Sprintf("%s on %s", platform, strings.TrimSuffix(host, ".local"))
}

func platformName(goos string) string {
	switch goos {
	case "darwin":
		return "macOS"
	case "windows":
		return "Windows"
	case "linux":
		return "Linux"
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	default:
		return goos
	}
}
