package services

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dmitrijs2005/songletters/internal/identity"
)

// DeviceFingerprint describes the terminal the CLI runs in, using the same
// coarse attributes a browser would report.
func DeviceFingerprint() identity.Fingerprint {
	return identity.Fingerprint{
		Locale:      localeFromEnv(os.Getenv),
		Timezone:    timezoneName(os.Getenv("TZ"), time.Local),
		ScreenClass: "terminal",
		Platform:    platformName(runtime.GOOS),
	}
}

// UserAgent names the platform in a form the server recognises.
func UserAgent(version string) string {
	return fmt.Sprintf("songletters-cli/%s (%s)", version, platformName(runtime.GOOS))
}

// localeFromEnv turns "en_US.UTF-8" into "en-US". C and POSIX mean unknown.
func localeFromEnv(getenv func(string) string) string {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			continue
		}
		v, _, _ = strings.Cut(v, ".")
		v, _, _ = strings.Cut(v, "@")
		if v == "C" || v == "POSIX" {
			return ""
		}
		return strings.ReplaceAll(v, "_", "-")
	}
	return ""
}

func timezoneName(tz string, loc *time.Location) string {
	tz = strings.TrimPrefix(strings.TrimSpace(tz), ":")
	if tz != "" {
		return tz
	}
	if loc == nil {
		return ""
	}
	if loc.String() != "Local" {
		return loc.String()
	}
	name, _ := time.Now().In(loc).Zone()
	return name
}

func platformName(goos string) string {
	if goos == "darwin" {
		return "macos"
	}
	return goos
}
