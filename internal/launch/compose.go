// Package launch composes fully-resolved browser launch specifications.
package launch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zulandar/stagehand/internal/models"
)

// Defaults applied when a device profile is absent or malformed.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultBrowser        = "chromium"
)

// ProxySettings is the egress block inside a LaunchSpec. A nil ProxySettings
// on the spec means direct connection.
type ProxySettings struct {
	Server   string `json:"server"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// LaunchSpec is a self-contained browser-session configuration. It is a
// pure projection of its inputs: recomputed on demand, never the source of
// truth for anything.
type LaunchSpec struct {
	Browser        string             `json:"browser"`
	Headless       bool               `json:"headless"`
	ViewportWidth  int                `json:"viewport_width"`
	ViewportHeight int                `json:"viewport_height"`
	Headers        map[string]string  `json:"headers"`
	Proxy          *ProxySettings     `json:"proxy"`
	Fingerprint    models.Fingerprint `json:"fingerprint"`
}

// Flags carries operator overrides into composition.
type Flags struct {
	Headless bool
}

// Compose builds a LaunchSpec from a device profile, an optional proxy and
// operator flags. It performs no I/O and has no side effects; identical
// inputs always produce structurally equal specs. A nil device yields an
// anonymous default-profile spec rather than an error.
func Compose(device *models.DeviceProfile, proxy *models.Proxy, flags Flags) LaunchSpec {
	spec := LaunchSpec{
		Browser:        DefaultBrowser,
		Headless:       flags.Headless,
		ViewportWidth:  DefaultViewportWidth,
		ViewportHeight: DefaultViewportHeight,
		Headers:        map[string]string{"Accept-Language": DefaultAcceptLanguage},
	}

	if device != nil {
		if device.Browser != "" {
			spec.Browser = device.Browser
		}
		w, h := ParseViewport(device.Viewport)
		spec.ViewportWidth, spec.ViewportHeight = w, h
		spec.Fingerprint = device.ParseFingerprint()
		if lang := acceptLanguage(spec.Fingerprint.Languages); lang != "" {
			spec.Headers["Accept-Language"] = lang
		}
		if device.UserAgent != "" {
			spec.Headers["User-Agent"] = device.UserAgent
		}
	}

	if proxy != nil {
		spec.Proxy = &ProxySettings{
			Server:   proxy.Server(),
			Username: proxy.Username,
			Password: proxy.Password,
		}
	}

	return spec
}

// ParseViewport translates a "WxH" string into a numeric pair, falling back
// to 1280x800 on anything malformed.
func ParseViewport(viewport string) (int, int) {
	parts := strings.SplitN(viewport, "x", 2)
	if len(parts) != 2 {
		return DefaultViewportWidth, DefaultViewportHeight
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return DefaultViewportWidth, DefaultViewportHeight
	}
	return w, h
}

// acceptLanguage renders a language preference list into an Accept-Language
// header value, assigning descending q-values to secondary languages.
func acceptLanguage(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	parts := []string{langs[0]}
	q := 0.9
	for _, l := range langs[1:] {
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", l, q))
		if q > 0.2 {
			q -= 0.1
		}
	}
	return strings.Join(parts, ",")
}
