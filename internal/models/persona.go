package models

import (
	"encoding/json"
	"time"
)

// Persona is a synthetic identity. It pins a device profile and accumulates
// cookie snapshots across sessions.
type Persona struct {
	ID              string  `gorm:"primaryKey;size:32"`
	Name            string  `gorm:"size:128"`
	DeviceProfileID *string `gorm:"size:32"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	DeviceProfile *DeviceProfile `gorm:"foreignKey:DeviceProfileID"`
}

// DeviceProfile describes the browser/device a session should emulate.
// Immutable once referenced by a running session.
type DeviceProfile struct {
	ID          string `gorm:"primaryKey;size:32"`
	Name        string `gorm:"size:128"`
	Browser     string `gorm:"size:32;default:chromium"`
	Platform    string `gorm:"size:64"`
	UserAgent   string `gorm:"size:512"`
	Viewport    string `gorm:"size:16"`
	Fingerprint string `gorm:"type:json"`
	CreatedAt   time.Time
}

// Fingerprint holds the emulation parameters applied to a browser context.
type Fingerprint struct {
	CanvasSeed       string   `json:"canvas_seed,omitempty"`
	AudioSeed        string   `json:"audio_seed,omitempty"`
	GPUVendor        string   `json:"gpu_vendor,omitempty"`
	GPURenderer      string   `json:"gpu_renderer,omitempty"`
	Fonts            []string `json:"fonts,omitempty"`
	Plugins          []string `json:"plugins,omitempty"`
	Languages        []string `json:"languages,omitempty"`
	TimezoneOffset   int      `json:"timezone_offset,omitempty"`
	HardwareThreads  int      `json:"hardware_threads,omitempty"`
	DeviceMemoryGB   int      `json:"device_memory_gb,omitempty"`
	TouchEnabled     bool     `json:"touch_enabled,omitempty"`
	DevicePixelRatio float64  `json:"device_pixel_ratio,omitempty"`
}

// ParseFingerprint decodes the profile's fingerprint JSON. An empty or
// malformed column yields a zero Fingerprint rather than an error.
func (d *DeviceProfile) ParseFingerprint() Fingerprint {
	var fp Fingerprint
	if d.Fingerprint == "" {
		return fp
	}
	_ = json.Unmarshal([]byte(d.Fingerprint), &fp)
	return fp
}

// CookieRecord is one persisted cookie snapshot for a persona. Snapshots are
// append-only; the scheduler reads only the most recent one per persona.
type CookieRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	PersonaID string `gorm:"size:32;index;not null"`
	Cookies   string `gorm:"type:json"`
	CreatedAt time.Time `gorm:"index"`
}

// Cookie is a single browser cookie as stored inside a CookieRecord blob.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}
