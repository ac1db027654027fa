package store

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/zulandar/stagehand/internal/models"
	"gorm.io/gorm"
)

// LatestCookies returns the persona's most recent cookie snapshot filtered
// to cookies whose domain matches the target's host. A missing snapshot, a
// malformed blob, or an unparseable target all yield an empty set.
func LatestCookies(db *gorm.DB, personaID, target string) ([]models.Cookie, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	if personaID == "" {
		return nil, nil
	}

	var rec models.CookieRecord
	err := db.Where("persona_id = ?", personaID).
		Order("created_at DESC").
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest cookies for %s: %w", personaID, err)
	}

	var cookies []models.Cookie
	if err := json.Unmarshal([]byte(rec.Cookies), &cookies); err != nil {
		return nil, nil
	}
	if target == "" {
		return cookies, nil
	}

	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return cookies, nil
	}
	host := u.Hostname()

	var matched []models.Cookie
	for _, c := range cookies {
		if CookieDomainMatches(c.Domain, host) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// CookieDomainMatches reports whether a cookie domain covers host, using
// the usual suffix rule: ".example.com" covers example.com and any
// subdomain of it.
func CookieDomainMatches(domain, host string) bool {
	if domain == "" || host == "" {
		return false
	}
	d := strings.TrimPrefix(domain, ".")
	return host == d || strings.HasSuffix(host, "."+d)
}

// SaveCookies appends a new cookie snapshot for a persona.
func SaveCookies(db *gorm.DB, personaID string, cookies []models.Cookie) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	if personaID == "" {
		return fmt.Errorf("store: personaID is required")
	}

	blob, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("store: marshal cookies for %s: %w", personaID, err)
	}
	rec := models.CookieRecord{PersonaID: personaID, Cookies: string(blob)}
	if err := db.Create(&rec).Error; err != nil {
		return fmt.Errorf("store: save cookies for %s: %w", personaID, err)
	}
	return nil
}
