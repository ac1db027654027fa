package store

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/zulandar/stagehand/internal/models"
	"gorm.io/gorm"
)

// PickProxy samples one active proxy uniformly at random from the most
// recently checked window of the pool. Bounded freshness keeps selection
// cheap without ranking the whole inventory. Returns nil when no active
// proxy exists; the caller dispatches with a direct connection instead.
func PickProxy(db *gorm.DB, window int) (*models.Proxy, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	if window <= 0 {
		window = 20
	}

	var proxies []models.Proxy
	if err := db.Where("status = ?", models.ProxyActive).
		Order("last_checked DESC").
		Limit(window).
		Find(&proxies).Error; err != nil {
		return nil, fmt.Errorf("store: pick proxy: %w", err)
	}
	if len(proxies) == 0 {
		return nil, nil
	}
	p := proxies[rand.Intn(len(proxies))]
	return &p, nil
}

// ProxyBatch returns up to batch proxies for probing, least recently
// checked first so stale endpoints are re-evaluated before fresh ones.
func ProxyBatch(db *gorm.DB, batch int) ([]models.Proxy, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	if batch <= 0 {
		return nil, fmt.Errorf("store: batch must be positive")
	}

	var proxies []models.Proxy
	if err := db.Order("last_checked ASC").
		Limit(batch).
		Find(&proxies).Error; err != nil {
		return nil, fmt.Errorf("store: proxy batch: %w", err)
	}
	return proxies, nil
}

// UpdateProxyHealth persists a probe verdict for one proxy.
func UpdateProxyHealth(db *gorm.DB, proxyID, status string, score float64, failStreak int) error {
	if db == nil {
		return fmt.Errorf("store: db is required")
	}
	if proxyID == "" {
		return fmt.Errorf("store: proxyID is required")
	}

	result := db.Model(&models.Proxy{}).Where("id = ?", proxyID).Updates(map[string]interface{}{
		"status":       status,
		"health_score": score,
		"fail_streak":  failStreak,
		"last_checked": time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("store: update proxy %s: %w", proxyID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: proxy %s not found", proxyID)
	}
	return nil
}
