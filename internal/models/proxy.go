package models

import (
	"fmt"
	"time"
)

// Proxy status values written by the health prober. The scheduler only ever
// selects proxies with status active.
const (
	ProxyActive  = "active"
	ProxyWarning = "warning"
	ProxyFlagged = "flagged"
	ProxyDead    = "dead"
)

// Proxy is a network egress endpoint sessions can be routed through.
// Status and health score are owned by the prober; everything else is
// inventory data maintained outside the core.
type Proxy struct {
	ID          string  `gorm:"primaryKey;size:32"`
	Address     string  `gorm:"size:256;not null"`
	Port        int     `gorm:"not null"`
	Protocol    string  `gorm:"size:8;default:http"`
	Username    string  `gorm:"size:128"`
	Password    string  `gorm:"size:128"`
	Status      string  `gorm:"size:16;default:active;index"`
	HealthScore float64 `gorm:"default:0"`
	FailStreak  int     `gorm:"default:0"`
	LastChecked *time.Time `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Server returns the proxy URL in proto://host:port form.
func (p *Proxy) Server() string {
	return fmt.Sprintf("%s://%s:%d", p.Protocol, p.Address, p.Port)
}

// Selectable reports whether the scheduler may route traffic through this
// proxy. Flagged and dead endpoints are never selectable.
func (p *Proxy) Selectable() bool {
	return p.Status == ProxyActive
}
