// Package engine hosts browser sessions and drives them through plans.
package engine

import (
	"github.com/zulandar/stagehand/internal/launch"
	"github.com/zulandar/stagehand/internal/models"
)

// LaunchRequest is the wire body of POST /launch.
type LaunchRequest struct {
	RunID      string            `json:"run_id"`
	LaunchSpec launch.LaunchSpec `json:"launch_spec"`
	Cookies    []models.Cookie   `json:"cookies"`
	Target     string            `json:"target"`
	Plan       []models.Step     `json:"plan"`
}

// LaunchResponse is the wire body of the /launch reply.
type LaunchResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
