package http

import (
	"net/http"

	"github.com/meshboardio/meshboard/server/http/api"
	"github.com/meshboardio/meshboard/server/http/util"
	"github.com/meshboardio/meshboard/version"
)

// SystemHandler answers the unauthenticated liveness and site descriptor
// endpoints
type SystemHandler struct {
	siteConfig api.SiteConfig
}

// NewSystemHandler creates a new SystemHandler HTTP handler
func NewSystemHandler(siteConfig api.SiteConfig) *SystemHandler {
	return &SystemHandler{siteConfig: siteConfig}
}

// GetHealth is HTTP GET handler serving the liveness probe
func (h *SystemHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	util.WriteJSONObject(w, &api.HealthResponse{
		Status:  "ok",
		Version: version.Version(),
	})
}

// GetSiteConfig is HTTP GET handler serving the public site descriptor
func (h *SystemHandler) GetSiteConfig(w http.ResponseWriter, r *http.Request) {
	util.WriteJSONObject(w, h.siteConfig)
}
