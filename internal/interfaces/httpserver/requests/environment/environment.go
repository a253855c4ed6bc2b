package environmentrequests

import "jan-server/services/envchat-api/internal/domain/environment"

// CreateEnvironmentRequest describes a new environment. Global environments
// require an administrator.
type CreateEnvironmentRequest struct {
	ID              string                      `json:"id" binding:"required"`
	Name            string                      `json:"name" binding:"required"`
	Global          bool                        `json:"global"`
	Settings        map[string]any              `json:"settings"`
	BackendSettings environment.BackendSettings `json:"backend_settings"`
}

// UpdateEnvironmentRequest replaces the provided parts of an environment.
type UpdateEnvironmentRequest struct {
	Name            *string                      `json:"name,omitempty"`
	Settings        map[string]any               `json:"settings,omitempty"`
	BackendSettings *environment.BackendSettings `json:"backend_settings,omitempty"`
}

// FrontendSettingsQueryParams selects the environment whose settings are merged.
type FrontendSettingsQueryParams struct {
	EnvironmentID string `form:"env"`
}
