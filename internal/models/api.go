package models

import "time"

// QueryRequest is the body of POST /api/v1/queries
type QueryRequest struct {
	Target     string `json:"target" binding:"required" example:"annual-filing"`
	Identifier string `json:"identifier" binding:"required" example:"U45400DL2007PTC171129"`
	NoCache    bool   `json:"no_cache,omitempty" example:"false"`
}

// TargetInfo describes a supported portal target
type TargetInfo struct {
	Name           string   `json:"name" example:"annual-filing"`
	Description    string   `json:"description" example:"Annual filing status by CIN"`
	IdentifierKind string   `json:"identifier_kind" example:"CIN"`
	Columns        []string `json:"columns"`
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error     string    `json:"error" example:"Invalid identifier"`
	Message   string    `json:"message" example:"CIN must contain 21 alphanumeric characters"`
	Code      string    `json:"code,omitempty" example:"INVALID_IDENTIFIER"`
	Timestamp time.Time `json:"timestamp" example:"2024-01-15T10:30:00Z"`
	Path      string    `json:"path" example:"/api/v1/queries"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status" example:"healthy"`
	Timestamp time.Time              `json:"timestamp" example:"2024-01-15T10:30:00Z"`
	Version   string                 `json:"version" example:"1.0.0"`
	Services  map[string]ServiceInfo `json:"services"`
	Uptime    string                 `json:"uptime" example:"2h30m45s"`
}

// ServiceInfo represents individual service health
type ServiceInfo struct {
	Status    string    `json:"status" example:"healthy"`
	LastCheck time.Time `json:"last_check" example:"2024-01-15T10:30:00Z"`
	Error     string    `json:"error,omitempty"`
}
