package database

import (
	"github.com/smukkama/tourist-safety/internal/models"
)

// AnomalyFilter selects one page of a user's archived anomalies
type AnomalyFilter struct {
	UserID   string
	Severity models.Severity // empty means any
	Limit    int
	Page     int
}

// Pagination describes where a page sits in the full result
type Pagination struct {
	Current      int `json:"current"`
	Total        int `json:"total"`
	Count        int `json:"count"`
	TotalRecords int `json:"totalRecords"`
}

// AnomalyPage is one page of archived anomalies
type AnomalyPage struct {
	Anomalies  []models.AnomalyRecord `json:"anomalies"`
	Pagination Pagination             `json:"pagination"`
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)
