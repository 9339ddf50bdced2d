package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DentalService is one entry in the clinic's price list.
type DentalService struct {
	Base
	Name            string          `db:"name" json:"name"`
	Description     string          `db:"description" json:"description,omitempty"`
	Price           decimal.Decimal `db:"price" json:"price"`
	DurationMinutes int             `db:"duration_minutes" json:"duration_minutes"`
	Active          bool            `db:"active" json:"active"`
}

type CreateServiceRequest struct {
	Name            string          `json:"name" binding:"required,max=200"`
	Description     string          `json:"description" binding:"max=1000"`
	Price           decimal.Decimal `json:"price" binding:"required"`
	DurationMinutes int             `json:"duration_minutes" binding:"required,min=5"`
}

type UpdateServiceRequest struct {
	Name            *string          `json:"name"`
	Description     *string          `json:"description"`
	Price           *decimal.Decimal `json:"price"`
	DurationMinutes *int             `json:"duration_minutes"`
	Active          *bool            `json:"active"`
}

// Duration converts the configured minutes to a time.Duration.
func (s *DentalService) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}
