package model

import "time"

type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "active"
	PatientStatusInactive PatientStatus = "inactive"
)

type Patient struct {
	Base
	Name        string        `db:"name" json:"name"`
	Email       string        `db:"email" json:"email"`
	Phone       string        `db:"phone" json:"phone,omitempty"`
	DateOfBirth *time.Time    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Address     string        `db:"address" json:"address,omitempty"`
	Status      PatientStatus `db:"status" json:"status"`
}

type CreatePatientRequest struct {
	Name        string     `json:"name" binding:"required,max=200"`
	Email       string     `json:"email" binding:"required,email"`
	Phone       string     `json:"phone" binding:"max=30"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Address     string     `json:"address" binding:"max=500"`
}

type UpdatePatientRequest struct {
	Name    *string        `json:"name"`
	Email   *string        `json:"email"`
	Phone   *string        `json:"phone"`
	Address *string        `json:"address"`
	Status  *PatientStatus `json:"status"`
}

type PatientFilters struct {
	SearchTerm string
	Status     PatientStatus
}
