package dto

import "time"

// DeliveryRunResponse summarizes one scheduled delivery sweep.
type DeliveryRunResponse struct {
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	ClosedAssignments int64     `json:"closed_assignments"`
	Processed         int       `json:"processed"`
	Delivered         int       `json:"delivered"`
	Failed            int       `json:"failed"`
	Skipped           bool      `json:"skipped"`
}
