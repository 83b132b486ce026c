package inbound

import "time"

type StatsResponse struct {
	Destination     string     `json:"destination"`
	PeriodSeconds   float64    `json:"period_seconds"`
	Published       int64      `json:"published"`
	Failed          int64      `json:"failed"`
	LastPublishedAt *time.Time `json:"last_published_at"`
}
