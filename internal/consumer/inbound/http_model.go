package inbound

import "time"

type StatsResponse struct {
	Source         string     `json:"source"`
	Group          string     `json:"group"`
	Consumed       int64      `json:"consumed"`
	LastReceivedAt *time.Time `json:"last_received_at"`
	LastBody       *string    `json:"last_body"`
}
