package usecase

import (
	"context"
	"time"
)

type Stats struct {
	Destination     string
	Published       int64
	Failed          int64
	LastPublishedAt time.Time
}

func (s *Usecase) Stats(context.Context) Stats {
	return Stats{
		Destination:     s.destination,
		Published:       s.published.Load(),
		Failed:          s.failed.Load(),
		LastPublishedAt: s.lastPublishedAt.Load(),
	}
}
