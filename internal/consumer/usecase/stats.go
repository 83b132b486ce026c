package usecase

import (
	"context"
	"time"
)

type Stats struct {
	Source         string
	Consumed       int64
	LastReceivedAt time.Time
	LastBody       string
}

func (s *Usecase) Stats(context.Context) Stats {
	return Stats{
		Source:         s.source,
		Consumed:       s.consumed.Load(),
		LastReceivedAt: s.lastReceivedAt.Load(),
		LastBody:       s.lastBody.Load(),
	}
}
