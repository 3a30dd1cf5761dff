package workers

import (
	"context"
	"time"

	"github.com/cbodonnell/scribble/pkg/log"
)

// IdleReaper destroys rooms that have had nobody connected for too long.
type IdleReaper interface {
	ReapIdle(maxIdle time.Duration) int
}

type RoomJanitor struct {
	rooms    IdleReaper
	maxIdle  time.Duration
	interval time.Duration
}

type NewRoomJanitorOptions struct {
	Rooms    IdleReaper
	MaxIdle  time.Duration
	Interval time.Duration
}

func NewRoomJanitor(opts NewRoomJanitorOptions) *RoomJanitor {
	return &RoomJanitor{
		rooms:    opts.Rooms,
		maxIdle:  opts.MaxIdle,
		interval: opts.Interval,
	}
}

func (w *RoomJanitor) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := w.rooms.ReapIdle(w.maxIdle); n > 0 {
				log.Info("Reaped %d idle rooms", n)
			}
		}
	}
}
