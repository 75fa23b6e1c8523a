package traverse

import (
	"context"
	"time"
)

// pauseController abstracts the politeness delay so tests run without real
// sleeps.
type pauseController interface {
	Pause(ctx context.Context, d time.Duration)
}

type timerPauseController struct{}

func (timerPauseController) Pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
