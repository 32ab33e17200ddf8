package verification

import (
	"time"

	"github.com/localjobs/identity/services/logging"
	"go.uber.org/zap"
)

// Sweeper periodically removes expired verification tokens. Expiry is the
// only teardown path for unconsumed records, so without the sweep dead
// rows accumulate per (user, type).
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *logging.Service
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(service *Service, interval time.Duration, logger *logging.Service) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *Sweeper) Start() {
	go w.run()
}

func (w *Sweeper) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Sweeper) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.service.CleanupExpired(); err != nil {
				w.logger.Error("verification token sweep failed", zap.Error(err))
			}
		case <-w.stop:
			return
		}
	}
}
