package engine

import (
	"sync"
	"time"

	"github.com/roach88/switchboard/internal/envelope"
)

// schedule drives the background behavior chosen from the host's capability
// probe: periodic compaction requests and, on slow platforms, liveness pings.
// Ticks are delivered to the Run loop as events.
type schedule struct {
	stopCh     chan struct{}
	wg         sync.WaitGroup
	compaction time.Duration
	ping       time.Duration
}

// startSchedule begins ticking. ping is zero when no pings are wanted.
func startSchedule(compaction, ping time.Duration, emit func(EventType)) *schedule {
	s := &schedule{
		stopCh:     make(chan struct{}),
		compaction: compaction,
		ping:       ping,
	}

	s.wg.Add(1)
	go s.tick(compaction, EventCompactionDue, emit)

	if ping > 0 {
		s.wg.Add(1)
		go s.tick(ping, EventPingDue, emit)
	}

	return s
}

func (s *schedule) tick(every time.Duration, typ EventType, emit func(EventType)) {
	defer s.wg.Done()

	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			emit(typ)
		}
	}
}

// stop halts both tickers and waits for them to exit.
func (s *schedule) stop() {
	if s == nil {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

// planSchedule derives intervals from a capability probe.
func planSchedule(settings Settings, init envelope.Init) (compaction, ping time.Duration) {
	compaction = settings.compactionInterval(init.MemoryClass)
	if init.SlowPlatform {
		ping = settings.Ping
	}
	return compaction, ping
}
