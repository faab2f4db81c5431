package dispatch

import "github.com/roach88/switchboard/internal/envelope"

// Probe reports host capabilities once readiness is reached. The engine uses
// the report to pick its background intervals.
type Probe interface {
	Probe() envelope.Init
}

// StaticProbe reports fixed capabilities, typically from configuration.
type StaticProbe struct {
	MemoryClass  int
	SlowPlatform bool
}

func (p StaticProbe) Probe() envelope.Init {
	return envelope.Init{MemoryClass: p.MemoryClass, SlowPlatform: p.SlowPlatform}
}
