package connection

import (
	"context"

	"github.com/eucdash/wheelcore/internal/wheel"
)

// LogSink is the attach_observer contract any consumer that wants a
// durable record of every published WheelState implements — most
// commonly a CSV ride log.
type LogSink interface {
	RecordSample(state *wheel.WheelState)
}

// AttachLogSink subscribes sink to every WheelState the Manager publishes
// for the lifetime of ctx, mirroring the other vendor observers
// (AlarmChecker, EnergyCalculator) that consume the same stream.
func (m *Manager) AttachLogSink(ctx context.Context, sink LogSink) {
	ch := m.SubscribeWheelState()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case state, ok := <-ch:
				if !ok {
					return
				}
				sink.RecordSample(state)
			}
		}
	}()
}
