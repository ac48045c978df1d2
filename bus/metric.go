package bus

import "sync/atomic"

// Metrics contains atomic counters of a Mux.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// FramesRecv indicates the number of frames read from the transport.
	FramesRecv atomic.Uint64
	// FramesSent indicates the number of frames written to the transport.
	FramesSent atomic.Uint64
	// FramesLagged indicates the number of frames dropped for slow subscribers.
	FramesLagged atomic.Uint64

	// OpsRunning indicates the number of operations in progress.
	OpsRunning atomic.Int64
	// OpsFailed indicates the number of operations that returned an error.
	OpsFailed atomic.Uint64

	// SessionCount indicates the number of sessions started with Run.
	SessionCount atomic.Uint64
}

func (m *Metrics) incFramesRecv() {
	m.FramesRecv.Add(1)
}

func (m *Metrics) incFramesSent() {
	m.FramesSent.Add(1)
}

func (m *Metrics) incFramesLagged() {
	m.FramesLagged.Add(1)
}

func (m *Metrics) incOpsRunning() {
	m.OpsRunning.Add(1)
}

func (m *Metrics) decOpsRunning() {
	m.OpsRunning.Add(-1)
}

func (m *Metrics) incOpsFailed() {
	m.OpsFailed.Add(1)
}

func (m *Metrics) incSessionCount() {
	m.SessionCount.Add(1)
}
