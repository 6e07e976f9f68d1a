package monitor

import (
	"fmt"
	"time"
)

// vmLogTolerance mirrors the stall detector's boundary forgiveness.
const vmLogTolerance = time.Second

// VMRecord is one committed-memory observation emitted by the VMLogger.
type VMRecord struct {
	Timestamp time.Time
	Value     uint64
	Delta     int64
	Init      bool
}

// VMLogger emits a committed-memory record at a coarse interval. Purely
// observational; it never feeds the alarm path.
type VMLogger struct {
	interval time.Duration

	initialized bool
	lastTime    time.Time
	lastValue   uint64
}

func NewVMLogger(interval time.Duration) (*VMLogger, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("vm log interval must be > 0")
	}
	return &VMLogger{interval: interval}, nil
}

// Record returns a record and true when one is due. The first call always
// emits an initialization record with zero delta.
func (l *VMLogger) Record(now time.Time, value uint64) (VMRecord, bool) {
	if !l.initialized {
		l.initialized = true
		l.lastTime = now
		l.lastValue = value
		return VMRecord{Timestamp: now, Value: value, Init: true}, true
	}

	if now.Sub(l.lastTime) < l.interval-vmLogTolerance {
		return VMRecord{}, false
	}

	record := VMRecord{
		Timestamp: now,
		Value:     value,
		Delta:     int64(value) - int64(l.lastValue),
	}
	l.lastTime = now
	l.lastValue = value
	return record, true
}
