package push

import (
	"math/bits"
	"sync"
	"time"
)

// ticker calls fn at anchor + k*period until stopped.
type ticker struct {
	stop chan struct{}
	once sync.Once
}

func startTicker(anchor time.Time, period time.Duration, fn func()) *ticker {
	t := &ticker{stop: make(chan struct{})}
	go t.run(anchor, period, fn)
	return t
}

func (t *ticker) run(anchor time.Time, period time.Duration, fn func()) {
	next := nextTick(time.Now(), anchor, period)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-timer.C:
		}
		fn()
		// Ticks missed while fn ran are skipped.
		next = nextTick(time.Now(), next, period)
		timer.Reset(time.Until(next))
	}
}

func (t *ticker) Stop() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.stop) })
}

// nextTick returns the first anchor + k*period strictly after now, or the
// anchor itself when it lies in the future. The elapsed time is reduced
// modulo period in 128 bits, so anchors of any age give a tick within one
// period of now.
func nextTick(now, anchor time.Time, period time.Duration) time.Time {
	if anchor.After(now) {
		return anchor
	}
	secs := now.Unix() - anchor.Unix()
	nanos := int64(now.Nanosecond() - anchor.Nanosecond())
	if nanos < 0 {
		secs--
		nanos += int64(time.Second)
	}
	hi, lo := bits.Mul64(uint64(secs), uint64(time.Second))
	lo, carry := bits.Add64(lo, uint64(nanos), 0)
	hi += carry
	rem := bits.Rem64(hi, lo, uint64(period))
	return now.Add(period - time.Duration(rem))
}
