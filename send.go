package irc

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// minFloodDelay is the smallest practical inter-send delay.
const minFloodDelay = 33 * time.Millisecond

// sender serializes all writes for one connection. Lines drain from a
// FIFO queue on a dedicated goroutine, so writes always reach the wire
// in submission order, optionally paced by the flood limiter.
type sender struct {
	conn    net.Conn
	queue   chan string
	limiter *rate.Limiter
	onWrite func(time.Time)
	onErr   func(error)

	closeOnce sync.Once
	drained   chan struct{}
}

func newSender(conn net.Conn, floodDelay time.Duration, onWrite func(time.Time), onErr func(error)) *sender {
	s := &sender{
		conn:    conn,
		queue:   make(chan string, 64),
		onWrite: onWrite,
		onErr:   onErr,
		drained: make(chan struct{}),
	}
	if floodDelay > 0 {
		if floodDelay < minFloodDelay {
			floodDelay = minFloodDelay
		}
		s.limiter = rate.NewLimiter(rate.Every(floodDelay), 1)
	}
	go s.run()
	return s
}

func (s *sender) run() {
	defer close(s.drained)
	for line := range s.queue {
		if s.limiter != nil {
			r := s.limiter.Reserve()
			time.Sleep(r.Delay())
		}
		now := time.Now()
		if _, err := s.conn.Write([]byte(line + "\r\n")); err != nil {
			s.onErr(err)
			return
		}
		if s.onWrite != nil {
			s.onWrite(now)
		}
	}
}

// enqueue appends one line to the write queue.
func (s *sender) enqueue(line string) {
	defer func() {
		// the queue may close concurrently with a late send; those
		// lines are dropped like any other post-disconnect write
		_ = recover()
	}()
	s.queue <- line
}

// close stops the writer once the queue drains and reports completion.
func (s *sender) close() <-chan struct{} {
	s.closeOnce.Do(func() { close(s.queue) })
	return s.drained
}
