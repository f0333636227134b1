// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"spectrum/internal/analysis"
	applog "spectrum/internal/log"
)

const defaultInterval = 16 * time.Millisecond // ~60Hz

// PacketSender transmits one datagram.
type PacketSender interface {
	Send(data []byte) error
}

// UDPPublisher periodically reads the latest analysis frame, packs it into
// the binary packet format and sends it. It runs in a separate goroutine
// managed by Start and Stop.
type UDPPublisher struct {
	sender   PacketSender
	frames   analysis.FrameProvider
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32
	lastFrame   uint64 // Seq of the last frame sent.
	now         func() time.Time

	// Pre-allocated buffers for the send path.
	frame        analysis.Frame
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates a publisher for frames read from provider. An
// interval <= 0 defaults to 16ms.
func NewUDPPublisher(interval time.Duration, sender PacketSender, frames analysis.FrameProvider, bars int) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if frames == nil {
		return nil, fmt.Errorf("UDPPublisher: frame provider cannot be nil")
	}
	if bars > MaxBands {
		return nil, fmt.Errorf("UDPPublisher: %d bands exceed the packet limit of %d", bars, MaxBands)
	}

	if interval <= 0 {
		interval = defaultInterval
		applog.Warnf("udp: invalid interval, defaulting to %s", interval)
	}

	return &UDPPublisher{
		sender:       sender,
		frames:       frames,
		interval:     interval,
		now:          time.Now,
		frame:        analysis.Frame{Bands: make([]float64, 0, bars)},
		packetBuffer: bytes.NewBuffer(make([]byte, 0, HeaderSize+4*bars)),
	}, nil
}

// Start begins the periodic publishing. Calling Start on a running
// publisher is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("udp: Start called but already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Local copies keep the goroutine off p.ticker and p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("udp: publisher started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to exit and waits for it. It is
// safe to call Stop multiple times.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("udp: publisher stopped after %d packets", p.sequenceNum)
	return nil
}

// publish sends the latest frame if it has not been sent yet. It reports
// whether a packet went out.
func (p *UDPPublisher) publish() bool {
	if !p.frames.LoadInto(&p.frame) {
		return false
	}
	if p.sequenceNum > 0 && p.frame.Seq == p.lastFrame {
		return false
	}

	p.packetBuffer.Reset()
	if err := AppendPacket(p.packetBuffer, p.sequenceNum+1, p.now().UnixNano(), &p.frame); err != nil {
		applog.Errorf("udp: %v", err)
		return false
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		applog.Debugf("udp: %v", err)
		return false
	}
	p.sequenceNum++
	p.lastFrame = p.frame.Seq
	return true
}

// Close stops the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

// Ensure UDPPublisher satisfies the io.Closer interface at compile time.
var _ interface{ Close() error } = (*UDPPublisher)(nil)
