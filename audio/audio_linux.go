//go:build linux

package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// Pulse resamples for us, so capture asks for a fixed rate when the caller
// leaves it at 0.
const pulseDefaultCaptureRate = 48000

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("juru"))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	var devices []DeviceInfo
	for _, s := range sources {
		devices = append(devices, DeviceInfo{
			ID:   s.ID(),
			Name: s.Name(),
		})
	}
	return devices, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	rate := config.SampleRate
	if rate == 0 {
		rate = pulseDefaultCaptureRate
	}
	return &pulseCapture{
		client: p.client,
		device: device,
		rate:   rate,
		blocks: newBlocker(config.BlockSize),
	}, nil
}

func (p *pulseContext) NewPlayback(config PlaybackConfig) (PlaybackDevice, error) {
	pb := &pulsePlayback{rate: config.SampleRate}
	reader := pulse.Float32Reader(func(out []float32) (int, error) {
		clear(out)
		if r := pb.renderer.Load(); r != nil {
			(*r)(out)
		}
		return len(out), nil
	})
	stream, err := p.client.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(int(config.SampleRate)),
		pulse.PlaybackLatency(0.05),
	)
	if err != nil {
		return nil, fmt.Errorf("pulse playback: %w", err)
	}
	pb.stream = stream
	return pb, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

type pulseCapture struct {
	client   *pulse.Client
	device   *DeviceInfo
	rate     uint32
	callback atomic.Pointer[DataCallback]
	blocks   *blocker

	stream *pulse.RecordStream
	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	writer := pulse.Float32Writer(func(buf []float32) (int, error) {
		if len(buf) == 0 {
			return 0, nil
		}
		cb := c.callback.Load()
		if cb == nil {
			return len(buf), nil
		}
		c.blocks.push(buf, func(block []float32) { (*cb)(block, c.rate) })
		return len(buf), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(c.rate)),
		pulse.RecordLatency(0.05),
		pulse.RecordRawOption(func(r *proto.CreateRecordStream) {
			r.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}),
	}
	if c.device != nil {
		source, err := c.client.SourceByID(c.device.ID)
		if err == nil && source != nil {
			opts = append(opts, pulse.RecordSource(source))
		}
	}

	stream, err := c.client.NewRecord(writer, opts...)
	if err != nil {
		return fmt.Errorf("pulse record: %w", err)
	}

	c.stream = stream
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		stream.Start()
		<-c.stop
		stream.Stop()
		stream.Close()
	}()

	return nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		select {
		case <-c.stop:
		default:
			close(c.stop)
		}
		<-c.done
	}
	c.blocks.reset()
}

func (c *pulseCapture) Close() {
	c.Stop()
}

func (c *pulseCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *pulseCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *pulseCapture) DeviceName() string {
	if c.device != nil {
		return c.device.Name
	}
	return "system default"
}

type pulsePlayback struct {
	stream   *pulse.PlaybackStream
	rate     uint32
	renderer atomic.Pointer[RenderCallback]
	once     sync.Once
}

func (p *pulsePlayback) Start() error {
	p.stream.Start()
	return p.stream.Error()
}

func (p *pulsePlayback) Stop() {
	p.stream.Stop()
}

func (p *pulsePlayback) Close() {
	p.once.Do(func() {
		p.stream.Stop()
		p.stream.Close()
	})
}

func (p *pulsePlayback) SetRenderer(r RenderCallback) {
	if r == nil {
		p.renderer.Store(nil)
		return
	}
	p.renderer.Store(&r)
}

func (p *pulsePlayback) SampleRate() uint32 {
	return uint32(p.stream.SampleRate())
}
