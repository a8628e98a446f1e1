// Package device captures microphone audio through PortAudio.
package device

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"

	"github.com/gordonklaus/portaudio"
)

var ErrNoInputDevice = errors.New("no input device")

func Init() error {
	return portaudio.Initialize()
}

func Close() {
	portaudio.Terminate()
}

// Info describes one capture-capable device.
type Info struct {
	Name       string
	Channels   int
	SampleRate float64
	Default    bool
}

// Inputs lists devices with at least one input channel.
func Inputs() ([]Info, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	def, _ := portaudio.DefaultInputDevice()

	var out []Info
	for _, d := range devs {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, Info{
			Name:       d.Name,
			Channels:   d.MaxInputChannels,
			SampleRate: d.DefaultSampleRate,
			Default:    def != nil && def.Name == d.Name,
		})
	}
	return out, nil
}

// Source reads mono blocks from the default input device at its native
// sample rate.
type Source struct {
	name  string
	rate  float64
	block int
}

func NewDefaultSource(block int) (*Source, error) {
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoInputDevice, err)
	}
	if dev == nil || dev.MaxInputChannels <= 0 {
		return nil, ErrNoInputDevice
	}

	if block <= 0 {
		block = 512
	}

	log.Info("Using microphone", "name", dev.Name, "rate", dev.DefaultSampleRate)

	return &Source{
		name:  dev.Name,
		rate:  dev.DefaultSampleRate,
		block: block,
	}, nil
}

func (s *Source) SampleRate() int { return int(s.rate) }

func (s *Source) Stream(ctx context.Context, fn func(block []float32)) error {
	buf := make([]float32, s.block)

	stream, err := portaudio.OpenDefaultStream(1, 0, s.rate, len(buf), buf)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	defer stream.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				log.Debug("Input overflowed", "device", s.name)
				continue
			}
			return fmt.Errorf("read %s: %w", s.name, err)
		}

		fn(append([]float32(nil), buf...))
	}
}
