// Package audioconv decodes audio files into mono float32 PCM at a chosen
// sample rate.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const DefaultSampleRate = 16000

type Options struct {
	SampleRate int // output rate, DefaultSampleRate when zero
	MaxSamples int // truncate output, 0 = no limit
}

func (o Options) rate() int {
	if o.SampleRate <= 0 {
		return DefaultSampleRate
	}
	return o.SampleRate
}

// finish downmixes, resamples and truncates decoded interleaved samples.
func (o Options) finish(x []float32, channels, rate int) []float32 {
	x = DownmixInterleaved(x, channels)
	x = ResampleLinear(x, rate, o.rate())
	if o.MaxSamples > 0 && len(x) > o.MaxSamples {
		x = x[:o.MaxSamples]
	}
	return x
}

// ConvertFile decodes wav, mp3, ogg/vorbis and ogg/opus. Unknown extensions
// are sniffed by their magic bytes.
func ConvertFile(_ context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return decodeWAV(f, opt)
	case ".mp3":
		return decodeMP3(f, opt)
	case ".ogg", ".oga", ".opus":
		return decodeOgg(f, opt)
	default:
		magic, _ := bufio.NewReader(f).Peek(4)
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		switch string(magic) {
		case "RIFF":
			return decodeWAV(f, opt)
		case "OggS":
			return decodeOgg(f, opt)
		default:
			return nil, fmt.Errorf("unsupported format: %s (supported: wav/mp3/ogg-vorbis/opus)", ext)
		}
	}
}

func decodeOgg(f io.ReadSeeker, opt Options) ([]float32, error) {
	if s, err := decodeOggVorbis(f, opt); err == nil {
		return s, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	s, err := decodeOggOpus(f, opt)
	if err != nil {
		return nil, fmt.Errorf("cannot decode ogg as vorbis or opus: %w", err)
	}
	return s, nil
}

func decodeWAV(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if pb == nil || pb.Data == nil {
		return nil, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}

	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}

	return opt.finish(intsToFloat32(pb.Data, bd), ch, sr), nil
}

func decodeMP3(r io.Reader, opt Options) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}

	// go-mp3 always emits interleaved stereo
	return opt.finish(int16ToFloat32(ints), 2, sr), nil
}

func decodeOggVorbis(r io.Reader, opt Options) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	return opt.finish(pcm, format.Channels, format.SampleRate), nil
}

func decodeOggOpus(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	ch := max(dec.ChannelCount(), 1)

	var (
		pcm []float32
		buf = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf) // samples per channel
		if n > 0 {
			pcm = append(pcm, int16ToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if len(pcm) == 0 {
		return nil, nil
	}

	// opus always decodes at 48 kHz
	return opt.finish(pcm, ch, 48000), nil
}

func intsToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(math.Max(-1, math.Min(1, float64(v)*scale)))
	}
	return out
}

func int16ToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

// Float32ToPCM16 encodes samples in [-1,1] as little-endian signed 16-bit.
func Float32ToPCM16(in []float32) []byte {
	out := make([]byte, 2*len(in))
	for i, x := range in {
		v := int16(math.Max(-1, math.Min(1, float64(x))) * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// DownmixInterleaved averages interleaved channels into mono.
func DownmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// ResampleLinear converts in from inSR to outSR by linear interpolation.
func ResampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := range outN {
		src := float64(i) / ratio
		i0 := int(src)
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}
