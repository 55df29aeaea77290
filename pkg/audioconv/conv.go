// Package audioconv turns audio files into the 16 kHz mono float32 PCM that
// recognizers consume, and back into WAV for recognizers that want a file.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

const TargetRate = 16000

var ErrUnsupported = errors.New("audioconv: unsupported format")

type Options struct {
	MaxSamples int
}

// Decoder returns mono PCM at its native rate.
type Decoder func(r io.ReadSeeker) (pcm []float32, sampleRate int, err error)

var (
	decodersMu sync.RWMutex
	// ogg holds Vorbis first; extra Ogg codecs (Opus) register behind it.
	decoders = map[string][]Decoder{
		"wav": {decodeWAV},
		"mp3": {decodeMP3},
		"ogg": {decodeVorbis},
	}
)

// Register adds a decoder for a container. Later registrations are tried after
// the built-in ones.
func Register(container string, d Decoder) {
	decodersMu.Lock()
	defer decodersMu.Unlock()
	decoders[container] = append(decoders[container], d)
}

func DecodeFile(_ context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	container, err := containerOf(f, path)
	if err != nil {
		return nil, err
	}

	decodersMu.RLock()
	chain := decoders[container]
	decodersMu.RUnlock()

	var errs []error
	for _, dec := range chain {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		pcm, sr, err := dec(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pcm = Resample(pcm, sr, TargetRate)
		if opt.MaxSamples > 0 && len(pcm) > opt.MaxSamples {
			pcm = pcm[:opt.MaxSamples]
		}
		return pcm, nil
	}
	return nil, fmt.Errorf("decode %s as %s: %w", filepath.Base(path), container, errors.Join(errs...))
}

func containerOf(f *os.File, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "wav", nil
	case ".mp3":
		return "mp3", nil
	case ".ogg", ".oga", ".opus":
		return "ogg", nil
	}

	magic, _ := bufio.NewReader(f).Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	switch string(magic) {
	case "RIFF":
		return "wav", nil
	case "OggS":
		return "ogg", nil
	}
	if bytes.HasPrefix(magic, []byte("ID3")) {
		return "mp3", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, errors.New("empty wav")
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	channels, rate := int(dec.NumChans), int(dec.SampleRate)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels, rate = buf.Format.NumChannels, buf.Format.SampleRate
	}

	return Downmix(intsToFloat32(buf.Data, bitDepth), channels), rate, nil
}

func decodeMP3(r io.ReadSeeker) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, err
	}
	samples := make([]int16, len(raw)/2)
	if err := binary.Read(bytes.NewReader(raw[:len(samples)*2]), binary.LittleEndian, samples); err != nil {
		return nil, 0, err
	}
	// go-mp3 always yields interleaved stereo.
	return Downmix(Int16ToFloat32(samples), 2), dec.SampleRate(), nil
}

func decodeVorbis(r io.ReadSeeker) ([]float32, int, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, 0, errors.New("invalid ogg/vorbis stream")
	}
	return Downmix(pcm, format.Channels), format.SampleRate, nil
}

func intsToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1, 1))
	}
	return out
}

func Int16ToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

// PCM16 converts float samples to little-endian signed 16-bit bytes.
func PCM16(pcm []float32) []byte {
	out := make([]byte, len(pcm)*2)
	for i, x := range pcm {
		v := int16(clamp(float64(x), -1, 1) * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample converts by linear interpolation.
func Resample(in []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	n := int(float64(len(in))*ratio + 0.5)
	out := make([]float32, n)
	for i := range out {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i0+1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
