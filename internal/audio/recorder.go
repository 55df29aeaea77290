package audio

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"ladybot/internal/vad"
)

const (
	SampleRate = 16000
	frameSize  = 320 // 20ms
)

type Device struct {
	Index      int
	Name       string
	MaxInputCh int
}

// Recorder captures utterances from one input device chosen by index.
type Recorder struct {
	mu     sync.Mutex
	index  int
	device *portaudio.DeviceInfo
	vadCfg vad.Config
}

func NewRecorder(deviceIndex int, cfg vad.Config) *Recorder {
	return &Recorder{index: deviceIndex, vadCfg: cfg}
}

// Init starts PortAudio and resolves the device index. There is no fallback
// to another device.
func (r *Recorder) Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	devices, err := portaudio.Devices()
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("list devices: %w", err)
	}
	if r.index < 0 || r.index >= len(devices) {
		portaudio.Terminate()
		return fmt.Errorf("microphone index %d out of range (%d devices)", r.index, len(devices))
	}
	dev := devices[r.index]
	if dev.MaxInputChannels < 1 {
		portaudio.Terminate()
		return fmt.Errorf("device %d (%s) has no input channels", r.index, dev.Name)
	}
	r.device = dev
	log.Debug("Microphone selected", "index", r.index, "name", dev.Name)
	return nil
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// PortAudio entry points used by Devices; PortAudio reference-counts
// Initialize and Terminate, so pairing them here is safe next to a Recorder.
var (
	paInitialize = portaudio.Initialize
	paTerminate  = portaudio.Terminate
	paDevices    = portaudio.Devices
)

// Devices lists every audio device PortAudio sees. It initializes PortAudio
// for the duration of the call.
func Devices() ([]Device, error) {
	if err := paInitialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer paTerminate()

	infos, err := paDevices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	out := make([]Device, 0, len(infos))
	for i, d := range infos {
		out = append(out, Device{Index: i, Name: d.Name, MaxInputCh: d.MaxInputChannels})
	}
	return out, nil
}

// Listen calibrates against ambient noise for the given duration and then
// returns one utterance. It blocks until speech ends or ctx is done.
func (r *Recorder) Listen(ctx context.Context, ambient time.Duration) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device == nil {
		return nil, fmt.Errorf("recorder not initialized")
	}

	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   r.device,
			Channels: 1,
			Latency:  r.device.DefaultLowInputLatency,
		},
		SampleRate:      SampleRate,
		FramesPerBuffer: len(buf),
	}, buf)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}
	defer stream.Stop()

	ep := vad.NewEndpointer(r.vadCfg)

	calibration := int(ambient * SampleRate / time.Second / frameSize)
	var noise [][]float32
	for i := 0; i < calibration; i++ {
		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		noise = append(noise, append([]float32(nil), buf...))
	}
	ep.Calibrate(noise)
	log.Debug("Ambient calibrated", "threshold", ep.Threshold())

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if ep.Push(buf) == vad.Done {
			return ep.Samples(), nil
		}
	}
}
