// Package opus adds Ogg/Opus decoding to audioconv. Import it for side effects;
// it needs libopus and libopusfile at build time.
package opus

import (
	"io"

	popus "github.com/pekim/opus"

	"ladybot/pkg/audioconv"
)

func init() {
	audioconv.Register("ogg", Decode)
}

// Decode reads an Ogg/Opus stream; libopusfile always decodes at 48 kHz.
func Decode(r io.ReadSeeker) ([]float32, int, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var pcm []float32
	buf := make([]int16, 48_000*ch/2)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, audioconv.Int16ToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
	}

	return audioconv.Downmix(pcm, ch), 48000, nil
}
