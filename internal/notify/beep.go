// Package notify signals state changes to the user: an audible earcon before
// listening and an optional desktop notification.
package notify

import (
	"context"
	"math"
	"os/exec"
	"time"

	"github.com/faiface/beep"
)

const earconRate beep.SampleRate = 44100

// Player is satisfied by playback.Player.
type Player interface {
	Play(ctx context.Context, s beep.Streamer, rate beep.SampleRate) error
}

// Earcon plays a short two-tone chime.
func Earcon(ctx context.Context, p Player) error {
	return p.Play(ctx, beep.Seq(
		Tone(880, 80*time.Millisecond),
		Tone(1320, 120*time.Millisecond),
	), earconRate)
}

// Tone is a sine at freq Hz with a 5ms linear fade at both ends.
func Tone(freq float64, d time.Duration) beep.Streamer {
	total := earconRate.N(d)
	fade := earconRate.N(5 * time.Millisecond)
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= total {
			return 0, false
		}
		n := 0
		for i := range samples {
			if pos >= total {
				break
			}
			gain := 0.3
			if pos < fade {
				gain *= float64(pos) / float64(fade)
			} else if total-pos < fade {
				gain *= float64(total-pos) / float64(fade)
			}
			v := gain * math.Sin(2*math.Pi*freq*float64(pos)/float64(earconRate))
			samples[i] = [2]float64{v, v}
			pos++
			n++
		}
		return n, true
	})
}

// Desktop shows a notification through notify-send when it is installed.
func Desktop(ctx context.Context, summary, body string) error {
	bin, err := exec.LookPath("notify-send")
	if err != nil {
		return err
	}
	return exec.CommandContext(ctx, bin, "-a", "Ladybot", "-t", "2000", summary, body).Run()
}
