package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id       int
	from, to int
}

// pactl is swapped in tests.
var pactl = func(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

// Ducker lowers other applications' PulseAudio streams while Ladybot speaks
// and restores them afterwards. Streams whose application.name is in self are
// left alone.
type Ducker struct {
	mu       sync.Mutex
	ducked   bool
	self     []string
	saved    map[int]int
	Factor   float64
	Floor    int
	FadeDown time.Duration
	FadeUp   time.Duration
}

func NewDucker(self ...string) *Ducker {
	return &Ducker{
		self:     self,
		saved:    make(map[int]int),
		Factor:   0.3,
		Floor:    10,
		FadeDown: 150 * time.Millisecond,
		FadeUp:   300 * time.Millisecond,
	}
}

func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ducked {
		return nil
	}

	inputs, err := listSinkInputs(ctx)
	if err != nil {
		return err
	}

	d.saved = make(map[int]int)
	var fades []fade
	for _, in := range inputs {
		if d.isSelf(in) {
			continue
		}
		to := int(math.Round(float64(in.Volume) * d.Factor))
		to = max(to, d.Floor)
		to = min(to, in.Volume)
		d.saved[in.ID] = in.Volume
		fades = append(fades, fade{id: in.ID, from: in.Volume, to: to})
	}

	d.ducked = true
	return runFades(ctx, fades, d.FadeDown)
}

func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ducked {
		return nil
	}
	d.ducked = false

	inputs, err := listSinkInputs(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, in := range inputs {
		orig, ok := d.saved[in.ID]
		if !ok || d.isSelf(in) {
			// stream appeared after Duck
			continue
		}
		fades = append(fades, fade{id: in.ID, from: in.Volume, to: orig})
	}
	d.saved = make(map[int]int)

	return runFades(ctx, fades, d.FadeUp)
}

func (d *Ducker) isSelf(in sinkInput) bool {
	for _, name := range d.self {
		if in.AppName == name {
			return true
		}
	}
	return false
}

func runFades(ctx context.Context, fades []fade, duration time.Duration) error {
	if len(fades) == 0 {
		return nil
	}

	steps := int(duration / (10 * time.Millisecond))
	if steps < 1 {
		steps = 1
	}
	step := duration / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := setVolume(ctx, f.id, v); err != nil {
				return fmt.Errorf("sink-input %d: %w", f.id, err)
			}
		}
		if i < steps {
			time.Sleep(step)
		}
	}
	return nil
}

func listSinkInputs(ctx context.Context) ([]sinkInput, error) {
	out, err := pactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	var res []sinkInput
	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		in := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Volume:") && in.Volume == 0:
				if m := percentRe.FindStringSubmatch(line); m != nil {
					in.Volume, _ = strconv.Atoi(m[1])
				}
			case strings.HasPrefix(line, "application.name =") && in.AppName == "":
				_, v, _ := strings.Cut(line, "=")
				in.AppName = strings.Trim(strings.TrimSpace(v), `"`)
			}
		}
		if in.Volume == 0 && in.AppName == "" {
			continue
		}
		res = append(res, in)
	}
	return res
}

func setVolume(ctx context.Context, id, percent int) error {
	percent = max(0, min(percent, 150))
	_, err := pactl(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent))
	return err
}
