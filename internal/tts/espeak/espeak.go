// Package espeak speaks through libespeak-ng in synchronous playback mode.
package espeak

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
ladybot_espeak_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0);
}

static int
ladybot_espeak_configure(const char *voice, int rate, int volume)
{
	if (voice && voice[0] && espeak_SetVoiceByName(voice) != EE_OK)
	{ return -1; }
	if (espeak_SetParameter(espeakRATE, rate, 0) != EE_OK)
	{ return -2; }
	if (espeak_SetParameter(espeakVOLUME, volume, 0) != EE_OK)
	{ return -3; }
	return 0;
}

static int
ladybot_espeak_say(const char *text)
{
	espeak_ERROR rc = espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	if (rc != EE_OK)
	{ return (int)rc; }
	espeak_Synchronize();
	return 0;
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"ladybot/internal/tts"
)

// Speaker holds the process-wide espeak-ng engine. Create it once.
type Speaker struct {
	mu     sync.Mutex
	closed bool
}

var _ tts.Speaker = (*Speaker)(nil)

func New(v tts.Voice) (*Speaker, error) {
	if rc := C.ladybot_espeak_init(); rc < 0 {
		return nil, fmt.Errorf("espeak init failed: %d", int(rc))
	}

	cvoice := C.CString(v.Name)
	defer C.free(unsafe.Pointer(cvoice))

	// espeak volume is 0..200 with 100 as normal
	volume := int(v.Volume * 100)
	if rc := C.ladybot_espeak_configure(cvoice, C.int(v.Rate), C.int(volume)); rc != 0 {
		C.espeak_Terminate()
		return nil, fmt.Errorf("espeak configure voice=%q rate=%d volume=%v: %d", v.Name, v.Rate, v.Volume, int(rc))
	}
	return &Speaker{}, nil
}

// Say blocks until the text has been spoken. Cancelling ctx stops playback.
func (s *Speaker) Say(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("espeak: speaker closed")
	}

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			C.espeak_Cancel()
		case <-done:
		}
	}()

	if rc := C.ladybot_espeak_say(ctext); rc != 0 {
		return fmt.Errorf("espeak synth failed: %d", int(rc))
	}
	return ctx.Err()
}

func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	C.espeak_Terminate()
	return nil
}
