// Package espeak speaks text locally through libespeak-ng.
package espeak

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
espeak_say(const char *text, const char *lang, int rate)
{
	if (!text)
	{ return -1; }

	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -2; }

	espeak_VOICE specs = { 0 };
	specs.languages = lang;
	espeak_SetVoiceByProperties(&specs);
	if (rate > 0)
	{ espeak_SetParameter(espeakRATE, rate, 0); }

	espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// Synth plays speech synchronously. libespeak-ng keeps global state, so
// calls are serialized.
type Synth struct {
	mu    sync.Mutex
	voice string
	rate  int
}

// New returns a synthesizer for a language code such as "en" or "ru".
// rate is in words per minute, 0 keeps the library default.
func New(voice string, rate int) *Synth {
	if voice == "" {
		voice = "en"
	}
	return &Synth{voice: voice, rate: rate}
}

// Speak blocks until playback ends. Cancellation is only checked before
// synthesis starts.
func (s *Synth) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	clang := C.CString(s.voice)
	defer C.free(unsafe.Pointer(clang))

	if rc := C.espeak_say(ctext, clang, C.int(s.rate)); rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}
	return nil
}
