// Package espeak speaks text through the local espeak-ng engine.
package espeak

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

static int glimpse_espeak_init(const char *voice, int rate, int volume)
{
	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -1; }
	if (voice && espeak_SetVoiceByName(voice) != EE_OK)
	{ return -2; }
	espeak_SetParameter(espeakRATE, rate, 0);
	espeak_SetParameter(espeakVOLUME, volume, 0);
	return 0;
}

static int glimpse_espeak_say(const char *text)
{
	if (!text)
	{ return -1; }
	if (espeak_Synth(text, 0, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -2; }
	return espeak_Synchronize() == EE_OK ? 0 : -3;
}

static void glimpse_espeak_cancel(void)
{
	espeak_Cancel();
}

static void glimpse_espeak_terminate(void)
{
	espeak_Terminate();
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// Options mirror espeak parameters. Volume is 0..1 and maps onto espeak's 0..200 scale.
type Options struct {
	Voice  string
	Rate   int
	Volume float64
}

// Engine owns the process-wide espeak instance.
type Engine struct {
	mu sync.Mutex
}

// New initializes espeak-ng. Only one Engine may exist per process.
func New(opts Options) (*Engine, error) {
	if opts.Voice == "" {
		opts.Voice = "en"
	}
	if opts.Rate <= 0 {
		opts.Rate = 180
	}
	if opts.Volume <= 0 {
		opts.Volume = 0.8
	}

	cvoice := C.CString(opts.Voice)
	defer C.free(unsafe.Pointer(cvoice))

	rc := C.glimpse_espeak_init(cvoice, C.int(opts.Rate), C.int(opts.Volume*100))
	if rc != 0 {
		return nil, fmt.Errorf("espeak init failed: %d", int(rc))
	}
	return &Engine{}, nil
}

// Speak blocks until the utterance has played. Cancelling ctx stops playback.
func (e *Engine) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { C.glimpse_espeak_cancel() })
	defer stop()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	if rc := C.glimpse_espeak_say(ctext); rc != 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("espeak synth failed: %d", int(rc))
	}
	return ctx.Err()
}

// Close releases the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	C.glimpse_espeak_terminate()
	return nil
}
