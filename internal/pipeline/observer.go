package pipeline

import (
	"context"
	"time"

	"github.com/rbright/glimpse/internal/fsm"
)

type LineKind string

const (
	LineUser      LineKind = "user"
	LineAssistant LineKind = "assistant"
	LineImage     LineKind = "image"
	LineNotice    LineKind = "notice"
	LineError     LineKind = "error"
)

// Line is one entry of the displayed transcript. It is a superset of the
// conversation history: notices, errors and image captures appear only here.
type Line struct {
	Kind      LineKind
	Text      string
	Thumbnail []byte
	RequestID string
	At        time.Time
}

// Observer receives pipeline output. Methods may be called from the worker
// goroutine, from Trigger callers and from speech playback goroutines and
// must not block.
//
// Accepted fires before the worker sees the request, so the request counts as
// busy until the next StateChanged.
type Observer interface {
	Accepted(Request)
	StateChanged(fsm.State)
	Appended(Line)
}

type noopObserver struct{}

func (noopObserver) Accepted(Request)       {}
func (noopObserver) StateChanged(fsm.State) {}
func (noopObserver) Appended(Line)          {}

// Indicator is the pipeline-facing subset of desktop indicator behavior.
type Indicator interface {
	ShowListening(context.Context)
	ShowThinking(context.Context)
	ShowSpeaking(context.Context)
	ShowError(context.Context, string)
	CueHeard(context.Context)
	Hide(context.Context)
}

type noopIndicator struct{}

func (noopIndicator) ShowListening(context.Context)     {}
func (noopIndicator) ShowThinking(context.Context)      {}
func (noopIndicator) ShowSpeaking(context.Context)      {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueHeard(context.Context)          {}
func (noopIndicator) Hide(context.Context)              {}
