// Package indicator surfaces pipeline state on the desktop through
// notifications and short audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/glimpse/internal/config"
	"github.com/rbright/glimpse/internal/hypr"
)

const (
	colorListening = "rgb(89b4fa)"
	colorThinking  = "rgb(cba6f7)"
	colorSpeaking  = "rgb(a6e3a1)"
	colorError     = "rgb(f38ba8)"

	stickyTimeoutMS = 300000
)

// HyprNotify is the desktop indicator used by the pipeline.
// It routes notifications via Hyprland or desktop DBus based on config backend.
type HyprNotify struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	play     func(context.Context, []int16) error

	mu                    sync.Mutex
	desktopNotificationID uint32
	soundMu               sync.Mutex
	soundWG               sync.WaitGroup
}

// NewHyprNotify creates an indicator controller from config.
func NewHyprNotify(cfg config.IndicatorConfig, logger *slog.Logger) *HyprNotify {
	return &HyprNotify{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv().override(cfg),
		play:     playPCM,
	}
}

// ShowListening signals the start of a recording window.
func (h *HyprNotify) ShowListening(ctx context.Context) {
	h.playCue(cueListen)
	h.show(ctx, 1, stickyTimeoutMS, colorListening, h.messages.listening)
}

// ShowThinking signals the inference wait.
func (h *HyprNotify) ShowThinking(ctx context.Context) {
	h.show(ctx, 1, stickyTimeoutMS, colorThinking, h.messages.thinking)
}

// ShowSpeaking signals that an answer has been dispatched to the voice.
func (h *HyprNotify) ShowSpeaking(ctx context.Context) {
	h.show(ctx, 5, 4000, colorSpeaking, h.messages.speaking)
}

// ShowError displays an error-state indicator message.
func (h *HyprNotify) ShowError(ctx context.Context, text string) {
	h.playCue(cueError)
	if text == "" {
		text = h.messages.errorText
	}
	timeout := h.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	h.show(ctx, 3, timeout, colorError, text)
}

// CueHeard emits the cue played once a phrase has been recognized.
func (h *HyprNotify) CueHeard(context.Context) {
	h.playCue(cueHeard)
}

// Hide dismisses the active indicator surface.
func (h *HyprNotify) Hide(ctx context.Context) {
	if !h.cfg.Enable {
		return
	}
	h.run(ctx, h.dismiss)
}

// Wait blocks until queued cues have finished playing.
func (h *HyprNotify) Wait() {
	h.soundWG.Wait()
}

func (h *HyprNotify) show(ctx context.Context, icon, timeoutMS int, color, text string) {
	if !h.cfg.Enable {
		return
	}
	h.run(ctx, func(ctx context.Context) error {
		return h.notify(ctx, icon, timeoutMS, color, text)
	})
}

// notify dispatches indicator output through the configured backend.
func (h *HyprNotify) notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if strings.EqualFold(strings.TrimSpace(h.cfg.Backend), "desktop") {
		return h.notifyDesktop(ctx, timeoutMS, text)
	}
	return hypr.Notify(ctx, icon, timeoutMS, color, text)
}

// dismiss removes indicator output from the configured backend.
func (h *HyprNotify) dismiss(ctx context.Context) error {
	if strings.EqualFold(strings.TrimSpace(h.cfg.Backend), "desktop") {
		return h.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (h *HyprNotify) notifyDesktop(ctx context.Context, timeoutMS int, text string) error {
	h.mu.Lock()
	replaceID := h.desktopNotificationID
	h.mu.Unlock()

	appName := strings.TrimSpace(h.cfg.DesktopAppName)
	if appName == "" {
		appName = "glimpse"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, timeoutMS)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.desktopNotificationID = id
	h.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (h *HyprNotify) dismissDesktop(ctx context.Context) error {
	h.mu.Lock()
	id := h.desktopNotificationID
	h.desktopNotificationID = 0
	h.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (h *HyprNotify) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		h.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (h *HyprNotify) playCue(kind cueKind) {
	if !h.cfg.SoundEnable {
		return
	}
	h.soundWG.Add(1)
	go func() {
		defer h.soundWG.Done()
		h.soundMu.Lock()
		defer h.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		if err := h.play(ctx, h.cueSamples(kind)); err != nil {
			h.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (h *HyprNotify) log(message string, err error) {
	if h.logger == nil || err == nil {
		return
	}
	h.logger.Debug(message, "error", err.Error())
}
