package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/rbright/glimpse/internal/audio"
	"github.com/rbright/glimpse/internal/audio/portaudio"
	"github.com/rbright/glimpse/internal/capture"
	"github.com/rbright/glimpse/internal/capture/gstcam"
	"github.com/rbright/glimpse/internal/config"
	"github.com/rbright/glimpse/internal/doctor"
	"github.com/rbright/glimpse/internal/fsm"
	"github.com/rbright/glimpse/internal/indicator"
	"github.com/rbright/glimpse/internal/inference"
	"github.com/rbright/glimpse/internal/ipc"
	"github.com/rbright/glimpse/internal/pipeline"
	"github.com/rbright/glimpse/internal/proxy"
	"github.com/rbright/glimpse/internal/shell"
	"github.com/rbright/glimpse/internal/speech"
	"github.com/rbright/glimpse/internal/speech/whisper"
	"github.com/rbright/glimpse/internal/voice"
	"github.com/rbright/glimpse/internal/voice/espeak"
)

var errMissingCredential = errors.New("inference credential is not set")

// control is the slice of the pipeline the IPC server drives.
type control interface {
	Trigger(source string) (pipeline.Request, error)
	State() fsm.State
	Busy() bool
}

// pipelineRef lets the shell be constructed before the pipeline it controls.
type pipelineRef struct {
	*pipeline.Pipeline
}

// assistant holds the constructed runtime. closers run in reverse order.
type assistant struct {
	source    *capture.Source
	pipeline  *pipeline.Pipeline
	shell     *shell.Shell
	voice     *voice.Dispatcher
	indicator *indicator.HyprNotify
	closers   []func()
}

func (a *assistant) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	apiKey, err := credential(cfg.Inference)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("startup failed", "error", err.Error())
		return 1
	}

	socketPath, err := ipc.SocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	ipcListener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{ProbeTimeout: 180 * time.Millisecond, Retries: 8})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = ipcListener.Close()
		_ = os.Remove(socketPath)
	}()

	shellListener, err := net.Listen("tcp", cfg.Shell.Listen)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: shell listen %s: %v\n", cfg.Shell.Listen, err)
		return 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := build(runCtx, cfg, apiKey, cancel, logger)
	if err != nil {
		_ = shellListener.Close()
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("startup failed", "error", err.Error())
		return 1
	}
	defer a.close()

	sourceCtx, stopSource := context.WithCancel(context.Background())
	defer stopSource()
	go func() { _ = a.source.Run(sourceCtx) }()

	var shellWG sync.WaitGroup
	shellWG.Add(2)
	go func() {
		defer shellWG.Done()
		_ = a.shell.Run(runCtx)
	}()
	go func() {
		defer shellWG.Done()
		if err := a.shell.Serve(runCtx, shellListener); err != nil {
			logger.Error("shell server failed", "error", err.Error())
			cancel()
		}
	}()

	url := "http://" + shellListener.Addr().String()
	logger.Info("shell ready", "url", url)
	fmt.Fprintln(r.Stdout, url)
	if cfg.Shell.OpenBrowser {
		openBrowser(cfg.Shell.OpenCmd.With(url), logger)
	}

	ipcDone := make(chan error, 1)
	go func() {
		srv := &ipc.Server{Handler: ipcHandler(a.pipeline, cancel), Logger: logger}
		ipcDone <- srv.Serve(runCtx, ipcListener)
	}()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = a.pipeline.Run(context.WithoutCancel(runCtx))
	}()

	a.pipeline.Greet()
	<-runCtx.Done()
	logger.Info("shutting down")

	shellWG.Wait()
	stopSource()
	<-a.source.Done()
	a.voice.Stop()
	a.indicator.Hide(context.Background())
	a.indicator.Wait()
	a.pipeline.Close()

	// In-flight recognition or inference is never cancelled; it is abandoned
	// once the grace period elapses.
	select {
	case <-workerDone:
	case <-time.After(millis(cfg.ShutdownGraceMS)):
		logger.Warn("request still in flight at shutdown; abandoning it")
	}

	if err := <-ipcDone; err != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", err)
		return 1
	}
	return 0
}

// credential resolves the inference API key from the environment.
func credential(cfg config.InferenceConfig) (string, error) {
	env := doctor.APIKeyEnv(cfg)
	key := strings.TrimSpace(os.Getenv(env))
	if key == "" {
		return "", fmt.Errorf("%w: %s", errMissingCredential, env)
	}
	return key, nil
}

func build(ctx context.Context, cfg config.Config, apiKey string, quit func(), logger *slog.Logger) (*assistant, error) {
	a := &assistant{}
	fail := func(err error) (*assistant, error) {
		a.close()
		return nil, err
	}

	httpClient, err := proxy.NewHTTPClient(cfg.Network.SocksProxy, millis(cfg.Inference.TimeoutMS))
	if err != nil {
		return fail(err)
	}

	infer, err := inference.New(ctx, inference.Config{
		Provider:   cfg.Inference.Provider,
		Model:      cfg.Inference.Model,
		APIKey:     apiKey,
		MaxTokens:  cfg.Inference.MaxTokens,
		BaseURL:    cfg.Inference.BaseURL,
		HTTPClient: httpClient,
	})
	if err != nil {
		return fail(fmt.Errorf("inference client: %w", err))
	}
	openaiClient := openai.NewClient(
		option.WithAPIKey(openAIKey(cfg.Inference, apiKey)),
		option.WithHTTPClient(httpClient),
	)

	mic, err := a.openMicrophone(ctx, cfg.Audio, logger)
	if err != nil {
		return fail(err)
	}
	recorder := speech.NewRecorder(mic, speech.RecorderOptions{
		EnergyThreshold: cfg.Listen.EnergyThreshold,
		Pause:           millis(cfg.Listen.PauseMS),
		Logger:          logger,
	})

	transcriber, err := a.newTranscriber(cfg.Listen, openaiClient)
	if err != nil {
		return fail(err)
	}
	recognizer := speech.NewRecognizer(recorder, transcriber, logger)
	if cfg.Debug.EnableAudioDump {
		recognizer.DumpDir = config.ExpandHome(cfg.Debug.AudioDumpDir)
	}

	speaker, err := a.newSpeaker(cfg.Voice, openaiClient)
	if err != nil {
		return fail(err)
	}
	a.voice = voice.NewDispatcher(speaker, logger)
	a.closers = append(a.closers, a.voice.Stop)

	a.indicator = indicator.NewHyprNotify(cfg.Indicator, logger)

	// The camera opens last; Source.Run releases it from here on.
	a.source = capture.NewSource(openCamera(cfg.Camera, logger), capture.Options{
		Interval: millis(cfg.Camera.PollIntervalMS),
		ThumbMax: cfg.Shell.ThumbnailSize,
		Logger:   logger,
	})

	ref := &pipelineRef{}
	a.shell = shell.New(ref, a.source, shell.Options{
		Redraw:        millis(cfg.Shell.RedrawIntervalMS),
		PreviewWidth:  cfg.Shell.PreviewWidth,
		PreviewHeight: cfg.Shell.PreviewHeight,
		OnQuit:        quit,
		Logger:        logger,
	})

	a.pipeline = pipeline.New(pipeline.Config{
		Attempts: cfg.Listen.Attempts,
		Listen: speech.Params{
			Calibration: millis(cfg.Listen.CalibrationMS),
			Timeout:     millis(cfg.Listen.TimeoutMS),
			PhraseLimit: millis(cfg.Listen.PhraseLimitMS),
		},
		ExitWords:    cfg.ExitWords,
		MaxSentences: cfg.Inference.MaxSentences,
		Farewell:     cfg.Farewell,
		Grace:        millis(cfg.ShutdownGraceMS),
		OnExit:       quit,
	}, pipeline.Deps{
		Listener:  recognizer,
		Frames:    a.source,
		Inference: infer,
		Speech:    a.voice,
		Observer:  a.shell,
		Indicator: a.indicator,
		Logger:    logger,
	})
	ref.Pipeline = a.pipeline

	logger.Info("assistant built",
		"provider", cfg.Inference.Provider,
		"listen_engine", cfg.Listen.Engine,
		"voice_engine", cfg.Voice.Engine,
		"audio_backend", cfg.Audio.Backend,
		"camera", cfg.Camera.Enable,
	)
	return a, nil
}

// openAIKey picks the credential for OpenAI speech endpoints, reusing the
// inference key when OpenAI is also the inference provider.
func openAIKey(cfg config.InferenceConfig, inferenceKey string) string {
	if strings.EqualFold(strings.TrimSpace(cfg.Provider), inference.ProviderOpenAI) {
		return inferenceKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

func (a *assistant) openMicrophone(ctx context.Context, cfg config.AudioConfig, logger *slog.Logger) (audio.Microphone, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), "portaudio") {
		if err := portaudio.Init(); err != nil {
			return nil, fmt.Errorf("portaudio init: %w", err)
		}
		a.closers = append(a.closers, portaudio.Terminate)
		return portaudio.Microphone{}, nil
	}

	selection, err := audio.SelectDevice(ctx, cfg.Input, cfg.Fallback)
	if err != nil {
		return nil, fmt.Errorf("select audio input: %w", err)
	}
	if selection.Warning != "" {
		logger.Warn("audio input fallback", "warning", selection.Warning)
	}
	logger.Info("audio input selected", "device", selection.Device.ID, "description", selection.Device.Description)
	return audio.PulseMicrophone{Device: selection.Device}, nil
}

func (a *assistant) newTranscriber(cfg config.ListenConfig, client openai.Client) (speech.Transcriber, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Engine), "whisper") {
		t, err := whisper.New(config.ExpandHome(cfg.WhisperModel), whisper.Options{
			Language: cfg.Language,
			Threads:  cfg.WhisperThreads,
		})
		if err != nil {
			return nil, fmt.Errorf("whisper: %w", err)
		}
		a.closers = append(a.closers, func() { _ = t.Close() })
		return t, nil
	}
	return speech.NewOpenAITranscriber(client, cfg.OpenAIModel, cfg.Language), nil
}

func (a *assistant) newSpeaker(cfg config.VoiceConfig, client openai.Client) (voice.Speaker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case "none":
		return voice.Silent{}, nil
	case "openai":
		var player voice.Player = voice.PulsePlayer{}
		if strings.EqualFold(strings.TrimSpace(cfg.Player), "beep") {
			player = &voice.BeepPlayer{}
		}
		return voice.NewOpenAISpeech(client, cfg.OpenAIModel, cfg.OpenAIVoice, cfg.Volume, player), nil
	default:
		engine, err := espeak.New(espeak.Options{Voice: cfg.Voice, Rate: cfg.Rate, Volume: cfg.Volume})
		if err != nil {
			return nil, fmt.Errorf("espeak: %w", err)
		}
		a.closers = append(a.closers, func() { _ = engine.Close() })
		return engine, nil
	}
}

// openCamera returns a live device, or a NullDevice so the assistant keeps
// answering text-only questions.
func openCamera(cfg config.CameraConfig, logger *slog.Logger) capture.Device {
	if !cfg.Enable {
		logger.Info("camera disabled")
		return capture.NullDevice{}
	}
	cam, err := gstcam.Open(gstcam.Config{
		Device: cfg.Device,
		Width:  cfg.Width,
		Height: cfg.Height,
		Logger: logger,
	})
	if err != nil {
		logger.Warn("camera unavailable, continuing without images", "device", cfg.Device, "error", err.Error())
		return capture.NullDevice{}
	}
	return cam
}

func openBrowser(argv []string, logger *slog.Logger) {
	if len(argv) == 0 {
		return
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		logger.Warn("open browser failed", "command", argv[0], "error", err.Error())
		return
	}
	go func() { _ = cmd.Wait() }()
}

func ipcHandler(c control, quit func()) ipc.Handler {
	return ipc.HandlerFunc(func(_ context.Context, req ipc.Request) ipc.Response {
		switch req.Command {
		case ipc.CommandAsk:
			source := req.Source
			if source == "" {
				source = "ipc"
			}
			accepted, err := c.Trigger(source)
			switch {
			case errors.Is(err, pipeline.ErrBusy):
				return ipc.Response{OK: false, Busy: true, State: string(c.State()), Error: pipeline.BusyNotice}
			case errors.Is(err, pipeline.ErrClosed):
				return ipc.Response{OK: false, State: string(c.State()), Error: "shutting down"}
			case err != nil:
				return ipc.Response{OK: false, Error: err.Error()}
			}
			return ipc.Response{OK: true, Busy: true, State: string(c.State()), RequestID: accepted.ID, Message: "request accepted"}
		case ipc.CommandStatus:
			return ipc.Response{OK: true, State: string(c.State()), Busy: c.Busy()}
		case ipc.CommandQuit:
			quit()
			return ipc.Response{OK: true, Message: "shutting down"}
		default:
			return ipc.Response{OK: false, Error: fmt.Sprintf("unsupported command %q", req.Command)}
		}
	})
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
