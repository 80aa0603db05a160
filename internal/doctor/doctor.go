// Package doctor runs readiness diagnostics for config, credentials, camera,
// audio, speech engines and the browser shell.
package doctor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/glimpse/internal/audio"
	"github.com/rbright/glimpse/internal/config"
	"github.com/rbright/glimpse/internal/inference"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	c := cfg.Config
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkCredential(APIKeyEnv(c.Inference)))
	checks = append(checks, checkCamera(c.Camera))
	checks = append(checks, checkAudioSelection(c))
	checks = append(checks, checkListenEngine(c.Listen))
	checks = append(checks, checkVoiceEngine(c.Voice))
	checks = append(checks, checkShellAddr(c.Shell.Listen))

	if c.Shell.OpenBrowser {
		checks = append(checks, checkCommand(c.Shell.OpenCmd.Argv, "shell.open_cmd"))
	}

	if c.Indicator.Enable {
		if strings.EqualFold(strings.TrimSpace(c.Indicator.Backend), "desktop") {
			checks = append(checks, checkBinary("busctl", "desktop notifications"))
		} else {
			checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
				return strings.TrimSpace(v) != ""
			}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"))
			checks = append(checks, checkBinary("hyprctl", "indicator notifications"))
		}
	}

	if proxy := strings.TrimSpace(c.Network.SocksProxy); proxy != "" {
		checks = append(checks, checkDial("network.socks_proxy", proxy))
	}
	if base := strings.TrimSpace(c.Inference.BaseURL); base != "" {
		checks = append(checks, checkEndpoint(base))
	}

	return Report{Checks: checks}
}

// APIKeyEnv resolves the credential variable for the configured provider.
func APIKeyEnv(cfg config.InferenceConfig) string {
	if env := strings.TrimSpace(cfg.APIKeyEnv); env != "" {
		return env
	}
	return inference.DefaultAPIKeyEnv(strings.ToLower(strings.TrimSpace(cfg.Provider)))
}

func checkCredential(env string) Check {
	return checkEnv(env, func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "credential is set", fmt.Sprintf("%s is empty; set it in the environment or the --env file", env))
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkCamera passes when the camera is disabled; a missing device is reported
// but only degrades the assistant to text-only questions.
func checkCamera(cfg config.CameraConfig) Check {
	if !cfg.Enable {
		return Check{Name: "camera", Pass: true, Message: "disabled; questions are text-only"}
	}
	info, err := os.Stat(cfg.Device)
	if err != nil {
		return Check{Name: "camera", Pass: false, Message: fmt.Sprintf("%s: %v (assistant will run without images)", cfg.Device, err)}
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return Check{Name: "camera", Pass: false, Message: fmt.Sprintf("%s is not a character device", cfg.Device)}
	}
	return Check{Name: "camera", Pass: true, Message: fmt.Sprintf("%s present (%dx%d requested)", cfg.Device, cfg.Width, cfg.Height)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	if strings.EqualFold(strings.TrimSpace(cfg.Audio.Backend), "portaudio") {
		return Check{Name: "audio.device", Pass: true, Message: "portaudio backend uses the default input"}
	}
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkListenEngine(cfg config.ListenConfig) Check {
	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case "whisper":
		path := config.ExpandHome(cfg.WhisperModel)
		if _, err := os.Stat(path); err != nil {
			return Check{Name: "listen.engine", Pass: false, Message: fmt.Sprintf("whisper model: %v", err)}
		}
		return Check{Name: "listen.engine", Pass: true, Message: fmt.Sprintf("whisper model %s", path)}
	default:
		check := checkCredential("OPENAI_API_KEY")
		check.Name = "listen.engine"
		if check.Pass {
			check.Message = fmt.Sprintf("openai %s transcription", cfg.OpenAIModel)
		}
		return check
	}
}

func checkVoiceEngine(cfg config.VoiceConfig) Check {
	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case "none":
		return Check{Name: "voice.engine", Pass: true, Message: "speech output disabled"}
	case "openai":
		check := checkCredential("OPENAI_API_KEY")
		check.Name = "voice.engine"
		if check.Pass {
			check.Message = fmt.Sprintf("openai %s voice %q via %s", cfg.OpenAIModel, cfg.OpenAIVoice, cfg.Player)
		}
		return check
	default:
		return Check{Name: "voice.engine", Pass: true, Message: fmt.Sprintf("espeak-ng voice %q at %d wpm", cfg.Voice, cfg.Rate)}
	}
}

// checkShellAddr verifies the shell listen address can be bound.
func checkShellAddr(addr string) Check {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{Name: "shell.listen", Pass: false, Message: err.Error()}
	}
	_ = ln.Close()
	return Check{Name: "shell.listen", Pass: true, Message: fmt.Sprintf("http://%s is free", addr)}
}

func checkDial(name, addr string) Check {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	_ = conn.Close()
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("reachable at %s", addr)}
}

// checkEndpoint probes a custom inference base URL. Any non-5xx answer means
// something is listening; auth is checked on the first real request.
func checkEndpoint(base string) Check {
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(base)
	if err != nil {
		return Check{Name: "inference.base_url", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Check{Name: "inference.base_url", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, base)}
	}
	return Check{Name: "inference.base_url", Pass: true, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, base)}
}
