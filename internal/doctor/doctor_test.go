package doctor

import (
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/glimpse/internal/config"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestAPIKeyEnvPerProvider(t *testing.T) {
	require.Equal(t, "GEMINI_API_KEY", APIKeyEnv(config.InferenceConfig{Provider: "gemini"}))
	require.Equal(t, "OPENAI_API_KEY", APIKeyEnv(config.InferenceConfig{Provider: " OpenAI"}))
	require.Equal(t, "ANTHROPIC_API_KEY", APIKeyEnv(config.InferenceConfig{Provider: "claude"}))
	require.Equal(t, "MY_KEY", APIKeyEnv(config.InferenceConfig{Provider: "claude", APIKeyEnv: "MY_KEY"}))
}

func TestCheckCredential(t *testing.T) {
	t.Setenv("GLIMPSE_TEST_KEY", "")
	check := checkCredential("GLIMPSE_TEST_KEY")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "GLIMPSE_TEST_KEY is empty")

	t.Setenv("GLIMPSE_TEST_KEY", "sk-123")
	require.True(t, checkCredential("GLIMPSE_TEST_KEY").Pass)
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "shell.open_cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-open")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-open", "--arg"}, "shell.open_cmd")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell.open_cmd command is available")
}

func TestCheckCamera(t *testing.T) {
	require.True(t, checkCamera(config.CameraConfig{Enable: false}).Pass)

	missing := checkCamera(config.CameraConfig{Enable: true, Device: filepath.Join(t.TempDir(), "video9")})
	require.False(t, missing.Pass)
	require.Contains(t, missing.Message, "without images")

	regular := filepath.Join(t.TempDir(), "video0")
	require.NoError(t, os.WriteFile(regular, nil, 0o600))
	notDevice := checkCamera(config.CameraConfig{Enable: true, Device: regular})
	require.False(t, notDevice.Pass)
	require.Contains(t, notDevice.Message, "not a character device")

	null := checkCamera(config.CameraConfig{Enable: true, Device: os.DevNull, Width: 640, Height: 480})
	require.True(t, null.Pass)
}

func TestCheckListenEngine(t *testing.T) {
	model := filepath.Join(t.TempDir(), "ggml-base.en.bin")
	require.NoError(t, os.WriteFile(model, []byte("model"), 0o600))
	require.True(t, checkListenEngine(config.ListenConfig{Engine: "whisper", WhisperModel: model}).Pass)
	require.False(t, checkListenEngine(config.ListenConfig{Engine: "whisper", WhisperModel: model + ".missing"}).Pass)

	t.Setenv("OPENAI_API_KEY", "")
	require.False(t, checkListenEngine(config.ListenConfig{Engine: "openai"}).Pass)
}

func TestCheckVoiceEngine(t *testing.T) {
	require.True(t, checkVoiceEngine(config.VoiceConfig{Engine: "none"}).Pass)
	require.True(t, checkVoiceEngine(config.VoiceConfig{Engine: "espeak", Voice: "en", Rate: 180}).Pass)

	t.Setenv("OPENAI_API_KEY", "sk")
	check := checkVoiceEngine(config.VoiceConfig{Engine: "openai", OpenAIModel: "tts-1", OpenAIVoice: "alloy", Player: "pulse"})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "alloy")
}

func TestCheckShellAddr(t *testing.T) {
	require.True(t, checkShellAddr("127.0.0.1:0").Pass)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	require.False(t, checkShellAddr(ln.Addr().String()).Pass)
}

func TestCheckEndpoint(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(ok.Close)
	require.True(t, checkEndpoint(ok.URL).Pass)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)
	check := checkEndpoint(down.URL)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 503")
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(config.Default())
	require.False(t, check.Pass)
	require.Contains(t, check.Name, "audio.device")
}

func TestRunIncludesHyprChecksOnlyWhenIndicatorEnabled(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	t.Setenv("HYPRLAND_INSTANCE_SIGNATURE", "abc123")

	cfg := config.Default()
	cfg.Shell.Listen = "127.0.0.1:0"
	cfg.Indicator.Enable = false

	report := Run(config.Loaded{Path: "/tmp/config.jsonc", Config: cfg})
	require.False(t, hasCheck(report, "hyprctl"))
	require.True(t, hasCheck(report, "GEMINI_API_KEY"))

	cfg.Indicator.Enable = true
	report = Run(config.Loaded{Path: "/tmp/config.jsonc", Config: cfg})
	require.True(t, hasCheck(report, "hyprctl"))
	require.True(t, hasCheck(report, "HYPRLAND_INSTANCE_SIGNATURE"))
}

func hasCheck(r Report, name string) bool {
	for _, c := range r.Checks {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}
