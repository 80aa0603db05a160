// Package cli parses glimpse command-line arguments.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

type Command string

const (
	CommandRun     Command = "run"
	CommandAsk     Command = "ask"
	CommandStatus  Command = "status"
	CommandQuit    Command = "quit"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:     {},
	CommandAsk:     {},
	CommandStatus:  {},
	CommandQuit:    {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	EnvFile    string
	LogLevel   string
	Proxy      string
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	fs := pflag.NewFlagSet("glimpse", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(true)

	var (
		parsed      Parsed
		help        bool
		showVersion bool
	)
	fs.StringVarP(&parsed.ConfigPath, "config", "c", "", "config file path")
	fs.StringVarP(&parsed.EnvFile, "env", "e", ".env", "env file path")
	fs.StringVarP(&parsed.LogLevel, "log-level", "l", "info", "log level")
	fs.StringVarP(&parsed.Proxy, "proxy", "p", "", "socks proxy address")
	fs.BoolVarP(&help, "help", "h", false, "show help")
	fs.BoolVar(&showVersion, "version", false, "show version")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return Parsed{Command: CommandHelp, ShowHelp: true}, nil
		}
		return Parsed{}, err
	}

	rest := fs.Args()
	if len(rest) > 1 {
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", rest[0])
	}

	switch {
	case help:
		parsed.Command = CommandHelp
	case showVersion:
		parsed.Command = CommandVersion
	case len(rest) == 0:
		parsed.Command = CommandHelp
	default:
		cmd := Command(rest[0])
		if _, ok := validCommands[cmd]; !ok {
			return Parsed{}, fmt.Errorf("unknown command: %s", rest[0])
		}
		parsed.Command = cmd
	}
	parsed.ShowHelp = parsed.Command == CommandHelp
	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [flags] <command>

Commands:
  run       Start the assistant (camera, voice and browser shell)
  ask       Trigger a question on the running assistant
  status    Print idle or busy
  quit      Shut the running assistant down
  devices   List audio inputs and probe the camera
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  -c, --config PATH      Config file path (default: $XDG_CONFIG_HOME/glimpse/config.jsonc)
  -e, --env PATH         Env file holding API keys (default: .env)
  -l, --log-level LEVEL  debug, info, warn or error (default: info)
  -p, --proxy ADDR       SOCKS5 proxy for cloud APIs (overrides network.socks_proxy)
  -h, --help             Show help
      --version          Show version
`, binaryName)
}
