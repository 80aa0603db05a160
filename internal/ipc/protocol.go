package ipc

// Commands understood by a running instance.
const (
	CommandAsk    = "ask"
	CommandStatus = "status"
	CommandQuit   = "quit"
)

// Request is one newline-delimited JSON command. Source names the caller and
// is recorded on accepted pipeline requests.
type Request struct {
	Command string `json:"command"`
	Source  string `json:"source,omitempty"`
}

// Response reports the pipeline state after the command was handled. A busy
// rejection has OK=false and Busy=true.
type Response struct {
	OK        bool   `json:"ok"`
	State     string `json:"state,omitempty"`
	Busy      bool   `json:"busy,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}
