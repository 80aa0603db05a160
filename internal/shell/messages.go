package shell

import (
	"encoding/base64"
	"time"

	"github.com/rbright/glimpse/internal/fsm"
	"github.com/rbright/glimpse/internal/pipeline"
)

// message is a server-to-browser frame. Type is one of hello, line, status
// or frame.
type message struct {
	Type   string     `json:"type"`
	Lines  []wireLine `json:"lines,omitempty"`
	Line   *wireLine  `json:"line,omitempty"`
	Status *status    `json:"status,omitempty"`
	Frame  string     `json:"frame,omitempty"`
}

type wireLine struct {
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	At        time.Time `json:"at"`
}

type status struct {
	State string `json:"state"`
	Busy  bool   `json:"busy"`
	Label string `json:"label"`
}

// action is a browser-to-server command.
type action struct {
	Action string `json:"action"`
}

func toWire(l pipeline.Line) wireLine {
	wl := wireLine{
		Kind:      string(l.Kind),
		Text:      l.Text,
		RequestID: l.RequestID,
		At:        l.At,
	}
	if len(l.Thumbnail) > 0 {
		wl.Thumbnail = base64.StdEncoding.EncodeToString(l.Thumbnail)
	}
	return wl
}

// toStatus reports Busy for a busy state or for an accepted request the
// worker has not picked up yet.
func toStatus(s fsm.State, pending bool) status {
	st := status{State: string(s), Busy: pending || fsm.Busy(s), Label: "Idle"}
	if st.Busy {
		st.Label = "Busy"
	}
	return st
}
