package voicegateway

import (
	"encoding/json"
	"fmt"
)

// Client frame types.
const (
	FrameHello            = "hello"
	FrameListen           = "listen"
	FrameStop             = "stop"
	FrameVisibility       = "visibility"
	FramePermission       = "permission"
	FrameRecognizerStart  = "recognizer.start"
	FrameRecognizerResult = "recognizer.result"
	FrameRecognizerError  = "recognizer.error"
	FrameRecognizerEnd    = "recognizer.end"
)

// Server frame types.
const (
	FrameCommand      = "command"
	FrameState        = "state"
	FrameError        = "error"
	FrameErrorCleared = "error.cleared"
	FrameCommit       = "commit"
	FrameReply        = "reply"
	FrameReplyError   = "reply.error"
)

// Commands sent to the browser recognizer.
const (
	CommandPermission = "permission"
	CommandStart      = "start"
	CommandStop       = "stop"
	CommandAbort      = "abort"
)

// ClientFrame is any frame the browser sends; only the fields of its type are set.
type ClientFrame struct {
	Type string `json:"type"`

	// hello
	SessionID string `json:"sessionId,omitempty"`
	Language  string `json:"language,omitempty"`
	Supported *bool  `json:"supported,omitempty"`

	// visibility
	Hidden bool `json:"hidden,omitempty"`

	// permission
	Granted bool `json:"granted,omitempty"`

	// recognizer.result
	Interim string `json:"interim,omitempty"`
	Final   string `json:"final,omitempty"`
	IsFinal bool   `json:"isFinal,omitempty"`

	// recognizer.error
	Code string `json:"code,omitempty"`
}

func decodeClientFrame(data []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ClientFrame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return ClientFrame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}

type commandFrame struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Lang    string `json:"lang,omitempty"`
}

type stateFrame struct {
	Type      string `json:"type"`
	State     string `json:"state"`
	Listening bool   `json:"listening"`
	Bubble    string `json:"bubble"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type typeFrame struct {
	Type string `json:"type"`
}

type commitFrame struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Locale string `json:"locale"`
}

type replyFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type replyErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
