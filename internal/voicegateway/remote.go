package voicegateway

import (
	"context"
	"time"
)

// remoteRecognizer forwards recognizer commands to the browser, which owns the actual
// speech recognition engine.
type remoteRecognizer struct {
	conn *conn
}

func (r remoteRecognizer) Start(locale string) error {
	return r.conn.send(commandFrame{Type: FrameCommand, Command: CommandStart, Lang: locale})
}

func (r remoteRecognizer) Stop() {
	_ = r.conn.send(commandFrame{Type: FrameCommand, Command: CommandStop})
}

func (r remoteRecognizer) Abort() {
	_ = r.conn.send(commandFrame{Type: FrameCommand, Command: CommandAbort})
}

// remotePermission asks the browser for microphone access and waits for its
// permission frame. No answer within timeout counts as denied.
type remotePermission struct {
	conn    *conn
	timeout time.Duration
}

func (p remotePermission) Request(ctx context.Context) bool {
	// Drop an answer left over from an earlier probe.
	select {
	case <-p.conn.permission:
	default:
	}
	if err := p.conn.send(commandFrame{Type: FrameCommand, Command: CommandPermission}); err != nil {
		return false
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case granted := <-p.conn.permission:
		return granted
	case <-timer.C:
		p.conn.log.Debug().Dur("timeout", p.timeout).Msg("permission probe timed out")
		return false
	case <-ctx.Done():
		return false
	}
}
