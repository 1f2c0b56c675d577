// Package voicegateway serves the voice capture state machine over a WebSocket. The
// browser runs speech recognition and relays its events; the server owns the capture
// timers and forwards committed utterances to the conversation service.
package voicegateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/i474232898/weather-assistant/internal/conversation"
	"github.com/i474232898/weather-assistant/internal/observability"
	"github.com/i474232898/weather-assistant/internal/voice"
)

// Path is where the gateway is mounted.
const Path = "/ws/voice"

// TurnHandler runs one conversation turn for a committed utterance.
type TurnHandler interface {
	HandleMessage(ctx context.Context, req conversation.MessageRequest) (*conversation.Turn, error)
}

type Config struct {
	// Language is the default capture language when the hello frame has none.
	Language          string
	SilenceTimeout    time.Duration
	MaxDuration       time.Duration
	PermissionTimeout time.Duration
	HelloTimeout      time.Duration
	WriteTimeout      time.Duration
	TurnTimeout       time.Duration
	// Clock drives the capture timers; nil means the real clock.
	Clock voice.Clock
}

func (c Config) withDefaults() Config {
	if c.Language == "" {
		c.Language = voice.AutoLanguage
	}
	if c.PermissionTimeout <= 0 {
		c.PermissionTimeout = 10 * time.Second
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 60 * time.Second
	}
	return c
}

// Handler upgrades requests to WebSocket connections and runs one capture per
// connection.
type Handler struct {
	cfg      Config
	turns    TurnHandler
	upgrader websocket.Upgrader
}

func NewHandler(cfg Config, turns TurnHandler) *Handler {
	return &Handler{
		cfg:   cfg.withDefaults(),
		turns: turns,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Routes returns a mux with the gateway mounted at Path.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, h)
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	id := uuid.NewString()
	log := observability.Logger().With().Str("conn_id", id).Logger()

	c := &conn{
		ws:           ws,
		log:          log,
		writeTimeout: h.cfg.WriteTimeout,
		permission:   make(chan bool, 1),
	}

	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.HelloTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		log.Debug().Err(err).Msg("voice connection closed before hello")
		return
	}
	hello, err := decodeClientFrame(data)
	if err != nil || hello.Type != FrameHello {
		_ = c.send(errorFrame{Type: FrameError, Kind: "protocol", Message: "first frame must be hello"})
		return
	}
	_ = ws.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	lang := hello.Language
	if lang == "" {
		lang = h.cfg.Language
	}
	supported := hello.Supported == nil || *hello.Supported

	s := &connSession{
		conn:      c,
		turns:     h.turns,
		sessionID: hello.SessionID,
		turnCtx:   context.WithoutCancel(ctx),
		timeout:   h.cfg.TurnTimeout,
	}
	s.capture = voice.NewCapture(voice.Config{
		Language:       lang,
		SilenceTimeout: h.cfg.SilenceTimeout,
		MaxDuration:    h.cfg.MaxDuration,
		Supported:      supported,
		Secure:         secureRequest(r),
	}, remoteRecognizer{conn: c}, remotePermission{conn: c, timeout: h.cfg.PermissionTimeout}, h.cfg.Clock, voice.Handlers{
		OnCommit: s.onCommit,
		OnError: func(e *voice.RecognitionError) {
			_ = c.send(errorFrame{Type: FrameError, Kind: string(e.Kind), Message: e.Message})
		},
		OnErrorCleared: func() {
			_ = c.send(typeFrame{Type: FrameErrorCleared})
		},
		OnState: func(snap voice.Snapshot) {
			_ = c.send(stateFrame{Type: FrameState, State: snap.State.String(), Listening: snap.Listening, Bubble: snap.Bubble})
		},
	})
	defer s.capture.Close()

	log.Info().
		Str("session_id", hello.SessionID).
		Str("language", lang).
		Bool("supported", supported).
		Msg("voice connection opened")

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				log.Debug().Err(err).Msg("voice connection read failed")
			}
			break
		}
		f, err := decodeClientFrame(data)
		if err != nil {
			_ = c.send(errorFrame{Type: FrameError, Kind: "protocol", Message: err.Error()})
			continue
		}
		s.dispatch(ctx, f)
	}
	log.Info().Msg("voice connection closed")
}

// connSession ties one capture to its connection and chat session.
type connSession struct {
	conn      *conn
	capture   *voice.Capture
	turns     TurnHandler
	sessionID string
	turnCtx   context.Context
	timeout   time.Duration
}

func (s *connSession) dispatch(ctx context.Context, f ClientFrame) {
	switch f.Type {
	case FrameListen:
		// Start waits on the permission frame, which arrives on this read loop.
		go func() { _ = s.capture.Start(ctx) }()
	case FrameStop:
		s.capture.Stop()
	case FrameVisibility:
		s.capture.HandleVisibility(f.Hidden)
	case FramePermission:
		select {
		case s.conn.permission <- f.Granted:
		default:
		}
	case FrameRecognizerStart:
		s.capture.HandleStart()
	case FrameRecognizerResult:
		s.capture.HandleResult(f.Interim, f.Final, f.IsFinal)
	case FrameRecognizerError:
		s.capture.HandleError(f.Code)
	case FrameRecognizerEnd:
		s.capture.HandleEnd()
	default:
		_ = s.conn.send(errorFrame{Type: FrameError, Kind: "protocol", Message: "unknown frame type " + f.Type})
	}
}

func (s *connSession) onCommit(commit voice.Commit) {
	_ = s.conn.send(commitFrame{Type: FrameCommit, Text: commit.Text, Locale: commit.Locale})
	if s.sessionID == "" || s.turns == nil {
		return
	}
	// The turn outlives the socket so the utterance is still recorded.
	go func() {
		ctx, cancel := context.WithTimeout(s.turnCtx, s.timeout)
		defer cancel()
		turn, err := s.turns.HandleMessage(ctx, conversation.MessageRequest{
			SessionID:    s.sessionID,
			Message:      commit.Text,
			IsVoiceInput: commit.IsVoiceInput,
			Language:     voice.BaseLanguage(commit.Locale),
		})
		if err != nil {
			s.conn.log.Warn().Err(err).Str("session_id", s.sessionID).Msg("voice turn failed")
			_ = s.conn.send(replyErrorFrame{Type: FrameReplyError, Message: err.Error()})
			return
		}
		_ = s.conn.send(replyFrame{Type: FrameReply, Data: turn})
	}()
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws           *websocket.Conn
	log          zerolog.Logger
	writeTimeout time.Duration
	permission   chan bool

	mu sync.Mutex
}

func (c *conn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteJSON(v); err != nil {
		c.log.Debug().Err(err).Msg("voice frame write failed")
		return err
	}
	return nil
}

// secureRequest reports whether the browser would treat the page as a secure context.
func secureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(strings.ToLower(host), ".localhost")
}
