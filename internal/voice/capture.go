// Package voice turns a continuous speech recognition stream into single committed
// utterances. A Capture owns the listening state, its timers and the language fallback;
// the recognizer itself is a collaborator that reports events back through the Handle
// methods.
package voice

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/weather-assistant/internal/observability"
)

// State of a Capture.
type State int

const (
	Idle State = iota
	Starting
	Listening
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	default:
		return "idle"
	}
}

// Commit triggers.
const (
	TriggerSilence     = "silence"
	TriggerHardTimeout = "hard-timeout"
	TriggerVisibility  = "visibility"
	TriggerExplicit    = "explicit"
	TriggerError       = "error"
)

// Recognizer is the speech recognition engine. It reports back through HandleStart,
// HandleResult, HandleError and HandleEnd.
type Recognizer interface {
	Start(locale string) error
	Stop()
	Abort()
}

// Permission asks for microphone access.
type Permission interface {
	Request(ctx context.Context) bool
}

// PermissionFunc adapts a function to Permission.
type PermissionFunc func(ctx context.Context) bool

func (f PermissionFunc) Request(ctx context.Context) bool { return f(ctx) }

// Commit is one finished utterance.
type Commit struct {
	Text string
	// IsVoiceInput is false: committed text is sent like typed text.
	IsVoiceInput bool
	Locale       string
	Trigger      string
}

// Snapshot is the observable state of a Capture.
type Snapshot struct {
	State     State
	Listening bool
	Bubble    string
	Locale    string
}

// Handlers receive Capture events. Any of them may be nil. They are never called with
// the Capture's lock held.
type Handlers struct {
	OnCommit       func(Commit)
	OnError        func(*RecognitionError)
	OnErrorCleared func()
	OnState        func(Snapshot)
}

type Config struct {
	// Language is a language code or "auto".
	Language       string
	SilenceTimeout time.Duration
	MaxDuration    time.Duration
	RestartDelay   time.Duration
	// NoticeTTL is how long an error stays visible; setup notices use SetupNoticeTTL.
	NoticeTTL      time.Duration
	SetupNoticeTTL time.Duration
	// Supported is false when the client has no speech recognition.
	Supported bool
	// Secure is false outside HTTPS and localhost.
	Secure bool
}

func DefaultConfig() Config {
	return Config{
		Language:       AutoLanguage,
		SilenceTimeout: 2 * time.Second,
		MaxDuration:    60 * time.Second,
		RestartDelay:   150 * time.Millisecond,
		NoticeTTL:      2500 * time.Millisecond,
		SetupNoticeTTL: 3 * time.Second,
		Supported:      true,
		Secure:         true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = d.SilenceTimeout
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = d.MaxDuration
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = d.RestartDelay
	}
	if c.NoticeTTL <= 0 {
		c.NoticeTTL = d.NoticeTTL
	}
	if c.SetupNoticeTTL <= 0 {
		c.SetupNoticeTTL = d.SetupNoticeTTL
	}
	return c
}

// machine is the listening state. Restart after an unexpected end is allowed iff
// wantsListening is set and phase is Idle.
type machine struct {
	phase          State
	wantsListening bool
}

func (m machine) canRestart() bool {
	return m.wantsListening && m.phase == Idle
}

// episode lives from Start to the terminal commit or stop.
type episode struct {
	transcript string
	interim    string
	locale     string
	tried      []string
	// aborting is set while we abort the recognizer ourselves; its errors are ignored.
	aborting bool
}

func (e *episode) buffered() string {
	return strings.TrimSpace(e.transcript + e.interim)
}

// settle keeps pending interim text once the recognizer that produced it has ended; a
// restarted recognizer never revises it.
func (e *episode) settle() {
	if e.interim != "" {
		e.transcript += e.interim
		e.interim = ""
	}
}

func (e *episode) markTried(locale string) {
	if !slices.Contains(e.tried, locale) {
		e.tried = append(e.tried, locale)
	}
}

func (e *episode) untriedAuto() (string, bool) {
	for _, l := range autoLocales {
		if !slices.Contains(e.tried, l) {
			return l, true
		}
	}
	return "", false
}

type effects []func()

func (fx *effects) add(f func()) {
	*fx = append(*fx, f)
}

// Capture is the voice capture state machine.
type Capture struct {
	mu       sync.Mutex
	cfg      Config
	rec      Recognizer
	perm     Permission
	clock    Clock
	handlers Handlers

	st      machine
	ep      *episode
	notice  *RecognitionError
	closed  bool
	silence timerSlot
	hard    timerSlot
	restart timerSlot
	clearer timerSlot
}

// NewCapture builds a Capture. perm may be nil when permission is always granted; clock
// nil means RealClock.
func NewCapture(cfg Config, rec Recognizer, perm Permission, clock Clock, h Handlers) *Capture {
	if clock == nil {
		clock = RealClock()
	}
	return &Capture{
		cfg:      cfg.withDefaults(),
		rec:      rec,
		perm:     perm,
		clock:    clock,
		handlers: h,
	}
}

// do runs fn under the lock and then the effects it queued, in order.
func (c *Capture) do(fn func(fx *effects)) {
	var fx effects
	c.mu.Lock()
	fn(&fx)
	c.mu.Unlock()
	for _, f := range fx {
		f()
	}
}

// Snapshot returns the current state.
func (c *Capture) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Capture) snapshotLocked() Snapshot {
	s := Snapshot{State: c.st.phase, Listening: c.st.wantsListening}
	if c.ep != nil {
		s.Bubble = c.ep.buffered()
		s.Locale = c.ep.locale
	}
	return s
}

func (c *Capture) emitState(fx *effects) {
	if c.handlers.OnState == nil {
		return
	}
	s := c.snapshotLocked()
	fx.add(func() { c.handlers.OnState(s) })
}

// Start begins a listening episode. It is a no-op unless the capture is Idle with no
// episode in progress. Failed preconditions leave the capture Idle and surface an error,
// which is also returned.
func (c *Capture) Start(ctx context.Context) error {
	var (
		ep     *episode
		result error
	)
	c.do(func(fx *effects) {
		if c.closed || c.st.phase != Idle || c.ep != nil {
			return
		}
		switch {
		case !c.cfg.Supported:
			result = c.raise(fx, KindUnsupported, c.cfg.NoticeTTL)
			return
		case !c.cfg.Secure:
			result = c.raise(fx, KindInsecureContext, c.cfg.SetupNoticeTTL)
			return
		}
		ep = &episode{}
		c.ep = ep
		c.st = machine{phase: Starting, wantsListening: true}
		c.emitState(fx)
	})
	if ep == nil {
		return result
	}

	granted := true
	if c.perm != nil {
		granted = c.perm.Request(ctx)
	}

	var locale string
	c.do(func(fx *effects) {
		if c.ep != ep || c.st.phase != Starting {
			// Stopped or closed while waiting for permission.
			return
		}
		if !granted {
			c.teardown(fx)
			result = c.raise(fx, KindPermissionDenied, c.cfg.SetupNoticeTTL)
			c.emitState(fx)
			return
		}
		if isAuto(c.cfg.Language) {
			locale, _ = ep.untriedAuto()
		} else {
			locale = LocaleFor(c.cfg.Language)
		}
		ep.locale = locale
	})
	if locale == "" {
		return result
	}
	return c.startRecognizer(ep, locale)
}

// startRecognizer calls the recognizer outside the lock and handles a refused start.
func (c *Capture) startRecognizer(ep *episode, locale string) error {
	err := c.rec.Start(locale)
	if err == nil {
		return nil
	}
	var result error
	c.do(func(fx *effects) {
		if c.ep != ep {
			return
		}
		observability.Logger().Debug().Err(err).Str("locale", locale).Msg("recognizer refused to start")
		c.teardown(fx)
		result = c.raise(fx, KindStartConflict, c.cfg.NoticeTTL)
		c.emitState(fx)
	})
	return result
}

// HandleStart records that the recognizer is capturing audio.
func (c *Capture) HandleStart() {
	c.do(func(fx *effects) {
		if c.closed || c.ep == nil {
			return
		}
		c.st.phase = Listening
		c.ep.settle()
		c.ep.aborting = false
		if c.notice != nil {
			c.notice = nil
			c.clearer.clear()
			if c.handlers.OnErrorCleared != nil {
				fx.add(c.handlers.OnErrorCleared)
			}
		}
		if !c.hard.armed() {
			c.arm(&c.hard, c.cfg.MaxDuration, (*Capture).onHardTimeout)
		}
		c.arm(&c.silence, c.cfg.SilenceTimeout, (*Capture).onSilence)
		c.emitState(fx)
	})
}

// HandleResult takes a recognizer result. Final text joins the transcript, interim text
// replaces the pending interim. Any result restarts the silence window.
func (c *Capture) HandleResult(interim, final string, isFinal bool) {
	if isFinal && final == "" {
		final, interim = interim, ""
	}
	c.do(func(fx *effects) {
		if c.closed || c.ep == nil {
			return
		}
		if final != "" {
			c.ep.transcript += final
			c.ep.interim = ""
		}
		if interim != "" {
			c.ep.interim = interim
		}
		c.arm(&c.silence, c.cfg.SilenceTimeout, (*Capture).onSilence)
		c.emitState(fx)
	})
}

// HandleError takes a recognizer error code such as "no-speech" or "not-allowed".
func (c *Capture) HandleError(code string) {
	c.do(func(fx *effects) {
		if c.closed || c.ep == nil || c.ep.aborting {
			return
		}
		ep := c.ep
		if ep.buffered() != "" {
			if !fallbackCode(code) {
				c.raise(fx, kindForCode(code), c.cfg.NoticeTTL)
			}
			c.commitAndStop(fx, TriggerError)
			return
		}
		if isAuto(c.cfg.Language) && fallbackCode(code) {
			c.fallback(fx)
			return
		}
		c.raise(fx, kindForCode(code), c.cfg.NoticeTTL)
		c.teardown(fx)
		c.emitState(fx)
	})
}

// HandleEnd records that the recognizer stopped. If the user still wants to listen the
// recognizer is restarted after a short delay.
func (c *Capture) HandleEnd() {
	c.do(func(fx *effects) {
		if c.closed {
			return
		}
		c.st.phase = Idle
		if c.ep == nil {
			c.st.wantsListening = false
			return
		}
		c.ep.aborting = false
		c.ep.settle()
		if c.st.canRestart() {
			c.arm(&c.restart, c.cfg.RestartDelay, (*Capture).onRestart)
		} else {
			c.teardown(fx)
		}
		c.emitState(fx)
	})
}

// HandleVisibility commits and stops when the page is hidden mid-episode.
func (c *Capture) HandleVisibility(hidden bool) {
	if !hidden {
		return
	}
	c.do(func(fx *effects) {
		if c.closed || c.ep == nil {
			return
		}
		c.commitAndStop(fx, TriggerVisibility)
	})
}

// Stop commits whatever is buffered and stops listening. Calling it again is a no-op.
func (c *Capture) Stop() {
	c.do(func(fx *effects) {
		if c.closed || c.ep == nil {
			c.st.wantsListening = false
			return
		}
		c.commitAndStop(fx, TriggerExplicit)
	})
}

// Close disposes the capture without committing. Every timer is cancelled.
func (c *Capture) Close() {
	c.do(func(fx *effects) {
		if c.closed {
			return
		}
		c.closed = true
		active := c.ep != nil
		c.teardown(fx)
		c.clearer.clear()
		c.notice = nil
		if active {
			fx.add(c.rec.Abort)
		}
	})
}

func (c *Capture) onSilence(fx *effects) {
	if c.ep == nil {
		return
	}
	if c.ep.buffered() != "" {
		c.commitAndStop(fx, TriggerSilence)
		return
	}
	// A silent window with nothing heard counts as no speech.
	if isAuto(c.cfg.Language) {
		if c.fallback(fx) {
			c.ep.aborting = true
			fx.add(c.rec.Abort)
		} else {
			fx.add(c.rec.Stop)
		}
		return
	}
	c.raise(fx, KindNoSpeech, c.cfg.NoticeTTL)
	c.stopRecognizer(fx)
}

func (c *Capture) onHardTimeout(fx *effects) {
	if c.ep == nil {
		return
	}
	if c.ep.buffered() != "" {
		c.commitAndStop(fx, TriggerHardTimeout)
		return
	}
	c.raise(fx, KindNoSpeech, c.cfg.NoticeTTL)
	c.stopRecognizer(fx)
}

func (c *Capture) onRestart(fx *effects) {
	if c.ep == nil || !c.st.canRestart() {
		return
	}
	ep, locale := c.ep, c.ep.locale
	c.st.phase = Starting
	c.emitState(fx)
	fx.add(func() { _ = c.startRecognizer(ep, locale) })
}

// fallback switches an auto episode to the next untried locale and schedules a restart.
// With every locale tried it surfaces no-speech and ends the episode. It reports whether
// a retry was scheduled.
func (c *Capture) fallback(fx *effects) bool {
	ep := c.ep
	ep.markTried(ep.locale)
	next, ok := ep.untriedAuto()
	if !ok {
		c.raise(fx, KindNoSpeech, c.cfg.NoticeTTL)
		c.teardown(fx)
		c.emitState(fx)
		return false
	}
	ep.locale = next
	ep.interim = ""
	c.silence.clear()
	c.arm(&c.restart, c.cfg.RestartDelay, (*Capture).onRestart)
	c.emitState(fx)
	return true
}

// commitAndStop emits the buffered text, if any, and ends the episode.
func (c *Capture) commitAndStop(fx *effects, trigger string) {
	commit := Commit{Text: c.ep.buffered(), Locale: c.ep.locale, Trigger: trigger}
	c.stopRecognizer(fx)
	if commit.Text == "" {
		return
	}
	observability.VoiceCommits.WithLabelValues(trigger).Inc()
	if c.handlers.OnCommit != nil {
		fx.add(func() { c.handlers.OnCommit(commit) })
	}
}

// stopRecognizer ends the episode and asks the recognizer to stop.
func (c *Capture) stopRecognizer(fx *effects) {
	c.teardown(fx)
	fx.add(c.rec.Stop)
	c.emitState(fx)
}

// teardown ends the episode: no intent to listen, no timers except a pending notice clear.
func (c *Capture) teardown(fx *effects) {
	c.st = machine{phase: Idle}
	c.ep = nil
	c.silence.clear()
	c.hard.clear()
	c.restart.clear()
}

// raise shows a notice that clears itself after ttl.
func (c *Capture) raise(fx *effects, kind ErrorKind, ttl time.Duration) *RecognitionError {
	err := newRecognitionError(kind)
	c.notice = err
	observability.VoiceErrors.WithLabelValues(string(kind)).Inc()
	if c.handlers.OnError != nil {
		fx.add(func() { c.handlers.OnError(err) })
	}
	c.arm(&c.clearer, ttl, (*Capture).onNoticeExpired)
	return err
}

func (c *Capture) onNoticeExpired(fx *effects) {
	if c.notice == nil {
		return
	}
	c.notice = nil
	if c.handlers.OnErrorCleared != nil {
		fx.add(c.handlers.OnErrorCleared)
	}
}

// arm replaces the timer in slot. fire runs under the lock unless the slot was re-armed
// or cleared first.
func (c *Capture) arm(slot *timerSlot, d time.Duration, fire func(*Capture, *effects)) {
	slot.clear()
	gen := slot.gen
	slot.t = c.clock.AfterFunc(d, func() {
		c.do(func(fx *effects) {
			if c.closed || slot.gen != gen {
				return
			}
			slot.t = nil
			fire(c, fx)
		})
	})
}
