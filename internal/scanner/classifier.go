// Package scanner tells barcode scanner bursts apart from manual typing.
//
// A keyboard-wedge scanner types a whole code within a few milliseconds and
// usually ends it with Enter. The Classifier buffers keystrokes, resolves the
// buffer into a barcode once input goes quiet, and mirrors printable keys
// into the search text so slow typing still drives product search.
package scanner

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

type InputTarget int

const (
	TargetNone InputTarget = iota
	TargetSearchField
	TargetExcludedField
	TargetStructuredControl
)

type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateResolving
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateResolving:
		return "resolving"
	case StateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

const (
	KeyEnter     = "Enter"
	KeyEscape    = "Escape"
	KeyBackspace = "Backspace"
)

// KeyEvent is one keystroke as reported by the host UI, together with the
// kind of input that held focus when it arrived.
type KeyEvent struct {
	Key    string
	Target InputTarget
	Ctrl   bool
	Alt    bool
	Meta   bool
	At     time.Time
}

type EventKind int

const (
	EventBarcodeFound EventKind = iota + 1
	EventSearchTextUpdated
	EventScanRejected
	EventFocusSearch
	EventSearchSubmitted
)

type RejectReason string

const (
	RejectTooShort  RejectReason = "too_short"
	RejectStuckKey  RejectReason = "stuck_key"
	RejectDuplicate RejectReason = "duplicate"
)

type Event struct {
	Kind   EventKind
	Code   string
	Text   string
	Reason RejectReason
	At     time.Time
}

type Options struct {
	MinLength    int
	ScanTimeout  time.Duration
	Cooldown     time.Duration
	ReplayWindow time.Duration
}

func DefaultOptions() Options {
	return Options{
		MinLength:    3,
		ScanTimeout:  50 * time.Millisecond,
		Cooldown:     300 * time.Millisecond,
		ReplayWindow: 2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinLength < 1 {
		o.MinLength = d.MinLength
	}
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = d.ScanTimeout
	}
	if o.Cooldown <= 0 {
		o.Cooldown = d.Cooldown
	}
	if o.ReplayWindow <= 0 {
		o.ReplayWindow = d.ReplayWindow
	}
	return o
}

type timerKind int

// Declaration order breaks ties between timers due at the same instant.
const (
	timerScan timerKind = iota
	timerCooldown
	timerReplay
)

// Classifier is not safe for concurrent use. Feed it from one goroutine, for
// example through a Loop.
type Classifier struct {
	opts        Options
	state       State
	buffer      []rune
	search      []rune
	lastKeyAt   time.Time
	lastBarcode string
	timers      map[timerKind]time.Time
}

func NewClassifier(opts Options) *Classifier {
	return &Classifier{
		opts:   opts.withDefaults(),
		timers: make(map[timerKind]time.Time, 3),
	}
}

func (c *Classifier) State() State { return c.state }

func (c *Classifier) SearchText() string { return string(c.search) }

func (c *Classifier) Options() Options { return c.opts }

// SetSearchText replaces the search text, e.g. when the host edits the field
// directly. Any half-typed scan is dropped.
func (c *Classifier) SetSearchText(text string) {
	c.search = []rune(text)
	c.dropBuffer()
}

func (c *Classifier) ClearSearch() {
	c.search = c.search[:0]
}

// NextDeadline reports the earliest armed timer.
func (c *Classifier) NextDeadline() (time.Time, bool) {
	var (
		next  time.Time
		found bool
	)
	for _, at := range c.timers {
		if !found || at.Before(next) {
			next, found = at, true
		}
	}
	return next, found
}

// Reset cancels every timer and forgets all buffered input.
func (c *Classifier) Reset() {
	clear(c.timers)
	c.buffer = c.buffer[:0]
	c.search = c.search[:0]
	c.lastBarcode = ""
	c.lastKeyAt = time.Time{}
	c.state = StateIdle
}

// Tick fires every timer due at or before now.
func (c *Classifier) Tick(now time.Time) []Event {
	return c.fire(now, nil)
}

// HandleKey classifies one keystroke. Timers that fell due before the key
// arrived fire first, so their events come ahead of the key's own.
func (c *Classifier) HandleKey(ev KeyEvent) []Event {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	events := c.fire(ev.At, nil)

	if ev.Ctrl || ev.Alt || ev.Meta {
		return events
	}
	if ev.Target == TargetExcludedField || ev.Target == TargetStructuredControl {
		return events
	}
	if ev.Key == KeyEscape {
		// Hard reset. The replay window survives so a rescan is still caught.
		c.dropBuffer()
		delete(c.timers, timerCooldown)
		c.state = StateIdle
		return events
	}
	if c.state == StateLocked {
		return events
	}

	switch ev.Key {
	case KeyEnter:
		if len(c.buffer) >= c.opts.MinLength {
			return c.resolve(ev.At, events)
		}
		c.dropBuffer()
		if text := strings.TrimSpace(string(c.search)); text != "" {
			events = append(events, Event{Kind: EventSearchSubmitted, Text: text, At: ev.At})
		}
		return events
	case KeyBackspace:
		if ev.Target != TargetSearchField {
			return events
		}
		c.dropBuffer()
		if len(c.search) > 0 {
			c.search = c.search[:len(c.search)-1]
			events = append(events, c.searchUpdated(ev.At))
		}
		return events
	}

	r, ok := printable(ev.Key)
	if !ok {
		return events
	}
	if ev.Target == TargetNone {
		events = append(events, Event{Kind: EventFocusSearch, At: ev.At})
	}
	if len(c.buffer) > 0 && ev.At.Sub(c.lastKeyAt) > c.opts.ScanTimeout {
		c.buffer = c.buffer[:0]
	}
	c.buffer = append(c.buffer, r)
	c.search = append(c.search, r)
	c.lastKeyAt = ev.At
	c.timers[timerScan] = ev.At.Add(c.opts.ScanTimeout)
	c.state = StateAccumulating
	return append(events, c.searchUpdated(ev.At))
}

func (c *Classifier) fire(now time.Time, events []Event) []Event {
	for {
		kind, at, ok := c.due(now)
		if !ok {
			return events
		}
		delete(c.timers, kind)
		switch kind {
		case timerScan:
			if c.state != StateAccumulating {
				continue
			}
			if len(c.buffer) >= c.opts.MinLength {
				events = c.resolve(at, events)
				continue
			}
			c.buffer = c.buffer[:0]
			c.state = StateIdle
		case timerCooldown:
			if c.state == StateLocked {
				c.state = StateIdle
			}
		case timerReplay:
			c.lastBarcode = ""
		}
	}
}

func (c *Classifier) due(now time.Time) (timerKind, time.Time, bool) {
	var (
		kind  timerKind
		at    time.Time
		found bool
	)
	for k, deadline := range c.timers {
		if deadline.After(now) {
			continue
		}
		if !found || deadline.Before(at) || (deadline.Equal(at) && k < kind) {
			kind, at, found = k, deadline, true
		}
	}
	return kind, at, found
}

func (c *Classifier) resolve(at time.Time, events []Event) []Event {
	c.state = StateResolving
	delete(c.timers, timerScan)
	code := strings.TrimSpace(string(c.buffer))
	c.buffer = c.buffer[:0]

	reject := func(reason RejectReason) []Event {
		c.state = StateIdle
		return append(events, Event{Kind: EventScanRejected, Code: code, Reason: reason, At: at})
	}
	switch {
	case utf8.RuneCountInString(code) < c.opts.MinLength:
		return reject(RejectTooShort)
	case isStuckKey(code):
		return reject(RejectStuckKey)
	case code == c.lastBarcode:
		events = c.wipeSearch(at, events)
		return reject(RejectDuplicate)
	}

	events = append(events, Event{Kind: EventBarcodeFound, Code: code, At: at})
	events = c.wipeSearch(at, events)
	c.lastBarcode = code
	c.timers[timerReplay] = at.Add(c.opts.ReplayWindow)
	c.timers[timerCooldown] = at.Add(c.opts.Cooldown)
	c.state = StateLocked
	return events
}

func (c *Classifier) wipeSearch(at time.Time, events []Event) []Event {
	if len(c.search) == 0 {
		return events
	}
	c.search = c.search[:0]
	return append(events, c.searchUpdated(at))
}

func (c *Classifier) dropBuffer() {
	c.buffer = c.buffer[:0]
	delete(c.timers, timerScan)
	if c.state == StateAccumulating || c.state == StateResolving {
		c.state = StateIdle
	}
}

func (c *Classifier) searchUpdated(at time.Time) Event {
	return Event{Kind: EventSearchTextUpdated, Text: string(c.search), At: at}
}

func printable(key string) (rune, bool) {
	if utf8.RuneCountInString(key) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(key)
	if r == utf8.RuneError || !unicode.IsPrint(r) {
		return 0, false
	}
	return r, true
}

// isStuckKey reports a code made of one repeated character, longer than three.
func isStuckKey(code string) bool {
	if utf8.RuneCountInString(code) <= 3 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(code)
	for _, r := range code {
		if r != first {
			return false
		}
	}
	return true
}
