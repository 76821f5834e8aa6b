// Package viewer implements the comparison viewer engine: a per-session
// state machine holding two image slots (current and reference), composited
// through one of three comparison modes under an interactive zoom/pan
// transform. Everything enters through a single event entry point; rendering
// is coalesced to at most one pass per refresh interval.
package viewer

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/adwski/preview-relay/model"
	"github.com/rs/zerolog"
)

const (
	defaultRefreshInterval = 16 * time.Millisecond
	defaultScaleMin        = 0.1
	defaultScaleMax        = 32.0
	defaultSplitRatio      = 0.5
	defaultEventQueueSize  = 64

	storeOpTimeout = 5 * time.Second
)

type CompareMode int

const (
	ModeSplit CompareMode = iota
	ModeSideBySide
	ModeToggle
)

func (m CompareMode) String() string {
	switch m {
	case ModeSideBySide:
		return "side-by-side"
	case ModeToggle:
		return "toggle"
	default:
		return "split"
	}
}

type SlotKind int

const (
	SlotCurrent SlotKind = iota
	SlotReference
)

type LoadState int

const (
	LoadEmpty LoadState = iota
	LoadPending
	LoadReady
	LoadFailed
)

type State int

const (
	StateNoData State = iota
	StateCurrentOnly
	StateCurrentAndReference
)

func (s State) String() string {
	switch s {
	case StateCurrentOnly:
		return "current-only"
	case StateCurrentAndReference:
		return "current-and-reference"
	default:
		return "no-data"
	}
}

type dragKind int

const (
	dragNone dragKind = iota
	dragPan
	dragSplit
)

// slot holds one image: the encoded payload, its decoded bitmap and natural
// dimensions. A failed decode keeps previously-ready content.
type slot struct {
	payload []byte
	bitmap  image.Image
	state   LoadState
	w, h    int
	gen     uint64
}

func (sl slot) hasData() bool {
	return sl.bitmap != nil
}

// ReferenceStore is the narrow persistence contract for the reference slot.
// Absence or corruption is treated as "no reference", never as an error the
// user sees.
type ReferenceStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Logger *zerolog.Logger

	// ChannelID selects which frames this session accepts. Filtering is
	// purely client-side.
	ChannelID string

	// Renderer receives composited scenes. Invoked from the session
	// goroutine at most once per refresh interval.
	Renderer func(Scene)

	// Store persists the reference slot across sessions. Optional.
	Store ReferenceStore

	// Box is the initial viewport size.
	Box Size

	// RefreshInterval bounds render frequency. Optional.
	RefreshInterval time.Duration

	// ScaleMin and ScaleMax clamp the viewport zoom. Optional.
	ScaleMin, ScaleMax float64
}

type Session struct {
	logger    zerolog.Logger
	channelID string
	renderer  func(Scene)
	store     ReferenceStore
	refresh   time.Duration
	scaleMin  float64
	scaleMax  float64

	events    chan Event
	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	decodeWG  sync.WaitGroup
	storeWG   sync.WaitGroup

	// Everything below is owned by the session goroutine.
	box          Size
	state        State
	current      slot
	reference    slot
	gen          uint64
	mode         CompareMode
	splitRatio   float64
	activeToggle SlotKind
	view         Transform
	drag         dragKind
	lastPointer  Point
	status       model.Status
	dirty        bool
}

func NewSession(cfg Config) *Session {
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = defaultRefreshInterval
	}
	scaleMin, scaleMax := cfg.ScaleMin, cfg.ScaleMax
	if scaleMin <= 0 {
		scaleMin = defaultScaleMin
	}
	if scaleMax <= 0 {
		scaleMax = defaultScaleMax
	}

	s := &Session{
		logger: cfg.Logger.With().
			Str("component", "viewer-session").
			Str("channelID", cfg.ChannelID).Logger(),
		channelID:    cfg.ChannelID,
		renderer:     cfg.Renderer,
		store:        cfg.Store,
		refresh:      refresh,
		scaleMin:     scaleMin,
		scaleMax:     scaleMax,
		events:       make(chan Event, defaultEventQueueSize),
		done:         make(chan struct{}),
		closed:       make(chan struct{}),
		box:          cfg.Box,
		state:        StateNoData,
		mode:         ModeSplit,
		splitRatio:   defaultSplitRatio,
		activeToggle: SlotCurrent,
		view:         IdentityTransform(),
	}

	go s.run()
	s.loadReference()
	return s
}

// Dispatch is the session's single event entry point. Safe for any
// goroutine; a no-op after Close.
func (s *Session) Dispatch(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Snapshot returns a copy of the session state for observers.
func (s *Session) Snapshot() Snapshot {
	resp := make(chan Snapshot, 1)
	select {
	case s.events <- queryEvent{resp: resp}:
	case <-s.done:
		return Snapshot{}
	}
	select {
	case snap := <-resp:
		return snap
	case <-s.done:
		return Snapshot{}
	}
}

// Close tears the session down and waits for the loop to exit. Pending
// decode results are discarded.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.closed
		s.storeWG.Wait()
	})
}

func (s *Session) run() {
	ticker := time.NewTicker(s.refresh)
	defer func() {
		ticker.Stop()
		close(s.closed)
		s.logger.Debug().Msg("session stopped")
	}()

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.handle(ev)
		case <-ticker.C:
			// Render coalescing: any number of mutations since the
			// last tick results in exactly one pass.
			if s.dirty {
				s.dirty = false
				if s.renderer != nil {
					s.renderer(s.composeScene())
				}
			}
		}
	}
}

func (s *Session) handle(ev Event) {
	switch e := ev.(type) {
	case FrameEvent:
		s.handleFrame(e.Msg)
	case decodeDoneEvent:
		s.handleDecodeDone(e)
	case referenceLoadedEvent:
		s.startDecode(SlotReference, e.payload)
	case CaptureEvent:
		s.handleCapture()
	case ClearReferenceEvent:
		s.handleClearReference()
	case SetModeEvent:
		s.mode = e.Mode
		s.resetViewport()
		s.logger.Debug().Str("mode", e.Mode.String()).Msg("comparison mode changed")
		s.dirty = true
	case ToggleEvent:
		s.handleToggle()
	case PointerDownEvent:
		s.handlePointerDown(e)
	case PointerMoveEvent:
		s.handlePointerMove(e.P)
	case PointerUpEvent:
		s.drag = dragNone
	case WheelEvent:
		s.view = ZoomAt(s.view, e.P, e.Factor, s.scaleMin, s.scaleMax)
		s.dirty = true
	case ResetViewEvent:
		s.view = IdentityTransform()
		s.dirty = true
	case ResizeEvent:
		s.box = e.Box
		s.dirty = true
	case StatusEvent:
		s.status = e.Status
		s.dirty = true
	case queryEvent:
		e.resp <- s.snapshot()
	}
}

func (s *Session) handleFrame(msg model.FrameMessage) {
	if msg.ChannelID != s.channelID {
		return
	}
	payload, err := msg.Payload()
	if err != nil {
		s.logger.Warn().Err(err).Msg("frame payload is not valid base64")
		s.markDecodeFailed(SlotCurrent)
		return
	}
	s.startDecode(SlotCurrent, payload)
}

// startDecode accepts a payload for a slot and decodes it off the loop.
// The generation counter supersedes stale completions: if another payload
// arrives before this decode finishes, its result is discarded on arrival.
func (s *Session) startDecode(kind SlotKind, payload []byte) {
	s.gen++
	gen := s.gen
	sl := s.slotFor(kind)
	sl.gen = gen
	if !sl.hasData() {
		sl.state = LoadPending
		s.dirty = true
	}

	s.decodeWG.Add(1)
	go func() {
		defer s.decodeWG.Done()
		img, err := decodeImage(payload)
		s.Dispatch(decodeDoneEvent{
			kind:    kind,
			gen:     gen,
			payload: payload,
			img:     img,
			err:     err,
		})
	}()
}

func (s *Session) handleDecodeDone(e decodeDoneEvent) {
	sl := s.slotFor(e.kind)
	if e.gen != sl.gen {
		// Superseded before the decode finished.
		return
	}
	if e.err != nil {
		s.logger.Warn().Err(e.err).Int("slot", int(e.kind)).Msg("image decode failed")
		s.markDecodeFailed(e.kind)
		return
	}
	bounds := e.img.Bounds()
	*sl = slot{
		payload: e.payload,
		bitmap:  e.img,
		state:   LoadReady,
		w:       bounds.Dx(),
		h:       bounds.Dy(),
		gen:     e.gen,
	}
	s.updateState()
	s.dirty = true
}

// markDecodeFailed flags the load failure without erasing previously-ready
// content: the viewer keeps displaying the best available data.
func (s *Session) markDecodeFailed(kind SlotKind) {
	sl := s.slotFor(kind)
	sl.state = LoadFailed
	s.dirty = true
}

func (s *Session) handleCapture() {
	if !s.current.hasData() {
		s.logger.Debug().Msg("capture ignored, no current image")
		return
	}
	payload := make([]byte, len(s.current.payload))
	copy(payload, s.current.payload)
	s.reference = slot{
		payload: payload,
		bitmap:  s.current.bitmap,
		state:   LoadReady,
		w:       s.current.w,
		h:       s.current.h,
	}
	s.persistReference(payload)
	s.updateState()
	s.dirty = true
}

func (s *Session) handleClearReference() {
	if !s.reference.hasData() && s.reference.state == LoadEmpty {
		return
	}
	s.reference = slot{}
	s.deleteReference()
	s.updateState()
	s.dirty = true
}

func (s *Session) handleToggle() {
	other := otherSlot(s.activeToggle)
	if s.slotFor(other).hasData() {
		s.activeToggle = other
	}
	s.normalizeToggle()
	s.dirty = true
}

// normalizeToggle corrects activeToggle to point at a populated slot when
// the selected one has no data.
func (s *Session) normalizeToggle() {
	if s.slotFor(s.activeToggle).hasData() {
		return
	}
	if other := otherSlot(s.activeToggle); s.slotFor(other).hasData() {
		s.activeToggle = other
	}
}

func (s *Session) handlePointerDown(e PointerDownEvent) {
	// Pan gesture takes priority over everything else.
	if e.Button == ButtonSecondary || (e.Button == ButtonPrimary && e.Modifier) {
		s.drag = dragPan
		s.lastPointer = e.P
		return
	}
	if e.Button == ButtonPrimary && s.mode == ModeSplit && s.reference.state == LoadReady {
		s.drag = dragSplit
		s.updateSplitRatio(e.P)
		s.dirty = true
	}
}

func (s *Session) handlePointerMove(p Point) {
	switch s.drag {
	case dragPan:
		s.view.Pan.X += p.X - s.lastPointer.X
		s.view.Pan.Y += p.Y - s.lastPointer.Y
		s.lastPointer = p
		s.dirty = true
	case dragSplit:
		s.updateSplitRatio(p)
		s.dirty = true
	}
}

// updateSplitRatio maps the pointer through the inverse viewport transform
// so the split line tracks the cursor under any zoom/pan. The ratio is
// clamped for pointer positions outside the box.
func (s *Session) updateSplitRatio(p Point) {
	if s.box.W <= 0 {
		return
	}
	s.splitRatio = clamp01(s.view.Invert(p).X / s.box.W)
}

func (s *Session) resetViewport() {
	s.view = IdentityTransform()
	s.splitRatio = defaultSplitRatio
	s.activeToggle = SlotCurrent
	s.normalizeToggle()
	s.drag = dragNone
}

func (s *Session) updateState() {
	// A restored reference without a current frame still counts as no-data:
	// the state machine tracks arrival of current frames.
	next := StateNoData
	switch {
	case s.current.hasData() && s.reference.hasData():
		next = StateCurrentAndReference
	case s.current.hasData():
		next = StateCurrentOnly
	}
	if next != s.state {
		s.logger.Debug().
			Str("from", s.state.String()).
			Str("to", next.String()).
			Msg("state transition")
		s.state = next
	}
	s.normalizeToggle()
}

func (s *Session) slotFor(kind SlotKind) *slot {
	if kind == SlotReference {
		return &s.reference
	}
	return &s.current
}

func (s *Session) loadReference() {
	if s.store == nil {
		return
	}
	s.storeWG.Add(1)
	go func() {
		defer s.storeWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
		defer cancel()
		payload, ok, err := s.store.Get(ctx, s.referenceKey())
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to load persisted reference")
			return
		}
		if !ok || len(payload) == 0 {
			return
		}
		s.Dispatch(referenceLoadedEvent{payload: payload})
	}()
}

func (s *Session) persistReference(payload []byte) {
	if s.store == nil {
		return
	}
	s.storeWG.Add(1)
	go func() {
		defer s.storeWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
		defer cancel()
		if err := s.store.Set(ctx, s.referenceKey(), payload); err != nil {
			s.logger.Warn().Err(err).Msg("failed to persist reference")
		}
	}()
}

func (s *Session) deleteReference() {
	if s.store == nil {
		return
	}
	s.storeWG.Add(1)
	go func() {
		defer s.storeWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
		defer cancel()
		if err := s.store.Delete(ctx, s.referenceKey()); err != nil {
			s.logger.Warn().Err(err).Msg("failed to delete persisted reference")
		}
	}()
}

func (s *Session) referenceKey() string {
	return "reference/" + s.channelID
}

// SlotInfo is the observable part of an image slot.
type SlotInfo struct {
	State   LoadState
	Width   int
	Height  int
	HasData bool
	Payload []byte
}

// Snapshot is a copy of session state at one instant.
type Snapshot struct {
	State        State
	Mode         CompareMode
	SplitRatio   float64
	ActiveToggle SlotKind
	View         Transform
	Box          Size
	Status       model.Status
	Current      SlotInfo
	Reference    SlotInfo
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		State:        s.state,
		Mode:         s.mode,
		SplitRatio:   s.splitRatio,
		ActiveToggle: s.activeToggle,
		View:         s.view,
		Box:          s.box,
		Status:       s.status,
		Current:      slotInfo(s.current),
		Reference:    slotInfo(s.reference),
	}
}

func slotInfo(sl slot) SlotInfo {
	info := SlotInfo{
		State:   sl.state,
		Width:   sl.w,
		Height:  sl.h,
		HasData: sl.hasData(),
	}
	if sl.payload != nil {
		info.Payload = make([]byte, len(sl.payload))
		copy(info.Payload, sl.payload)
	}
	return info
}
