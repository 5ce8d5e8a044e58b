package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"vortex/internal/camera"
	"vortex/internal/identity"
	"vortex/internal/nlu"
	"vortex/internal/resource"
	"vortex/internal/wake"
	"vortex/pkg/audioconv"
)

// Spoken responses are deliberately distinct per failure class so transcripts
// alone tell an operator what happened.
const (
	msgDidntCatch     = "I didn't catch that. Please try again."
	msgIntruder       = "Intruder alert. Access denied."
	msgTrouble        = "An error occurred while processing your command."
	msgCameraBlocked  = "Security alert. The camera feed is obstructed."
	msgCameraRestored = "Camera feed restored. Standing down."
)

// Recorder produces a fixed-duration command sample buffer. The caller holds
// the exclusive mic lease for the duration.
type Recorder interface {
	Record(ctx context.Context, d time.Duration) ([]float32, error)
}

// Transcriber is the STT collaborator. Empty text means no speech was
// understood, which is a soft outcome.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Dispatcher executes a recognized command and returns what to say back.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) nlu.Result
}

// Verifier scores live biometrics against enrolled profiles.
type Verifier interface {
	VerifyVoice(samples []float32, p *identity.Profile) (identity.Result, error)
	VerifyFace(ctx context.Context, p *identity.Profile) (identity.Result, error)
}

// Profiles loads enrolled references. (nil, nil) means not enrolled.
type Profiles interface {
	Load(m identity.Modality) (*identity.Profile, error)
}

// Speech is the output queue contract.
type Speech interface {
	Speak(text string) <-chan struct{}
	Chime() <-chan struct{}
}

// WakeFeed is what the orchestrator needs from the wake listener: its
// events and its background lease for the hold-open trick.
type WakeFeed interface {
	Events() <-chan wake.Event
	Lease() *resource.Lease
}

// CameraFeed delivers obstruction transitions and the current state. The
// events channel can drop transitions while a session keeps the loop busy,
// so gating decisions use Blocked, never the event history alone.
type CameraFeed interface {
	Events() <-chan camera.Event
	Blocked() bool
}

type Config struct {
	RecordDuration time.Duration
	SampleRate     int
	FaceTimeout    time.Duration
	CapturesDir    string // save each command recording as wav when set
	Greeting       string
}

func (c *Config) withDefaults() {
	if c.RecordDuration <= 0 {
		c.RecordDuration = 3 * time.Second
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audioconv.SampleRate
	}
	if c.FaceTimeout <= 0 {
		c.FaceTimeout = 10 * time.Second
	}
}

// Orchestrator owns the wake-to-response pipeline. All session and security
// state is mutated only by the Run loop; other components talk to it through
// channels.
type Orchestrator struct {
	log      *slog.Logger
	guard    *resource.Guard
	wake     WakeFeed
	camera   CameraFeed
	rec      Recorder
	verifier Verifier
	profiles Profiles
	stt      Transcriber
	dispatch Dispatcher
	out      Speech
	cfg      Config

	trigger chan struct{}
	ui      chan UIEvent

	// Loop-owned state; the snapshot below is the only cross-goroutine view.
	stage         Stage
	security      SecurityState
	cameraBlocked bool
	session       *Session

	status statusBox
}

func New(log *slog.Logger, guard *resource.Guard, wakeFeed WakeFeed, cameraFeed CameraFeed,
	rec Recorder, verifier Verifier, profiles Profiles, stt Transcriber,
	dispatch Dispatcher, out Speech, cfg Config) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	cfg.withDefaults()
	return &Orchestrator{
		log:      log,
		guard:    guard,
		wake:     wakeFeed,
		camera:   cameraFeed,
		rec:      rec,
		verifier: verifier,
		profiles: profiles,
		stt:      stt,
		dispatch: dispatch,
		out:      out,
		cfg:      cfg,
		trigger:  make(chan struct{}, 1),
		ui:       make(chan UIEvent, 64),
	}
}

// UIEvents is the outbound feed for the UI and the timeline. Slow consumers
// lose events rather than stalling the pipeline.
func (o *Orchestrator) UIEvents() <-chan UIEvent { return o.ui }

// Status returns the current snapshot. Safe from any goroutine.
func (o *Orchestrator) Status() Status { return o.status.get() }

// Trigger simulates a wake event (the control socket's test hook). Dropped
// if one is already pending, same as real detections.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run is the single-consumer event loop. It returns when ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	if o.cfg.Greeting != "" {
		o.emit("system", o.cfg.Greeting)
		o.out.Speak(o.cfg.Greeting)
	}
	o.setStage(Idle)
	o.emit("status", "Listening for wake phrase")

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.wake.Events():
			o.onWake(ctx)
		case <-o.trigger:
			o.onWake(ctx)
		case ev := <-o.camera.Events():
			o.onCamera(ev)
		}
	}
}

func (o *Orchestrator) onWake(ctx context.Context) {
	if o.stage != Idle {
		// Cannot happen from the real listener (its mic lease is held
		// paused during a session) but the control socket can race.
		o.log.Debug("wake dropped, session active")
		return
	}
	if live := o.camera.Blocked(); live != o.cameraBlocked {
		// A transition was dropped while a session kept the loop busy;
		// bring the overlay back in line before gating on it.
		o.log.Warn("camera state out of sync, reconciling", "blocked", live)
		kind := camera.Restored
		if live {
			kind = camera.Blocked
		}
		o.onCamera(camera.Event{Kind: kind, At: time.Now()})
	}
	if o.cameraBlocked {
		o.log.Warn("wake suppressed, camera lockdown active")
		return
	}
	o.runSession(ctx)
}

// runSession executes one full pipeline cycle inline on the event loop, so
// stage transitions stay single-threaded. All exits, including panics in
// collaborators, restore the wake listener and return to Idle.
func (o *Orchestrator) runSession(ctx context.Context) {
	s := newSession()
	o.session = s
	o.status.setSession(s.ID)
	o.log.Info("session started", "id", s.ID)

	// Hold the wake listener paused for the entire cycle: the guard's
	// auto-resume on mic release must not let our own reply re-trigger it.
	if lease := o.wake.Lease(); lease != nil {
		o.guard.Hold(lease)
		defer o.guard.Unhold(lease)
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("pipeline stage panicked", "id", s.ID, "stage", s.Stage.String(), "panic", r)
			o.out.Speak(msgTrouble)
		}
		o.session = nil
		o.status.setSession("")
		o.setStage(Idle)
		o.emit("status", "Listening for wake phrase")
		o.log.Info("session finished", "id", s.ID)
	}()

	o.setStageFor(s, Awake)
	o.emit("status", "Wake phrase detected. Listening for command...")

	// Let the earcon finish before the mic opens so it stays out of the
	// recording.
	o.waitOrCtx(ctx, o.out.Chime())

	mic, err := o.guard.Acquire(resource.Mic, "command-recorder", resource.Exclusive, resource.Hooks{})
	if err != nil {
		o.log.Warn("mic unavailable, aborting cycle", "err", err)
		return
	}
	o.setStageFor(s, Recording)
	buf, recErr := o.rec.Record(ctx, o.cfg.RecordDuration)
	o.guard.Release(mic)
	if recErr != nil {
		o.collaboratorError(ctx, s, "recording", recErr)
		return
	}
	s.Buffer = buf
	o.archiveCapture(s)

	if !o.verifyIdentity(ctx, s) {
		return
	}

	o.setStageFor(s, Transcribing)
	text, err := o.stt.Transcribe(ctx, buf, o.cfg.SampleRate)
	if err != nil {
		o.collaboratorError(ctx, s, "transcription", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		o.log.Info("nothing understood", "id", s.ID)
		o.speakAndWait(ctx, s, msgDidntCatch)
		return
	}
	s.Transcript = text
	o.emit("user", text)

	o.setStageFor(s, Dispatching)
	res := o.dispatch.Dispatch(ctx, text)
	switch res.Intent {
	case nlu.IntentSecurityMode:
		o.setSecurity(Elevated, "operator")
	case nlu.IntentNormalMode:
		o.setSecurity(Normal, "")
	}
	if res.Err != nil {
		o.log.Warn("dispatch reported failure", "intent", string(res.Intent), "err", res.Err)
	}
	o.log.Info("command dispatched", "id", s.ID, "intent", string(res.Intent), "executed", res.Executed)

	msg := res.SpokenMessage
	if msg == "" {
		msg = "Done."
	}
	o.emit("system", msg)
	o.speakAndWait(ctx, s, msg)
}

// verifyIdentity runs the voice stage and, on a miss, the face stage.
// Missing profiles skip their stage; a fresh install with no enrollment
// passes straight through. Returns false when the cycle must stop.
func (o *Orchestrator) verifyIdentity(ctx context.Context, s *Session) bool {
	voiceProfile, err := o.profiles.Load(identity.Voice)
	if err != nil {
		o.collaboratorError(ctx, s, "voice profile load", err)
		return false
	}
	faceProfile, err := o.profiles.Load(identity.Face)
	if err != nil {
		o.collaboratorError(ctx, s, "face profile load", err)
		return false
	}

	if voiceProfile == nil {
		if faceProfile == nil {
			o.log.Info("no biometrics enrolled, skipping verification", "id", s.ID)
		}
		// No voiceprint to check against; the face stage only runs as an
		// escalation from a failed voice match.
		return true
	}

	o.setStageFor(s, VerifyingVoice)
	res, err := o.verifier.VerifyVoice(s.Buffer, voiceProfile)
	if err != nil {
		o.collaboratorError(ctx, s, "voice verification", err)
		return false
	}
	s.Voice = &res
	if res.Matched {
		o.clearIdentityLockdown()
		return true
	}

	if faceProfile == nil {
		o.intruder(ctx, s)
		return false
	}

	o.setStageFor(s, VerifyingFace)
	fctx, cancel := context.WithTimeout(ctx, o.cfg.FaceTimeout)
	fres, err := o.verifier.VerifyFace(fctx, faceProfile)
	cancel()
	if err != nil {
		o.collaboratorError(ctx, s, "face verification", err)
		return false
	}
	s.Face = &fres
	if !fres.Matched {
		o.intruder(ctx, s)
		return false
	}
	o.clearIdentityLockdown()
	return true
}

func (o *Orchestrator) clearIdentityLockdown() {
	if o.security.Level == Lockdown && o.security.Reason == "identity" {
		o.setSecurity(Normal, "")
	}
}

// intruder declares a failed identity check: lockdown overlay, spoken
// denial, then back to Idle. The lockdown is an alarm state, not a bar on
// further wake attempts; the rightful owner gets to try again.
func (o *Orchestrator) intruder(ctx context.Context, s *Session) {
	o.log.Warn("identity verification failed, intruder declared",
		"id", s.ID, "voice", similarityOf(s.Voice), "face", similarityOf(s.Face))
	o.setSecurity(Lockdown, "identity")
	o.emit("security", "INTRUDER DETECTED")
	o.speakAndWait(ctx, s, msgIntruder)
}

func (o *Orchestrator) collaboratorError(ctx context.Context, s *Session, stage string, err error) {
	o.log.Error("pipeline stage failed", "id", s.ID, "stage", stage, "err", err)
	o.emit("system", "ERROR: "+stage+" failed")
	o.speakAndWait(ctx, s, msgTrouble)
}

func (o *Orchestrator) speakAndWait(ctx context.Context, s *Session, text string) {
	o.setStageFor(s, Speaking)
	o.waitOrCtx(ctx, o.out.Speak(text))
}

func (o *Orchestrator) waitOrCtx(ctx context.Context, done <-chan struct{}) {
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) onCamera(ev camera.Event) {
	switch ev.Kind {
	case camera.Blocked:
		o.cameraBlocked = true
		o.status.setCameraBlocked(true)
		if ev.Unavailable {
			o.log.Error("camera unavailable, entering lockdown")
		} else {
			o.log.Warn("camera obstructed, entering lockdown")
		}
		o.setSecurity(Lockdown, "camera")
		o.emit("security", "CAMERA BLOCKED")
		o.out.Speak(msgCameraBlocked)

	case camera.Restored:
		o.cameraBlocked = false
		o.status.setCameraBlocked(false)
		if o.security.Level == Lockdown && o.security.Reason == "camera" {
			o.setSecurity(Normal, "")
		}
		o.emit("security", "CAMERA RESTORED")
		o.out.Speak(msgCameraRestored)
	}
}

func (o *Orchestrator) setStage(st Stage) {
	o.stage = st
	o.status.setStage(st)
	o.emit("status", "")
}

func (o *Orchestrator) setStageFor(s *Session, st Stage) {
	s.Stage = st
	o.setStage(st)
}

func (o *Orchestrator) setSecurity(level SecurityLevel, reason string) {
	o.security = SecurityState{Level: level, Reason: reason}
	o.status.setSecurity(o.security)
	o.log.Info("security state changed", "level", level.String(), "reason", reason)
}

func (o *Orchestrator) emit(kind, text string) {
	ev := UIEvent{
		Kind:     kind,
		Text:     text,
		Stage:    o.stage.String(),
		Security: o.security,
		At:       time.Now(),
	}
	select {
	case o.ui <- ev:
	default:
	}
}

// archiveCapture writes the recorded buffer as wav when a captures dir is
// configured. Best effort.
func (o *Orchestrator) archiveCapture(s *Session) {
	if o.cfg.CapturesDir == "" {
		return
	}
	path := filepath.Join(o.cfg.CapturesDir, fmt.Sprintf("command-%s.wav", s.ID))
	if err := audioconv.WriteWAVFile(path, s.Buffer); err != nil {
		o.log.Warn("capture archive failed", "path", path, "err", err)
	}
}

func similarityOf(r *identity.Result) float32 {
	if r == nil {
		return -1
	}
	return r.Similarity
}
