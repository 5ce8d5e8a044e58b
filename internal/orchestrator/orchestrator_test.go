package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"vortex/internal/camera"
	"vortex/internal/identity"
	"vortex/internal/nlu"
	"vortex/internal/resource"
	"vortex/internal/wake"
)

type fakeWake struct {
	ch    chan wake.Event
	lease *resource.Lease
}

func (f *fakeWake) Events() <-chan wake.Event { return f.ch }
func (f *fakeWake) Lease() *resource.Lease    { return f.lease }

type fakeCamera struct {
	ch      chan camera.Event
	blocked bool
}

func (f *fakeCamera) Events() <-chan camera.Event { return f.ch }
func (f *fakeCamera) Blocked() bool               { return f.blocked }

type fakeRecorder struct {
	samples []float32
	err     error
	calls   int
}

func (f *fakeRecorder) Record(context.Context, time.Duration) ([]float32, error) {
	f.calls++
	return f.samples, f.err
}

type fakeVerifier struct {
	voice      identity.Result
	voiceErr   error
	face       identity.Result
	faceErr    error
	voiceCalls int
	faceCalls  int
}

func (f *fakeVerifier) VerifyVoice([]float32, *identity.Profile) (identity.Result, error) {
	f.voiceCalls++
	return f.voice, f.voiceErr
}

func (f *fakeVerifier) VerifyFace(context.Context, *identity.Profile) (identity.Result, error) {
	f.faceCalls++
	return f.face, f.faceErr
}

type fakeProfiles struct {
	voice, face *identity.Profile
	err         error
}

func (f *fakeProfiles) Load(m identity.Modality) (*identity.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if m == identity.Voice {
		return f.voice, nil
	}
	return f.face, nil
}

type fakeSTT struct {
	text  string
	err   error
	calls int
}

func (f *fakeSTT) Transcribe(context.Context, []float32, int) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeDispatch struct {
	mu    sync.Mutex
	res   nlu.Result
	got   []string
	panic bool
}

func (f *fakeDispatch) Dispatch(_ context.Context, text string) nlu.Result {
	if f.panic {
		panic("dispatcher blew up")
	}
	f.mu.Lock()
	f.got = append(f.got, text)
	f.mu.Unlock()
	return f.res
}

func (f *fakeDispatch) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type fakeSpeech struct{ spoken []string }

func (f *fakeSpeech) Speak(text string) <-chan struct{} {
	f.spoken = append(f.spoken, text)
	return closedChan()
}

func (f *fakeSpeech) Chime() <-chan struct{} { return closedChan() }

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (f *fakeSpeech) count(text string) int {
	n := 0
	for _, s := range f.spoken {
		if s == text {
			n++
		}
	}
	return n
}

type harness struct {
	o        *Orchestrator
	guard    *resource.Guard
	wake     *fakeWake
	camera   *fakeCamera
	rec      *fakeRecorder
	verifier *fakeVerifier
	profiles *fakeProfiles
	stt      *fakeSTT
	dispatch *fakeDispatch
	speech   *fakeSpeech
	resumes  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := resource.NewGuard(log)

	h := &harness{
		guard:    guard,
		wake:     &fakeWake{ch: make(chan wake.Event, 1)},
		camera:   &fakeCamera{ch: make(chan camera.Event, 4)},
		rec:      &fakeRecorder{samples: make([]float32, 16000)},
		verifier: &fakeVerifier{},
		profiles: &fakeProfiles{},
		stt:      &fakeSTT{text: "open chrome"},
		dispatch: &fakeDispatch{res: nlu.Result{Intent: nlu.IntentOpenApp, SpokenMessage: "Opening chrome.", Executed: true}},
		speech:   &fakeSpeech{},
	}

	lease, err := guard.Acquire(resource.Mic, "wake-listener", resource.Background, resource.Hooks{
		Resume: func() error { h.resumes++; return nil },
	})
	if err != nil {
		t.Fatalf("wake lease: %v", err)
	}
	h.wake.lease = lease

	h.o = New(log, guard, h.wake, h.camera, h.rec, h.verifier, h.profiles, h.stt, h.dispatch, h.speech, Config{
		RecordDuration: time.Millisecond,
		SampleRate:     16000,
		FaceTimeout:    time.Second,
	})
	h.o.setStage(Idle)
	return h
}

func profile(m identity.Modality) *identity.Profile {
	return &identity.Profile{Modality: m, Vector: []float32{1, 0, 0}}
}

func TestNoProfilesSkipsVerification(t *testing.T) {
	h := newHarness(t)

	h.o.runSession(context.Background())

	if h.verifier.voiceCalls != 0 || h.verifier.faceCalls != 0 {
		t.Errorf("verifier called with nothing enrolled: voice=%d face=%d", h.verifier.voiceCalls, h.verifier.faceCalls)
	}
	if h.stt.calls != 1 {
		t.Fatalf("transcriber calls = %d, want 1", h.stt.calls)
	}
	if len(h.dispatch.got) != 1 || h.dispatch.got[0] != "open chrome" {
		t.Errorf("dispatched = %v", h.dispatch.got)
	}
	if h.speech.count("Opening chrome.") != 1 {
		t.Errorf("spoken = %v", h.speech.spoken)
	}
	if st := h.o.Status(); st.Stage != "idle" || st.SessionID != "" {
		t.Errorf("did not return to idle: %+v", st)
	}
}

func TestVoiceFailWithoutFaceLocksDown(t *testing.T) {
	h := newHarness(t)
	h.profiles.voice = profile(identity.Voice)
	h.verifier.voice = identity.Result{Modality: identity.Voice, Similarity: 0.60, Matched: false}

	h.o.runSession(context.Background())

	if h.verifier.faceCalls != 0 {
		t.Error("face stage ran without an enrolled faceprint")
	}
	if h.stt.calls != 0 {
		t.Error("transcription ran after failed verification")
	}
	if h.speech.count(msgIntruder) != 1 {
		t.Errorf("spoken = %v", h.speech.spoken)
	}
	st := h.o.Status()
	if st.Security.Level != Lockdown || st.Security.Reason != "identity" {
		t.Errorf("security = %+v, want identity lockdown", st.Security)
	}
	if st.Stage != "idle" {
		t.Errorf("stage = %s, want idle after denial", st.Stage)
	}
}

func TestVoiceFailFacePassProceeds(t *testing.T) {
	h := newHarness(t)
	h.profiles.voice = profile(identity.Voice)
	h.profiles.face = profile(identity.Face)
	h.verifier.voice = identity.Result{Modality: identity.Voice, Similarity: 0.60, Matched: false}
	h.verifier.face = identity.Result{Modality: identity.Face, Similarity: 0.85, Matched: true}

	h.o.runSession(context.Background())

	if h.verifier.faceCalls != 1 {
		t.Fatalf("face stage calls = %d, want 1", h.verifier.faceCalls)
	}
	if h.stt.calls != 1 {
		t.Error("face pass did not reach transcription")
	}
	if got := h.speech.count(msgIntruder); got != 0 {
		t.Errorf("intruder spoken %d times on successful escalation", got)
	}
	if st := h.o.Status(); st.Security.Level != Normal {
		t.Errorf("security = %+v, want normal", st.Security)
	}
}

func TestSuccessfulVerificationClearsIdentityLockdown(t *testing.T) {
	h := newHarness(t)
	h.o.setSecurity(Lockdown, "identity")
	h.profiles.voice = profile(identity.Voice)
	h.verifier.voice = identity.Result{Modality: identity.Voice, Similarity: 0.92, Matched: true}

	h.o.runSession(context.Background())

	if st := h.o.Status(); st.Security.Level != Normal {
		t.Errorf("security = %+v, lockdown not cleared by owner", st.Security)
	}
}

func TestEmptyTranscriptionApologizesOnce(t *testing.T) {
	h := newHarness(t)
	h.stt.text = "   \n"

	h.o.runSession(context.Background())

	if len(h.dispatch.got) != 0 {
		t.Errorf("dispatched empty transcript: %v", h.dispatch.got)
	}
	if got := h.speech.count(msgDidntCatch); got != 1 {
		t.Errorf("apology spoken %d times, want 1: %v", got, h.speech.spoken)
	}
	if st := h.o.Status(); st.Stage != "idle" {
		t.Errorf("stage = %s, want idle", st.Stage)
	}
}

func TestFaceStageErrorRecovers(t *testing.T) {
	h := newHarness(t)
	h.profiles.voice = profile(identity.Voice)
	h.profiles.face = profile(identity.Face)
	h.verifier.voice = identity.Result{Modality: identity.Voice, Similarity: 0.60, Matched: false}
	h.verifier.faceErr = errors.New("camera wedged")

	h.o.runSession(context.Background())

	if h.speech.count(msgTrouble) != 1 {
		t.Errorf("spoken = %v", h.speech.spoken)
	}
	if st := h.o.Status(); st.Stage != "idle" {
		t.Errorf("stage = %s, want idle", st.Stage)
	}
	if h.resumes != 1 {
		t.Errorf("wake listener resumes = %d, want 1 after session teardown", h.resumes)
	}
	// The next wake must start a fresh session.
	h.verifier.faceErr = nil
	h.verifier.face = identity.Result{Modality: identity.Face, Similarity: 0.9, Matched: true}
	h.o.onWake(context.Background())
	if h.stt.calls != 1 {
		t.Errorf("recovered session did not reach transcription, stt calls = %d", h.stt.calls)
	}
}

func TestDispatcherPanicRecovers(t *testing.T) {
	h := newHarness(t)
	h.dispatch.panic = true

	h.o.runSession(context.Background())

	if h.speech.count(msgTrouble) != 1 {
		t.Errorf("spoken = %v", h.speech.spoken)
	}
	st := h.o.Status()
	if st.Stage != "idle" || st.SessionID != "" {
		t.Errorf("panic left session open: %+v", st)
	}
	if h.resumes != 1 {
		t.Errorf("wake listener resumes = %d, want 1", h.resumes)
	}
}

func TestWakeSuppressedDuringCameraLockdown(t *testing.T) {
	h := newHarness(t)

	h.camera.blocked = true
	h.o.onCamera(camera.Event{Kind: camera.Blocked, At: time.Now()})

	st := h.o.Status()
	if !st.CameraBlocked || st.Security.Level != Lockdown || st.Security.Reason != "camera" {
		t.Fatalf("status after blocked = %+v", st)
	}
	if h.speech.count(msgCameraBlocked) != 1 {
		t.Errorf("spoken = %v", h.speech.spoken)
	}

	h.o.onWake(context.Background())
	if h.rec.calls != 0 {
		t.Error("session started while camera lockdown active")
	}

	h.camera.blocked = false
	h.o.onCamera(camera.Event{Kind: camera.Restored, At: time.Now()})
	st = h.o.Status()
	if st.CameraBlocked || st.Security.Level != Normal {
		t.Fatalf("status after restored = %+v", st)
	}

	h.o.onWake(context.Background())
	if h.rec.calls != 1 {
		t.Error("wake not accepted after camera restore")
	}
}

func TestWakeGatesOnLiveCameraState(t *testing.T) {
	h := newHarness(t)

	// Rapid flicker while a session kept the loop busy: the orchestrator
	// saw an interleaving ending in Restored, but the final Blocked
	// transition was lost and the camera is really obstructed.
	h.o.onCamera(camera.Event{Kind: camera.Blocked, At: time.Now()})
	h.o.onCamera(camera.Event{Kind: camera.Restored, At: time.Now()})
	h.camera.blocked = true

	h.o.onWake(context.Background())
	if h.rec.calls != 0 {
		t.Error("session started during a real obstruction")
	}
	st := h.o.Status()
	if !st.CameraBlocked || st.Security.Level != Lockdown || st.Security.Reason != "camera" {
		t.Errorf("overlay not reconciled: %+v", st)
	}

	// The mirror image: a lost Restored must not suppress wakes forever.
	h.camera.blocked = false
	h.o.onWake(context.Background())
	if h.rec.calls != 1 {
		t.Error("wake still suppressed after the camera cleared")
	}
	if st := h.o.Status(); st.CameraBlocked || st.Security.Level != Normal {
		t.Errorf("overlay not cleared: %+v", st)
	}
}

func TestCameraRestoreKeepsOperatorLockdown(t *testing.T) {
	h := newHarness(t)
	h.o.setSecurity(Lockdown, "identity")

	h.o.onCamera(camera.Event{Kind: camera.Restored, At: time.Now()})

	if st := h.o.Status(); st.Security.Level != Lockdown || st.Security.Reason != "identity" {
		t.Errorf("camera restore cleared a foreign lockdown: %+v", st.Security)
	}
}

func TestSecurityModeCommandElevates(t *testing.T) {
	h := newHarness(t)
	h.stt.text = "enter security mode"
	h.dispatch.res = nlu.Result{Intent: nlu.IntentSecurityMode, SpokenMessage: "Security mode engaged.", Executed: true}

	h.o.runSession(context.Background())

	st := h.o.Status()
	if st.Security.Level != Elevated || st.Security.Reason != "operator" {
		t.Errorf("security = %+v, want operator elevation", st.Security)
	}

	h.dispatch.res = nlu.Result{Intent: nlu.IntentNormalMode, SpokenMessage: "Standing down.", Executed: true}
	h.o.runSession(context.Background())
	if st := h.o.Status(); st.Security.Level != Normal {
		t.Errorf("security = %+v, want normal after stand down", st.Security)
	}
}

func TestRecordingFailureSpeaksTrouble(t *testing.T) {
	h := newHarness(t)
	h.rec.err = errors.New("device gone")

	h.o.runSession(context.Background())

	if h.stt.calls != 0 {
		t.Error("transcription ran on a failed recording")
	}
	if h.speech.count(msgTrouble) != 1 {
		t.Errorf("spoken = %v", h.speech.spoken)
	}
	// The mic lease must not leak; a second session must acquire it.
	h.rec.err = nil
	h.o.runSession(context.Background())
	if h.rec.calls != 2 {
		t.Errorf("recorder calls = %d, want 2", h.rec.calls)
	}
}

func TestTriggerDropsWhenPending(t *testing.T) {
	h := newHarness(t)
	h.o.Trigger()
	h.o.Trigger()
	if n := len(h.o.trigger); n != 1 {
		t.Errorf("pending triggers = %d, want 1", n)
	}
}

func TestRunLoopHandlesTrigger(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		h.o.Run(ctx)
		close(done)
	}()

	h.o.Trigger()
	deadline := time.After(2 * time.Second)
	for h.dispatch.calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("trigger never dispatched")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on ctx cancel")
	}
}

func TestUIEventsCarryTranscript(t *testing.T) {
	h := newHarness(t)

	h.o.runSession(context.Background())

	var sawUser bool
	for {
		select {
		case ev := <-h.o.UIEvents():
			if ev.Kind == "user" && strings.Contains(ev.Text, "open chrome") {
				sawUser = true
			}
			continue
		default:
		}
		break
	}
	if !sawUser {
		t.Error("transcript never surfaced on the UI feed")
	}
}
