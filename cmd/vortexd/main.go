package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/afero"

	"vortex/internal/audio"
	"vortex/internal/camera"
	"vortex/internal/config"
	"vortex/internal/identity"
	"vortex/internal/ipc"
	"vortex/internal/nlu"
	"vortex/internal/orchestrator"
	"vortex/internal/proxy"
	"vortex/internal/resource"
	"vortex/internal/speech"
	"vortex/internal/timeline"
	"vortex/internal/ui"
	"vortex/internal/wake"
	"vortex/pkg/audioconv"
	"vortex/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	enrollVoice := cli.Int("enroll-voice", 0, "Record N voice samples, enroll the owner voiceprint and exit")
	enrollFace := cli.Int("enroll-face", 0, "Capture N face frames, enroll the owner faceprint and exit")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)
	cfg, err := config.Load()
	if err != nil {
		log.Error("Bad configuration", "err", err)
		os.Exit(1)
	}

	store := identity.NewStore(afero.NewOsFs(), cfg.ProfilesDir)

	if *enrollVoice > 0 {
		if err := runEnrollVoice(store, *enrollVoice, cfg.RecordDuration); err != nil {
			log.Error("Voice enrollment failed", "err", err)
			os.Exit(1)
		}
		return
	}
	if *enrollFace > 0 {
		if err := runEnrollFace(store, cfg.CameraDevice, *enrollFace); err != nil {
			log.Error("Face enrollment failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, store); err != nil {
		log.Error("Fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, store *identity.Store) error {
	logger := log.Default()
	guard := resource.NewGuard(logger)

	if err := audio.Init(); err != nil {
		return err
	}
	defer audio.Terminate()
	log.Debug("Loaded audio backend")

	whisper, err := stt.NewTranscriber(cfg.WhisperModel)
	if err != nil {
		return err
	}
	defer whisper.Close()
	log.Debug("Loaded whisper", "model", cfg.WhisperModel)

	var answerer nlu.Answerer
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if cfg.ProxyAddr != "" {
			httpClient, err := proxy.NewSocksClient(cfg.ProxyAddr)
			if err != nil {
				return err
			}
			opts = append(opts, option.WithHTTPClient(httpClient))
		}
		client := openai.NewClient(opts...)
		answerer = nlu.NewOpenAIAnswerer(client, openai.ChatModel(cfg.OpenAIModel))
		log.Debug("Loaded answerer")
	} else {
		log.Warn("OPENAI_API_KEY not set, smalltalk fallback disabled")
	}

	engine := nlu.NewEngine(logger, nlu.NewDesktopEffects(logger, cfg.NotesPath), answerer)

	ducker := audio.NewDucker([]string{"vortexd", "beep"}, 20)
	out := speech.NewOutput(logger, guard, speech.NewEspeak(cfg.TTSVoice, cfg.TTSRate), &speech.BeepPlayer{}, ducker)
	defer out.Shutdown()

	chime := speech.GenerateChime()
	if cfg.ChimePath != "" {
		if pcm, err := speech.LoadChime(cfg.ChimePath); err != nil {
			log.Warn("Chime asset unusable, using built-in", "path", cfg.ChimePath, "err", err)
		} else {
			chime = pcm
		}
	}
	out.SetChime(chime)

	openCam := camera.OpenV4L2(cfg.CameraDevice, 0, 0)
	verifier := identity.NewVerifier(logger, guard, openCam,
		identity.SpectralVoiceEmbedder{}, identity.TemplateFaceEmbedder{},
		identity.Config{
			VoiceThreshold: float32(cfg.VoiceThreshold),
			FaceThreshold:  float32(cfg.FaceThreshold),
		})

	monitor := camera.NewMonitor(logger, guard, openCam, camera.Config{
		DarkThreshold: cfg.DarkThreshold,
		Interval:      cfg.CameraPoll,
	})

	openMic := func() (wake.Source, error) {
		return audio.OpenCapture(audioconv.SampleRate, 1024)
	}
	listener := wake.NewListener(logger, guard, openMic,
		wake.NewEnergyDetector(cfg.WakeThreshold, 0))

	orch := orchestrator.New(logger, guard, listener, monitor,
		&audio.Recorder{SampleRate: audioconv.SampleRate},
		verifier, store,
		sttAdapter{tr: whisper, lang: cfg.Language},
		engine, out,
		orchestrator.Config{
			RecordDuration: cfg.RecordDuration,
			SampleRate:     audioconv.SampleRate,
			CapturesDir:    cfg.CapturesDir,
			Greeting:       cfg.Greeting,
		})

	tl := timeline.New(200)
	var feed *ui.Feed
	if cfg.UIAddr != "" {
		feed = ui.NewFeed(logger)
		if err := feed.Start(cfg.UIAddr); err != nil {
			return err
		}
		defer feed.Close()
	}
	go func() {
		for ev := range orch.UIEvents() {
			if ev.Text != "" {
				tl.Add(ev.Kind, ev.Text)
			}
			if feed != nil {
				feed.Broadcast(ev)
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := ipc.NewServer(logger, cfg.SocketPath, &ctl{
		orch:     orch,
		guard:    guard,
		out:      out,
		tl:       tl,
		shutdown: stop,
	})
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Close()

	if err := monitor.Start(); err != nil {
		log.Warn("Camera monitor unavailable", "err", err)
	} else {
		defer monitor.Stop()
	}
	if err := listener.Start(); err != nil {
		return err
	}
	defer listener.Stop()

	log.Info("Boot up - successful")
	orch.Run(ctx)
	log.Info("Shutting down")
	return nil
}

// sttAdapter bridges the whisper transcriber into the pipeline contract.
type sttAdapter struct {
	tr   *stt.Transcriber
	lang string
}

func (a sttAdapter) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if sampleRate != audioconv.SampleRate {
		samples = audioconv.Resample(samples, sampleRate, audioconv.SampleRate)
	}
	return a.tr.Transcribe(ctx, samples, stt.Options{Language: a.lang})
}

// ctl answers the control socket.
type ctl struct {
	orch     *orchestrator.Orchestrator
	guard    *resource.Guard
	out      *speech.Output
	tl       *timeline.Log
	shutdown func()
}

func (c *ctl) Handle(req ipc.Request) ipc.Response {
	switch req.Verb {
	case ipc.VerbTrigger:
		c.orch.Trigger()
		return ipc.Response{OK: true}

	case ipc.VerbStatus:
		st := c.orch.Status()
		return ipc.Response{OK: true, Status: &st}

	case ipc.VerbResetCamera:
		c.guard.Reset(resource.Camera)
		return ipc.Response{OK: true}

	case ipc.VerbSay:
		if req.Text == "" {
			return ipc.Response{Error: "say requires text"}
		}
		c.out.Speak(req.Text)
		return ipc.Response{OK: true}

	case ipc.VerbTimeline:
		return ipc.Response{OK: true, Timeline: c.tl.Recent(50)}

	case ipc.VerbShutdown:
		c.shutdown()
		return ipc.Response{OK: true}
	}
	return ipc.Response{Error: "unknown verb: " + req.Verb}
}

func runEnrollVoice(store *identity.Store, n int, dur time.Duration) error {
	if err := audio.Init(); err != nil {
		return err
	}
	defer audio.Terminate()

	rec := &audio.Recorder{SampleRate: audioconv.SampleRate}
	emb := identity.SpectralVoiceEmbedder{}

	samples := make([][]float32, 0, n)
	for i := 0; i < n; i++ {
		log.Info("Speak now", "sample", i+1, "of", n)
		pcm, err := rec.Record(context.Background(), dur)
		if err != nil {
			return err
		}
		vec, err := emb.EmbedVoice(pcm)
		if err != nil {
			return err
		}
		samples = append(samples, vec)
		log.Info("Captured", "sample", i+1)
		time.Sleep(500 * time.Millisecond)
	}
	if err := store.Enroll(identity.Voice, samples); err != nil {
		return err
	}
	log.Info("Voiceprint enrolled", "samples", n)
	return nil
}

func runEnrollFace(store *identity.Store, device string, n int) error {
	dev, err := camera.OpenV4L2(device, 0, 0)()
	if err != nil {
		return err
	}
	defer dev.Close()

	emb := identity.TemplateFaceEmbedder{}
	samples := make([][]float32, 0, n)

	// Allow a few misses per wanted sample for dark or empty frames.
	for attempt := 0; len(samples) < n && attempt < n*5; attempt++ {
		frame, err := dev.ReadFrame()
		if err != nil {
			log.Warn("Frame grab failed", "err", err)
			time.Sleep(300 * time.Millisecond)
			continue
		}
		vec, ok, err := emb.EmbedLargestFace(frame)
		if err != nil {
			return err
		}
		if !ok {
			time.Sleep(300 * time.Millisecond)
			continue
		}
		samples = append(samples, vec)
		log.Info("Captured", "sample", len(samples), "of", n)
		time.Sleep(300 * time.Millisecond)
	}
	if len(samples) < n {
		log.Warn("Fewer usable frames than requested", "got", len(samples), "want", n)
	}
	if err := store.Enroll(identity.Face, samples); err != nil {
		return err
	}
	log.Info("Faceprint enrolled", "samples", len(samples))
	return nil
}
