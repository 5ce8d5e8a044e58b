package nlu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Intent is the closed set of command outcomes the orchestrator can act on.
type Intent string

const (
	IntentOpenApp      Intent = "open_app"
	IntentCloseApp     Intent = "close_app"
	IntentNote         Intent = "note"
	IntentSecurityMode Intent = "security_mode"
	IntentNormalMode   Intent = "normal_mode"
	IntentSmalltalk    Intent = "smalltalk"
	IntentTime         Intent = "time"
	IntentUnknown      Intent = "unknown"
)

// Result is what one dispatched command produced. SpokenMessage is always
// set; it is what the assistant says back.
type Result struct {
	Intent        Intent
	SpokenMessage string
	Executed      bool
	Err           error
}

// SideEffects is the boundary to the world: launching applications and
// storing notes stay outside the core.
type SideEffects interface {
	LaunchApp(name string) error
	CloseApp(name string) error
	StoreNote(text string) error
}

// Answerer handles utterances the rule parser cannot classify; the OpenAI
// client below implements it. Optional.
type Answerer interface {
	Answer(ctx context.Context, transcript string) (string, error)
}

// Engine turns recognized text into a Result. Rules first, the answerer as
// a fallback for unknown phrasing.
type Engine struct {
	log      *slog.Logger
	effects  SideEffects
	answerer Answerer
	now      func() time.Time
}

func NewEngine(log *slog.Logger, effects SideEffects, answerer Answerer) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log, effects: effects, answerer: answerer, now: time.Now}
}

// knownApps maps spoken fragments to canonical application names.
var knownApps = map[string]string{
	"notepad":            "notepad",
	"note pad":           "notepad",
	"text editor":        "notepad",
	"chrome":             "chrome",
	"browser":            "chrome",
	"code":               "code",
	"vs code":            "code",
	"visual studio code": "code",
	"terminal":           "terminal",
}

// Dispatch classifies and executes one command.
func (e *Engine) Dispatch(ctx context.Context, text string) Result {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return Result{Intent: IntentUnknown, SpokenMessage: "I didn't catch that. Please repeat."}
	}

	switch {
	case contains(lowered, "enter security mode", "security alert"):
		return Result{
			Intent:        IntentSecurityMode,
			SpokenMessage: "Entering security mode. All systems on high alert.",
			Executed:      true,
		}

	case contains(lowered, "normal mode", "stand down"):
		return Result{
			Intent:        IntentNormalMode,
			SpokenMessage: "Returning to normal operational mode.",
			Executed:      true,
		}

	case contains(lowered, "close", "exit", "quit"):
		if app := extractApp(lowered); app != "" {
			return e.appResult(IntentCloseApp, app, e.effects.CloseApp,
				fmt.Sprintf("Closing %s for you.", app))
		}

	case contains(lowered, "open", "launch", "start"):
		if app := extractApp(lowered); app != "" {
			return e.appResult(IntentOpenApp, app, e.effects.LaunchApp,
				fmt.Sprintf("Opening %s for you.", app))
		}
	}

	if note, ok := extractNote(text, lowered); ok {
		if err := e.effects.StoreNote(note); err != nil {
			e.log.Error("note store failed", "err", err)
			return Result{Intent: IntentNote, SpokenMessage: "I couldn't save that note.", Err: err}
		}
		return Result{
			Intent:        IntentNote,
			SpokenMessage: "I'll remember that: " + note,
			Executed:      true,
		}
	}

	if contains(lowered, "time is it", "current time") {
		return Result{
			Intent:        IntentTime,
			SpokenMessage: fmt.Sprintf("It is %s at your location.", e.now().Format("15:04")),
			Executed:      true,
		}
	}

	if contains(lowered, "how are you", "are you there") {
		return Result{
			Intent:        IntentSmalltalk,
			SpokenMessage: "Online and fully operational. How can I assist you?",
			Executed:      true,
		}
	}

	if e.answerer != nil {
		if answer, err := e.answerer.Answer(ctx, text); err == nil && answer != "" {
			return Result{Intent: IntentSmalltalk, SpokenMessage: answer, Executed: true}
		} else if err != nil {
			e.log.Warn("answerer failed", "err", err)
		}
	}

	return Result{
		Intent:        IntentUnknown,
		SpokenMessage: "I'm still learning. I didn't understand that command yet.",
	}
}

func (e *Engine) appResult(intent Intent, app string, act func(string) error, msg string) Result {
	if err := act(app); err != nil {
		e.log.Error("app action failed", "app", app, "err", err)
		return Result{
			Intent:        intent,
			SpokenMessage: fmt.Sprintf("I tried to handle %s but something went wrong.", app),
			Err:           err,
		}
	}
	return Result{Intent: intent, SpokenMessage: msg, Executed: true}
}

func contains(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func extractApp(lowered string) string {
	for fragment, app := range knownApps {
		if strings.Contains(lowered, fragment) {
			return app
		}
	}
	return ""
}

// extractNote pulls the note body out of "note that ..." style phrases.
// "notepad" must not be mistaken for a note command.
func extractNote(raw, lowered string) (string, bool) {
	if !strings.Contains(lowered, "note") && !strings.Contains(lowered, "remember") {
		return "", false
	}
	if strings.Contains(lowered, "note pad") || strings.Contains(lowered, "notepad") {
		return "", false
	}
	for _, kw := range []string{"note that", "note this", "note", "remember that", "remember"} {
		if idx := strings.Index(lowered, kw); idx >= 0 {
			body := strings.TrimSpace(raw[idx+len(kw):])
			if body != "" {
				return body, true
			}
		}
	}
	return "", false
}
