package nlu

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// DesktopEffects executes commands against the local desktop session:
// applications are spawned detached, closed via pkill, notes appended to a
// plain text file.
type DesktopEffects struct {
	log       *slog.Logger
	notesPath string
}

func NewDesktopEffects(log *slog.Logger, notesPath string) *DesktopEffects {
	if log == nil {
		log = slog.Default()
	}
	return &DesktopEffects{log: log, notesPath: notesPath}
}

func (d *DesktopEffects) LaunchApp(name string) error {
	cmd := exec.Command(name)
	// Detach: the app must outlive the daemon and never inherit its stdio.
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", name, err)
	}
	d.log.Info("application launched", "app", name, "pid", cmd.Process.Pid)
	go cmd.Wait()
	return nil
}

func (d *DesktopEffects) CloseApp(name string) error {
	if err := exec.Command("pkill", "-x", name).Run(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	d.log.Info("application closed", "app", name)
	return nil
}

func (d *DesktopEffects) StoreNote(text string) error {
	if d.notesPath == "" {
		return fmt.Errorf("no notes file configured")
	}
	if err := os.MkdirAll(filepath.Dir(d.notesPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(d.notesPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "[%s] %s\n", time.Now().Format(time.RFC3339), text)
	return err
}
