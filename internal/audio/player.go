// Package audio triggers the audible athan cue by shelling out to a
// configured player command (e.g. "mpv --no-video /path/athan.mp3").
package audio

import (
	"os/exec"
	"strings"
	"sync"

	appLog "athand/internal/log"
)

// Player starts and stops the audible cue.
type Player interface {
	Play()
	Stop()
}

// ExecPlayer runs the configured command once per Play. A new Play stops
// any cue still running.
type ExecPlayer struct {
	mu   sync.Mutex
	args []string
	cmd  *exec.Cmd
}

// NewExecPlayer parses command into argv form. An empty command yields a
// player that only logs, which keeps headless/test deployments working.
func NewExecPlayer(command string) *ExecPlayer {
	return &ExecPlayer{args: strings.Fields(command)}
}

func (p *ExecPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	if len(p.args) == 0 {
		appLog.Info("audio: no player command configured, cue skipped")
		return
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	if err := cmd.Start(); err != nil {
		appLog.Error("audio: failed to start player", err, "command", p.args[0])
		return
	}
	p.cmd = cmd

	go func() {
		// Reap the process; exit status is uninteresting here.
		_ = cmd.Wait()
		p.mu.Lock()
		if p.cmd == cmd {
			p.cmd = nil
		}
		p.mu.Unlock()
	}()
}

func (p *ExecPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *ExecPlayer) stopLocked() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.cmd = nil
}
