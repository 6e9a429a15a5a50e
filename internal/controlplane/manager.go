package controlplane

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log/level"

	"github.com/grafana/mcmot/internal/broker"
	mcmotlog "github.com/grafana/mcmot/internal/log"
)

// Manager drives one pipeline's Setup/Start/Stop/Signal fleet operations
// (spec §4.J).
type Manager struct {
	cfg        Config
	br         broker.Broker
	supervisor Supervisor
}

// New constructs a Manager. supervisor is typically OSSupervisor{}.
func New(cfg Config, br broker.Broker, supervisor Supervisor) *Manager {
	return &Manager{cfg: cfg, br: br, supervisor: supervisor}
}

// Setup (re)creates every stage's topics, plus the pipeline's shared
// control topic.
func (m *Manager) Setup(ctx context.Context) error {
	if err := m.br.CreateTopic(ctx, controlTopic(m.cfg.Pipeline), 1, 1); err != nil {
		return fmt.Errorf("controlplane: create control topic: %w", err)
	}
	for _, st := range m.cfg.Stages {
		topic := fmt.Sprintf("%s-%s-topic", m.cfg.Pipeline, st.Stage)
		if err := m.br.CreateTopic(ctx, topic, st.Partitions, st.ReplicationFactor); err != nil {
			return fmt.Errorf("controlplane: create topic for stage %q: %w", st.Stage, err)
		}
	}
	return os.MkdirAll(m.cfg.PIDDir, 0o755)
}

// Start spawns ReplicationFactor worker processes per stage (one for the
// unify and analytics stages), recording each one's PID under
// pids/<stage>-<i>.pid.
func (m *Manager) Start(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.PIDDir, 0o755); err != nil {
		return fmt.Errorf("controlplane: create pid dir: %w", err)
	}
	for _, st := range m.cfg.Stages {
		n := st.ReplicationFactor
		if n <= 0 {
			n = 1
		}
		// Unify and Analytics hold pipeline-wide state that is not shardable
		// across processes, so each runs as exactly one worker.
		if st.Stage == "unify" || st.Stage == "analytics" {
			n = 1
		}
		for i := 0; i < n; i++ {
			pid, err := m.supervisor.Spawn(ctx, st.Command, st.Args)
			if err != nil {
				return fmt.Errorf("controlplane: start stage %q worker %d: %w", st.Stage, i, err)
			}
			if err := m.writePIDFile(st.Stage, i, pid); err != nil {
				return err
			}
			level.Info(mcmotlog.Logger).Log("msg", "worker started", "stage", st.Stage, "index", i, "pid", pid)
		}
	}
	return nil
}

func (m *Manager) pidFilePath(stage string, index int) string {
	return filepath.Join(m.cfg.PIDDir, fmt.Sprintf("%s-%d.pid", stage, index))
}

func (m *Manager) writePIDFile(stage string, index, pid int) error {
	path := m.pidFilePath(stage, index)
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("controlplane: write pid file %q: %w", path, err)
	}
	return nil
}

// Stop signals every known worker SIGTERM, waits up to StopGrace, then
// escalates to SIGKILL for stragglers. Workers whose PID file is missing
// or stale are recovered via a /proc argv scan (Linux only).
func (m *Manager) Stop(ctx context.Context) error {
	pids := m.collectPIDs()

	for _, pid := range pids {
		if err := m.supervisor.Signal(pid, int(syscall.SIGTERM)); err != nil {
			level.Warn(mcmotlog.Logger).Log("msg", "failed to SIGTERM worker", "pid", pid, "err", err)
		}
	}

	deadline := time.Now().Add(m.cfg.StopGrace)
	for _, pid := range pids {
		for m.supervisor.Alive(pid) && time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
		if m.supervisor.Alive(pid) {
			level.Warn(mcmotlog.Logger).Log("msg", "worker did not exit after grace period, sending SIGKILL", "pid", pid)
			if err := m.supervisor.Signal(pid, int(syscall.SIGKILL)); err != nil {
				level.Error(mcmotlog.Logger).Log("msg", "failed to SIGKILL worker", "pid", pid, "err", err)
			}
		}
	}

	return m.cleanupPIDFiles()
}

// collectPIDs reads every pids/<stage>-<i>.pid file, falling back to a
// /proc argv scan for stages expected by Config but whose PID file is
// missing or refers to a dead process (spec §4.J).
func (m *Manager) collectPIDs() []int {
	var pids []int
	seen := map[int]bool{}

	entries, _ := os.ReadDir(m.cfg.PIDDir)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pid") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.cfg.PIDDir, e.Name()))
		if err != nil {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			continue
		}
		if m.supervisor.Alive(pid) {
			pids = append(pids, pid)
			seen[pid] = true
		}
	}

	for _, st := range m.cfg.Stages {
		for _, pid := range scanProcForCommand(st.Command) {
			if !seen[pid] {
				pids = append(pids, pid)
				seen[pid] = true
			}
		}
	}

	return pids
}

// scanProcForCommand walks /proc looking for processes whose argv[0]
// contains command, used when a PID file is missing or stale (Linux
// fallback per spec §4.J).
func scanProcForCommand(command string) []int {
	var pids []int
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		cmdline, err := os.ReadFile(filepath.Join("/proc", e.Name(), "cmdline"))
		if err != nil {
			continue
		}
		args := strings.Split(string(cmdline), "\x00")
		if len(args) > 0 && strings.Contains(args[0], command) {
			pids = append(pids, pid)
		}
	}
	return pids
}

func (m *Manager) cleanupPIDFiles() error {
	entries, err := os.ReadDir(m.cfg.PIDDir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".pid") {
			_ = os.Remove(filepath.Join(m.cfg.PIDDir, e.Name()))
		}
	}
	return nil
}

// Signal publishes a HOLD/RESUME/STOP control message to the pipeline's
// control topic (spec §4.D/§4.J), wire-encoded as the documented
// {pipeline, signal, loop_count} JSON envelope (spec §6).
func (m *Manager) Signal(ctx context.Context, cameraID, signal string) error {
	payload, err := MarshalControlMessage(m.cfg.Pipeline, signal, 0)
	if err != nil {
		return fmt.Errorf("controlplane: encode control message: %w", err)
	}
	return m.br.Produce(ctx, controlTopic(m.cfg.Pipeline), cameraID, payload)
}
