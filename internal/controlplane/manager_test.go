package controlplane

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/mcmot/internal/broker"
)

type fakeSupervisor struct {
	mu       sync.Mutex
	nextPID  int
	alive    map[int]bool
	spawned  []string
	signaled []int
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{nextPID: 1000, alive: map[int]bool{}}
}

func (f *fakeSupervisor) Spawn(_ context.Context, command string, _ []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++
	pid := f.nextPID
	f.alive[pid] = true
	f.spawned = append(f.spawned, command)
	return pid, nil
}

func (f *fakeSupervisor) Signal(pid int, sig int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signaled = append(f.signaled, pid)
	if sig == 9 || sig == 15 {
		f.alive[pid] = false
	}
	return nil
}

func (f *fakeSupervisor) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func TestManager_SetupCreatesControlAndStageTopics(t *testing.T) {
	br := broker.NewMemory()
	cfg := DefaultConfig()
	cfg.Pipeline = "demo"
	cfg.PIDDir = t.TempDir()
	cfg.Stages = []StageTopology{{Stage: "capture", Partitions: 1, ReplicationFactor: 1}}

	m := New(cfg, br, newFakeSupervisor())
	require.NoError(t, m.Setup(context.Background()))
}

func TestManager_StartWritesPIDFilesAndStopSignalsThem(t *testing.T) {
	br := broker.NewMemory()
	sup := newFakeSupervisor()
	cfg := DefaultConfig()
	cfg.Pipeline = "demo"
	cfg.PIDDir = t.TempDir()
	cfg.Stages = []StageTopology{{Stage: "capture", Command: "mcmot-capture", ReplicationFactor: 2}}

	m := New(cfg, br, sup)
	require.NoError(t, m.Start(context.Background()))
	assert.Len(t, sup.spawned, 2)

	require.NoError(t, m.Stop(context.Background()))
	assert.Len(t, sup.signaled, 2)
}

func TestManager_SignalPublishesToControlTopic(t *testing.T) {
	br := broker.NewMemory()
	cfg := DefaultConfig()
	cfg.Pipeline = "demo"
	m := New(cfg, br, newFakeSupervisor())

	received := make(chan ControlMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go br.Consume(ctx, controlTopic("demo"), "test", func(_ context.Context, msg broker.Message) error {
		var ctrl ControlMessage
		if err := json.Unmarshal(msg.Value, &ctrl); err != nil {
			return err
		}
		received <- ctrl
		return nil
	})

	require.NoError(t, m.Signal(context.Background(), "cam1", "HOLD"))
	ctrl := <-received
	assert.Equal(t, "demo", ctrl.Pipeline)
	assert.Equal(t, "HOLD", ctrl.Signal)
}
