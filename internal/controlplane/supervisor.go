package controlplane

import "context"

// Supervisor spawns and tracks a worker process for one stage instance
// (spec §1: an external collaborator; §4.J: "Start... uses a Supervisor
// interface to spawn replication_factor worker processes per stage").
type Supervisor interface {
	// Spawn starts one worker process running command/args and returns
	// its OS PID. The process's lifetime is independent of ctx; ctx only
	// bounds the spawn attempt itself.
	Spawn(ctx context.Context, command string, args []string) (pid int, err error)
	// Signal sends signal number sig to pid. Implementations treat "no
	// such process" as a no-op, not an error (the process may have
	// already exited).
	Signal(pid int, sig int) error
	// Alive reports whether pid still refers to a live process.
	Alive(pid int) bool
}
