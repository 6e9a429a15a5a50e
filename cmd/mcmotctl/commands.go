package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/grafana/mcmot/internal/controlplane"
)

type setupCmd struct{}

func (c *setupCmd) Run(mgr *controlplane.Manager) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mgr.Setup(ctx); err != nil {
		return err
	}
	fmt.Println("topics provisioned")
	return nil
}

type startCmd struct{}

func (c *startCmd) Run(mgr *controlplane.Manager) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	fmt.Println("worker fleet started")
	return nil
}

type stopCmd struct{}

func (c *stopCmd) Run(mgr *controlplane.Manager, cfg controlplane.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.StopGrace+10*time.Second)
	defer cancel()
	if err := mgr.Stop(ctx); err != nil {
		return err
	}
	fmt.Println("worker fleet stopped")
	return nil
}

type signalCmd struct {
	Camera string `arg:"" help:"Camera ID to signal."`
	Signal string `arg:"" enum:"HOLD,RESUME,STOP" help:"One of HOLD, RESUME, STOP."`
}

func (c *signalCmd) Run(mgr *controlplane.Manager) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Signal(ctx, c.Camera, c.Signal); err != nil {
		return err
	}
	fmt.Printf("sent %s to camera %s\n", c.Signal, c.Camera)
	return nil
}

// statusCmd prints the pipeline's configured stage topology, following
// the same go-pretty/table shape the teacher's federated-querier status
// handler uses for its endpoint listing.
type statusCmd struct{}

func (c *statusCmd) Run(cfg controlplane.Config) error {
	x := table.NewWriter()
	x.SetOutputMirror(os.Stdout)
	x.AppendHeader(table.Row{"stage", "partitions", "replication-factor", "command"})
	for _, st := range cfg.Stages {
		x.AppendRows([]table.Row{
			{st.Stage, st.Partitions, st.ReplicationFactor, st.Command},
		})
	}
	x.AppendSeparator()
	x.Render()
	return nil
}
