package analytics

import (
	"context"
	"fmt"
)

// Caption is one LLM response for a unified frame group.
type Caption struct {
	Text  string
	Model string
}

// LLM is the external captioning collaborator (spec §4.I). A production
// binary wires this to a real vision-language model client; it is an
// external collaborator the way spec §1 names the detector and LLM as
// boundaries this system does not implement.
type LLM interface {
	Analyze(ctx context.Context, prompt string, image []byte, meta map[string]any) (Caption, error)
}

// NoopLLM returns a fixed placeholder caption without calling out to any
// model. It is the default LLM a worker binary wires when no real
// vision-language model endpoint is configured, the same way
// detection.NoopDetector stands in for a real detector.
type NoopLLM struct{}

func (NoopLLM) Analyze(context.Context, string, []byte, map[string]any) (Caption, error) {
	return Caption{Text: "captioning not configured", Model: "noop"}, nil
}

// ReportRow is one row of the unified.xlsx/unified.log output (spec §4.I).
type ReportRow struct {
	Timestamp   string
	SyncKey     string
	Cameras     []string
	Caption     string
	Incomplete  bool
}

func (r ReportRow) logLine() string {
	return fmt.Sprintf("ts=%s sync_key=%s cameras=%v incomplete=%t caption=%q",
		r.Timestamp, r.SyncKey, r.Cameras, r.Incomplete, r.Caption)
}
