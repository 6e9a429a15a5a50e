package analytics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"
	"github.com/qax-os/excelize/v2"

	"github.com/grafana/mcmot/internal/envelope"
	mcmotlog "github.com/grafana/mcmot/internal/log"
	"github.com/grafana/mcmot/internal/objstore"
)

const xlsxSheet = "unified"

// Stage is the terminal sink of the pipeline: it batches unified frame
// groups handed to it by the Stage Runtime, captions each via LLM, and
// appends the result to unified.log/unified.xlsx plus a console table.
type Stage struct {
	cfg     Config
	llm     LLM
	backend objstore.ReadWriter

	mu      sync.Mutex
	pending []envelope.Envelope
	rows    []ReportRow
}

// New constructs an Analytics stage.
func New(cfg Config, llm LLM, backend objstore.ReadWriter) *Stage {
	return &Stage{cfg: cfg, llm: llm, backend: backend}
}

// Callback implements the Stage Runtime's callback shape: it enqueues
// the unified envelope and returns no output (this stage is terminal,
// spec §4.I). Flushing happens on Run's LogWaitTime ticker rather than
// inline, so a caption call never blocks the Stage Runtime's consume loop.
func (s *Stage) Callback(_ context.Context, frames map[string]envelope.Envelope) (*envelope.Envelope, error) {
	for _, env := range frames {
		s.mu.Lock()
		s.pending = append(s.pending, env)
		s.mu.Unlock()
	}
	return nil, nil
}

// Run drives the LogWaitTime batching ticker until ctx is cancelled.
func (s *Stage) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.LogWaitTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			return ctx.Err()
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *Stage) flush(ctx context.Context) {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	for _, env := range batch {
		row, err := s.caption(ctx, env)
		if err != nil {
			level.Error(mcmotlog.Logger).Log("msg", "analytics: caption failed", "frame_number", env.FrameNumber, "err", err)
			continue
		}
		s.rows = append(s.rows, row)
	}

	if err := s.writeLog(ctx); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "analytics: write unified.log failed", "err", err)
	}
	if err := s.writeXLSX(ctx); err != nil {
		level.Error(mcmotlog.Logger).Log("msg", "analytics: write unified.xlsx failed", "err", err)
	}
	s.printConsoleTable()
}

func (s *Stage) caption(ctx context.Context, env envelope.Envelope) (ReportRow, error) {
	meta := map[string]any{
		"cameras":      env.Metadata.Cameras,
		"frame_number": env.FrameNumber,
	}
	cap, err := s.llm.Analyze(ctx, s.cfg.Prompt, env.ImageBytes, meta)
	if err != nil {
		return ReportRow{}, fmt.Errorf("analytics: LLM analyze: %w", err)
	}
	return ReportRow{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		SyncKey:    fmt.Sprintf("%d", env.FrameNumber),
		Cameras:    env.Metadata.Cameras,
		Caption:    cap.Text,
		Incomplete: env.Metadata.Incomplete,
	}, nil
}

func (s *Stage) writeLog(ctx context.Context) error {
	var buf []byte
	for _, r := range s.rows {
		buf = append(buf, []byte(r.logLine()+"\n")...)
	}
	return s.backend.Write(ctx, "unified.log", buf)
}

func (s *Stage) writeXLSX(ctx context.Context) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("analytics: rename default sheet: %w", err)
	}

	header := []string{"Timestamp", "SyncKey", "Cameras", "Caption", "Incomplete"}
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(xlsxSheet, cell, h)
	}
	for i, r := range s.rows {
		row := i + 2
		f.SetCellValue(xlsxSheet, cellAt(1, row), r.Timestamp)
		f.SetCellValue(xlsxSheet, cellAt(2, row), r.SyncKey)
		f.SetCellValue(xlsxSheet, cellAt(3, row), fmt.Sprintf("%v", r.Cameras))
		f.SetCellValue(xlsxSheet, cellAt(4, row), r.Caption)
		f.SetCellValue(xlsxSheet, cellAt(5, row), r.Incomplete)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("analytics: render xlsx: %w", err)
	}
	return s.backend.Write(ctx, "unified.xlsx", buf.Bytes())
}

func cellAt(col, row int) string {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	return cell
}

func (s *Stage) printConsoleTable() {
	var rows [][]string
	for _, r := range s.rows {
		rows = append(rows, []string{r.Timestamp, fmt.Sprintf("%v", r.Cameras), r.Caption, fmt.Sprintf("%t", r.Incomplete)})
	}

	w := tablewriter.NewWriter(os.Stdout)
	w.SetHeader([]string{"timestamp", "cameras", "caption", "incomplete"})
	w.AppendBulk(rows)
	w.Render()
}
