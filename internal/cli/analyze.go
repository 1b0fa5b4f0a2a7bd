package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kiranshivaraju/framecheck/internal/aggregate"
	"github.com/kiranshivaraju/framecheck/internal/controller"
	"github.com/kiranshivaraju/framecheck/internal/validate"
	"github.com/kiranshivaraju/framecheck/pkg/models"
	"github.com/spf13/cobra"
)

func (a *app) analyzeCommand() *cobra.Command {
	var (
		interval time.Duration
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <video file>",
		Short: "Analyze a video file",
		Long:  `Upload a video, follow the job until it finishes and print the result summary`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = a.cfg.Detector.PollInterval
			}
			return a.analyze(cmd, args[0], interval, asJSON)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Status poll interval (defaults to DETECTOR_POLL_INTERVAL)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the aggregate view as JSON")
	return cmd
}

func (a *app) analyze(cmd *cobra.Command, path string, interval time.Duration, asJSON bool) error {
	ctx := cmd.Context()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat video: %w", err)
	}

	v := validate.New(a.cfg.Upload.MaxBytes, a.cfg.Upload.AllowedExtensions)
	if err := v.Check(filepath.Base(path), info.Size()); err != nil {
		return err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("checksum video: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind video: %w", err)
	}

	ctrl := controller.New(a.client(),
		controller.WithPollInterval(interval),
		controller.WithLogger(slog.Default()),
	)
	defer ctrl.Close()

	snapshots, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	upload := models.Upload{
		Filename: filepath.Base(path),
		Size:     info.Size(),
		Checksum: hex.EncodeToString(h.Sum(nil)),
		Body:     f,
	}
	if err := ctrl.Submit(upload); err != nil {
		return err
	}

	final, err := a.follow(ctx, snapshots, asJSON)
	if err != nil {
		return err
	}
	if err := controller.JobError(final); err != nil {
		return err
	}

	results, err := ctrl.FetchResults(ctx, final.JobID)
	if err != nil {
		return err
	}
	view := aggregate.Build(results)
	if asJSON {
		return printJSON(a.out, view)
	}
	return printSummary(a.out, final.JobID, view)
}

// follow prints each state or progress change until the job finishes.
// Progress lines are suppressed in JSON mode so stdout stays parseable.
func (a *app) follow(ctx context.Context, snapshots <-chan models.Snapshot, quiet bool) (models.Snapshot, error) {
	var last models.Snapshot
	for {
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("analysis interrupted: %w", ctx.Err())
		case s, ok := <-snapshots:
			if !ok {
				return last, controller.ErrClosed
			}
			if s.State == models.JobStateIdle {
				continue
			}
			if !quiet && (s.State != last.State || s.Progress != last.Progress) {
				fmt.Fprintf(a.out, "%-10s %3d%%\n", s.State, s.Progress)
			}
			last = s
			if s.State.IsTerminal() {
				return s, nil
			}
		}
	}
}
