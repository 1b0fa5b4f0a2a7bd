package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kiranshivaraju/framecheck/pkg/models"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, jobID string, view models.AggregateView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Job\t%s\n", jobID)
	fmt.Fprintf(tw, "Prediction\t%s\n", view.OverallPrediction)
	fmt.Fprintf(tw, "Fake frames\t%d / %d (%.1f%%)\n", view.FakeCount, view.TotalFrames, view.FakePercentage)
	fmt.Fprintf(tw, "Confidence level\t%s\n", view.ConfidenceLevel)
	fmt.Fprintf(tw, "Confidence\tavg %.1f%%  min %.1f%%  max %.1f%%\n",
		view.AverageConfidence*100, view.MinConfidence*100, view.MaxConfidence*100)
	if view.Video.DurationSeconds > 0 {
		fmt.Fprintf(tw, "Duration\t%s\n", view.Video.DurationLabel)
	}
	if view.Video.Width > 0 && view.Video.Height > 0 {
		fmt.Fprintf(tw, "Resolution\t%dx%d @ %.2f fps\n", view.Video.Width, view.Video.Height, view.Video.FPS)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(view.Frames.Shown) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FRAME\tTIME\tPREDICTION\tCONFIDENCE")
	for _, row := range view.Frames.Shown {
		fmt.Fprintf(tw, "%d\t%.2fs\t%s\t%.1f%%\n", row.Number, row.TimestampSeconds, row.Verdict, row.Confidence)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if view.Frames.OverflowCount > 0 {
		fmt.Fprintf(w, "... and %d more frames\n", view.Frames.OverflowCount)
	}
	return nil
}
