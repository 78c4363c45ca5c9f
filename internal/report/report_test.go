package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"comicsqueeze/internal/orchestrator"
)

func sampleStats() map[string]orchestrator.ProcessingStats {
	return map[string]orchestrator.ProcessingStats{
		"/comics/zeta.cbz": {
			OriginalSize:    10 << 20,
			CompressedSize:  4 << 20,
			ImagesProcessed: 20,
			ImagesSkipped:   2,
			OutputPath:      "/comics/zeta optimized_webp_q90.cbz",
			Duration:        90 * time.Second,
		},
		"/comics/alpha.cbz": {
			OriginalSize:    10 << 20,
			CompressedSize:  9<<20 + 800<<10, // ~3% savings
			ImagesProcessed: 5,
			ImagesSkipped:   15,
			OutputPath:      "/comics/alpha optimized_webp_q90.cbz",
			Duration:        30 * time.Second,
		},
	}
}

func TestBuildSummary(t *testing.T) {
	failures := map[string]error{
		"/comics/broken.cbr": errors.New("rar and zip extraction both failed"),
	}
	sum := BuildSummary(sampleStats(), failures)

	if len(sum.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(sum.Rows))
	}
	if sum.Rows[0].Name != "alpha.cbz" || sum.Rows[1].Name != "zeta.cbz" {
		t.Fatalf("rows not sorted by name: %s, %s", sum.Rows[0].Name, sum.Rows[1].Name)
	}
	if sum.TotalOriginal != 20<<20 {
		t.Fatalf("total original: got %d", sum.TotalOriginal)
	}
	if sum.LowSavingsCount != 1 {
		t.Fatalf("expected 1 low-savings conversion, got %d", sum.LowSavingsCount)
	}
	if sum.Rows[1].SavingsPercent < 59 || sum.Rows[1].SavingsPercent > 61 {
		t.Fatalf("zeta savings out of range: %f", sum.Rows[1].SavingsPercent)
	}
	if len(sum.Failures) != 1 || sum.Failures[0].Name != "broken.cbr" {
		t.Fatalf("unexpected failures: %+v", sum.Failures)
	}
}

func TestSavingsPercentDegenerateInputs(t *testing.T) {
	if got := savingsPercent(0, 100); got != 0 {
		t.Fatalf("zero original must yield 0%%, got %f", got)
	}
	if got := savingsPercent(100, 100); got != 0 {
		t.Fatalf("no shrink must yield 0%%, got %f", got)
	}
	if got := savingsPercent(200, 100); got != 50 {
		t.Fatalf("halving must yield 50%%, got %f", got)
	}
}

func TestRenderSummary(t *testing.T) {
	sum := BuildSummary(sampleStats(), map[string]error{
		"/comics/broken.cbr": errors.New("extract failed"),
	})
	var buf bytes.Buffer
	sum.Render(&buf)
	out := buf.String()

	for _, want := range []string{
		"alpha.cbz",
		"zeta.cbz",
		"Total:",
		"1 conversion(s) saved less than 5%.",
		"1 file(s) failed:",
		"broken.cbr",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderEmptySummary(t *testing.T) {
	var buf bytes.Buffer
	BuildSummary(nil, nil).Render(&buf)
	if !strings.Contains(buf.String(), "Nothing converted.") {
		t.Fatalf("empty summary output: %s", buf.String())
	}
}

func TestWriteParquet(t *testing.T) {
	sum := BuildSummary(sampleStats(), nil)
	path := filepath.Join(t.TempDir(), "stats.parquet")
	if err := WriteParquet(path, sum); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(data) < 12 {
		t.Fatalf("parquet file suspiciously small: %d bytes", len(data))
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
		t.Fatal("output is not framed by the parquet magic")
	}
}

func TestWriteParquetBadPath(t *testing.T) {
	sum := BuildSummary(sampleStats(), nil)
	err := WriteParquet(filepath.Join(t.TempDir(), "missing", "stats.parquet"), sum)
	if err == nil {
		t.Fatal("expected an error for an unwritable path")
	}
}

func TestRenderPlain(t *testing.T) {
	events := make(chan orchestrator.Event, 8)
	events <- orchestrator.Event{Name: "good.cbz", Stage: orchestrator.StageExtracting}
	events <- orchestrator.Event{Name: "good.cbz", Stage: orchestrator.StageComplete, Position: 100}
	events <- orchestrator.Event{Name: "bad.cbz", Stage: orchestrator.StageFailed, Err: errors.New("boom")}
	close(events)

	var buf bytes.Buffer
	RenderPlain(&buf, 2, events)

	if !strings.Contains(buf.String(), "failed bad.cbz: boom") {
		t.Fatalf("plain output missing failure line:\n%s", buf.String())
	}
}
