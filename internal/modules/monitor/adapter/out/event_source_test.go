package out_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	out "appguard/internal/modules/monitor/adapter/out"
	"appguard/internal/modules/monitor/domain"
	"appguard/internal/platform/logging"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type probeStep struct {
	appID string
	err   error
}

type scriptedProbe struct {
	steps []probeStep
}

func (p *scriptedProbe) Foreground(context.Context) (string, error) {
	step := p.steps[0]
	if len(p.steps) > 1 {
		p.steps = p.steps[1:]
	}
	return step.appID, step.err
}

func TestProbeSourceEmitsTransitions(t *testing.T) {
	t.Parallel()
	clk := clockwork.NewFakeClockAt(base)
	probe := &scriptedProbe{steps: []probeStep{{appID: "firefox"}, {appID: "firefox"}, {appID: "code"}, {appID: ""}}}
	src := out.NewProbeEventSource(probe, clk, time.Second, logging.Discard())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		src.Sample(ctx)
		clk.Advance(time.Second)
	}

	events, err := src.QueryEvents(ctx, base, clk.Now())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []domain.Event{
		{AppID: "firefox", Kind: domain.ForegroundEnter, At: base},
		{AppID: "firefox", Kind: domain.ForegroundExit, At: base.Add(2 * time.Second)},
		{AppID: "code", Kind: domain.ForegroundEnter, At: base.Add(2 * time.Second)},
		{AppID: "code", Kind: domain.ForegroundExit, At: base.Add(3 * time.Second)},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), events)
	}
	for i := range want {
		if events[i].AppID != want[i].AppID || events[i].Kind != want[i].Kind || !events[i].At.Equal(want[i].At) {
			t.Fatalf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}

	later, err := src.QueryEvents(ctx, base.Add(2*time.Second), clk.Now())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(later) != 3 {
		t.Fatalf("expected windowed events, got %+v", later)
	}
	pruned, err := src.QueryEvents(ctx, base, clk.Now())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(pruned) != 3 {
		t.Fatalf("events before an earlier window start must be forgotten, got %+v", pruned)
	}
}

func TestProbeSourceReportsProbeErrors(t *testing.T) {
	t.Parallel()
	clk := clockwork.NewFakeClockAt(base)
	probe := &scriptedProbe{steps: []probeStep{
		{err: fmt.Errorf("%w: DISPLAY is not set", domain.ErrSourceUnavailable)},
		{err: errors.New("xdotool crashed")},
		{appID: "firefox"},
	}}
	src := out.NewProbeEventSource(probe, clk, time.Second, logging.Discard())
	ctx := context.Background()

	src.Sample(ctx)
	if _, err := src.QueryEvents(ctx, base, clk.Now()); !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	src.Sample(ctx)
	if _, err := src.QueryEvents(ctx, base, clk.Now()); !errors.Is(err, domain.ErrSourceTransient) {
		t.Fatalf("expected transient, got %v", err)
	}
	if got := src.CurrentForeground(); got != "" {
		t.Fatalf("failing probe must not report a foreground app, got %q", got)
	}
	src.Sample(ctx)
	if got := src.CurrentForeground(); got != "firefox" {
		t.Fatalf("current foreground = %q, want firefox", got)
	}
	clk.Advance(time.Second)
	events, err := src.QueryEvents(ctx, base, clk.Now())
	if err != nil || len(events) != 1 {
		t.Fatalf("expected recovery with one event, got %v %v", events, err)
	}
}

func TestFileSourceReadsWindow(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	src := out.NewFileEventSource(path)
	ctx := context.Background()

	events, err := src.QueryEvents(ctx, base, base.Add(time.Hour))
	if err != nil || len(events) != 0 {
		t.Fatalf("missing file must mean no events, got %v %v", events, err)
	}

	for _, ev := range []domain.Event{
		{AppID: "firefox", Kind: domain.ForegroundExit, At: base.Add(10 * time.Minute)},
		{AppID: "firefox", Kind: domain.ForegroundEnter, At: base.Add(time.Minute)},
		{AppID: "code", Kind: domain.ForegroundEnter, At: base.Add(2 * time.Hour)},
	} {
		if err := out.AppendEvent(path, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString("not json\n{\"app_id\":\"x\",\"kind\":\"sideways\",\"at\":\"2026-03-02T09:05:00Z\"}\n")
	_ = f.Close()

	events, err = src.QueryEvents(ctx, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two events in window, got %+v", events)
	}
	if events[0].Kind != domain.ForegroundEnter || events[1].Kind != domain.ForegroundExit {
		t.Fatalf("events must be time ordered: %+v", events)
	}
}

func TestFileSourceReadsOnlyAppendedLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	src := out.NewFileEventSource(path)
	ctx := context.Background()

	if err := out.AppendEvent(path, domain.Event{AppID: "firefox", Kind: domain.ForegroundEnter, At: base.Add(time.Second)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// A feeder caught mid-write leaves a line without its newline.
	_, _ = f.WriteString(`{"app_id":"firefox","kind":"exit",`)

	events, err := src.QueryEvents(ctx, base, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 1 || events[0].Kind != domain.ForegroundEnter {
		t.Fatalf("expected only the complete line, got %+v", events)
	}

	_, _ = f.WriteString(`"at":"2026-03-02T09:00:30Z"}` + "\n")
	_ = f.Close()
	events, err = src.QueryEvents(ctx, base.Add(time.Minute), base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events before from must not come back, got %+v", events)
	}
	events, err = src.QueryEvents(ctx, base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil || len(events) != 0 {
		t.Fatalf("pruned events must stay pruned, got %+v %v", events, err)
	}

	fresh := out.NewFileEventSource(path)
	events, err = fresh.QueryEvents(ctx, base, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 || events[1].Kind != domain.ForegroundExit || !events[1].At.Equal(base.Add(30*time.Second)) {
		t.Fatalf("completed line must parse, got %+v", events)
	}
}

func TestFileSourceRereadsTruncatedFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	src := out.NewFileEventSource(path)
	ctx := context.Background()

	for _, ev := range []domain.Event{
		{AppID: "firefox", Kind: domain.ForegroundEnter, At: base.Add(time.Second)},
		{AppID: "firefox", Kind: domain.ForegroundExit, At: base.Add(2 * time.Second)},
	} {
		if err := out.AppendEvent(path, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if events, err := src.QueryEvents(ctx, base, base.Add(time.Minute)); err != nil || len(events) != 2 {
		t.Fatalf("expected two events, got %+v %v", events, err)
	}

	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if err := out.AppendEvent(path, domain.Event{AppID: "code", Kind: domain.ForegroundEnter, At: base.Add(time.Minute)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	events, err := src.QueryEvents(ctx, base.Add(time.Minute), base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 1 || events[0].AppID != "code" {
		t.Fatalf("rotated file must be read from the start, got %+v", events)
	}
}

func TestFileSourceUnreadableIsUnavailable(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, nil, 0o000); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := out.NewFileEventSource(path).QueryEvents(context.Background(), base, base.Add(time.Hour))
	if !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
