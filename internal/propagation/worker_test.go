package propagation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/star/satmap/internal/tle"
)

func TestWorkerPoolPropagateAll(t *testing.T) {
	iss, err := tle.Decode(tle.Lines{Line1: issLine1, Line2: issLine2})
	if err != nil {
		t.Fatal(err)
	}
	decaying, err := tle.Decode(tle.Lines{Line1: decayingLine1, Line2: issLine2})
	if err != nil {
		t.Fatal(err)
	}
	starlink, err := tle.Decode(tle.Lines{Line1: starlinkLine1, Line2: starlinkLine2})
	if err != nil {
		t.Fatal(err)
	}
	iss.Name = "ISS"
	decaying.Name = "ISS (high drag)"

	entries := []tle.Entry{
		{Elements: iss, Source: tle.SourceFile},
		{Elements: starlink, Source: tle.SourceFile},
		{Elements: decaying, Source: tle.SourceFile},
	}

	at := issEpoch.AddDate(0, 0, 3)
	wantOK, wantFailed := 0, 0
	for _, e := range entries {
		prop, err := NewFromElements(e.Elements)
		if err == nil {
			_, err = prop.Propagate(at)
		}
		if err != nil {
			wantFailed++
		} else {
			wantOK++
		}
	}
	if wantOK < 2 {
		t.Fatalf("reference propagation: only %d sets usable", wantOK)
	}

	pool := NewWorkerPool(2, testLogger())
	fixes, ok, failed := pool.PropagateAll(context.Background(), entries, at)

	if ok != wantOK || failed != wantFailed {
		t.Fatalf("success=%d errors=%d, want %d and %d", ok, failed, wantOK, wantFailed)
	}
	if len(fixes) != ok {
		t.Fatalf("got %d fixes, want %d", len(fixes), ok)
	}
	for _, f := range fixes {
		if f.Name == decaying.Name {
			continue
		}
		if f.Point.LonDeg <= -180 || f.Point.LonDeg > 180 || math.Abs(f.Point.LatDeg) > 60 {
			t.Errorf("fix %d out of range: %+v", f.CatalogID, f.Point)
		}
		if f.SpeedKmS < 7 || f.SpeedKmS > 8 {
			t.Errorf("fix %d speed = %v", f.CatalogID, f.SpeedKmS)
		}
	}
}

func TestWorkerPoolCancellation(t *testing.T) {
	entries := tle.Bundled()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		NewWorkerPool(4, testLogger()).PropagateAll(ctx, entries, time.Now())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("PropagateAll did not return after cancellation")
	}
}
