// Command satdiag prints the bundled catalog, the current position of every
// satellite in it and a 30-minute ground track for one of them. It never
// touches the network.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/star/satmap/internal/groundtrack"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/tle"
	"github.com/star/satmap/internal/tracking"
)

func main() {
	id := flag.Int("id", 25544, "NORAD catalog id for the ground track")
	at := flag.String("t", "", "instant as RFC 3339 (default: now)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	now := time.Now().UTC().Truncate(time.Second)
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Println("ERROR parsing -t:", err)
			os.Exit(1)
		}
		now = t.UTC()
	}

	catalog := tle.NewCatalog(tle.Bundled()...)
	fmt.Printf("Loaded %d bundled element sets\n", catalog.Len())
	for _, e := range catalog.List() {
		el := e.Elements
		fmt.Printf("  %-6d %-16s epoch %s  age %6.1f d  period %6.1f min\n",
			el.CatalogID, el.Name, el.Epoch.Format(time.RFC3339),
			el.Age(now).Hours()/24, el.Period().Minutes())
	}

	fmt.Printf("\nPositions at %s\n", now.Format(time.RFC3339))
	pool := propagation.NewWorkerPool(runtime.NumCPU(), logger)
	fixes, ok, failed := pool.PropagateAll(context.Background(), catalog.List(), now)
	slices.SortFunc(fixes, func(a, b propagation.Fix) int { return a.CatalogID - b.CatalogID })
	for _, f := range fixes {
		fmt.Printf("  %-6d %-16s lat %7.2f  lon %8.2f  alt %7.1f km  %5.2f km/s\n",
			f.CatalogID, f.Name, f.Point.LatDeg, f.Point.LonDeg, f.Point.AltKm, f.SpeedKmS)
	}
	fmt.Printf("  %d ok, %d failed\n", ok, failed)

	entry, found := catalog.Get(*id)
	if !found {
		fmt.Printf("\nNORAD %d is not in the bundled catalog\n", *id)
		os.Exit(1)
	}
	prop, err := propagation.NewFromElements(entry.Elements)
	if err != nil {
		fmt.Println("ERROR initialising propagator:", err)
		os.Exit(1)
	}

	fmt.Printf("\nGround track for %s, next 30 minutes\n", entry.Elements.Name)
	seg, err := groundtrack.Collect(prop, groundtrack.Future, now, 30*time.Minute, time.Minute)
	if err != nil {
		fmt.Println("ERROR sampling ground track:", err)
		os.Exit(1)
	}
	for _, p := range seg.Points {
		fmt.Printf("  %s  lat %7.2f  lon %8.2f  alt %7.1f km\n",
			p.Time.Format("15:04:05"), p.LatDeg, p.LonDeg, p.AltKm)
	}
	if seg.Truncated {
		fmt.Printf("  truncated after %d points by propagation failure\n", seg.Len())
	}
	fmt.Printf("  %d runs after antimeridian split\n", len(seg.Runs()))

	// Exercise the session offline: it resolves from the bundled catalog.
	session := tracking.New(tracking.Config{FetchDelay: 0}, catalog, logger)
	session.Select(*id, "")
	session.ResolvePending(context.Background())
	session.Tick(now)
	ts, _ := session.Get(*id)
	fmt.Printf("\nSession: %s is %s (elements from %s)", ts.Name, ts.State, ts.ElementSource)
	if ts.Position != nil {
		fmt.Printf(", marker at %.2f, %.2f", ts.Position.Point.LatDeg, ts.Position.Point.LonDeg)
	}
	fmt.Printf(", segments %d/%d points\n", ts.Past.Len(), ts.Future.Len())
}
