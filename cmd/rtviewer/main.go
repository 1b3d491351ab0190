package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rtviewer/internal/models"
	"rtviewer/pkg/caseio"
	"rtviewer/pkg/config"
	"rtviewer/pkg/session"
	"rtviewer/pkg/units"
	"rtviewer/pkg/visualization"
)

const (
	leftPane  session.PaneID = "left"
	rightPane session.PaneID = "right"
)

// loadResult carries a finished background load back to the main goroutine,
// which owns the session.
type loadResult struct {
	ticket session.Ticket
	dose   *models.DoseVolume
	set    *models.StructureSet
	err    error
}

func main() {
	// Parse command line arguments
	caseDir := flag.String("case", "", "Case directory containing manifest.json")
	configPath := flag.String("config", "", "YAML configuration file (defaults are used when empty)")
	initConfig := flag.String("init-config", "", "Write a default configuration file to this path and exit")
	sliceIndex := flag.Int("slice", -1, "Reference slice to render (default: middle slice)")
	allSlices := flag.Bool("all", false, "Render every slice instead of a single one")
	doseLeft := flag.String("dose-left", "", "Dose shown in the left pane (default: first dose in the manifest)")
	doseRight := flag.String("dose-right", "", "Dose shown in the right pane (default: same as left)")
	structs := flag.String("structs", "", "Structure set shown in both panes (default: first in the manifest)")
	unit := flag.String("unit", "", "Dose unit: Gy or percent (overrides config)")
	prescription := flag.Float64("prescription", 0, "Prescription dose in Gy (overrides config)")
	zoom := flag.Float64("zoom", 1, "Zoom applied to both panes")
	width := flag.Int("width", 0, "Output width in pixels (default: reference columns times zoom)")
	height := flag.Int("height", 0, "Output height in pixels (default: reference rows times zoom)")
	outputDir := flag.String("out", "snapshots", "Directory to save rendered panes")
	flag.Parse()

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *initConfig)
		return
	}

	// Validate inputs
	if *caseDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *unit != "" {
		cfg.Units.Unit = *unit
	}
	if *prescription > 0 {
		cfg.Units.Prescription = *prescription
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	fmt.Println("================================")
	fmt.Println("RT DOSE / STRUCTURE OVERLAY SNAPSHOT")
	fmt.Println("================================")

	startTime := time.Now()
	c, err := caseio.Open(*caseDir)
	if err != nil {
		log.Fatalf("Failed to open case: %v", err)
	}
	ref, err := c.LoadReference()
	if err != nil {
		log.Fatalf("Failed to load reference volume: %v", err)
	}
	fmt.Printf("Case %s: %dx%d, %d slices\n", c.ID, ref.Grid.Cols, ref.Grid.Rows, ref.Grid.Slices)

	sess, err := session.New(cfg, ref, []session.PaneID{leftPane, rightPane}, session.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	doses := map[session.PaneID]string{leftPane: *doseLeft, rightPane: *doseRight}
	if doses[leftPane] == "" {
		if ids := c.DoseIDs(); len(ids) > 0 {
			doses[leftPane] = ids[0]
		}
	}
	if doses[rightPane] == "" {
		doses[rightPane] = doses[leftPane]
	}
	structID := *structs
	if structID == "" {
		if ids := c.StructureSetIDs(); len(ids) > 0 {
			structID = ids[0]
		}
	}

	if err := loadLayers(sess, c, doses, structID); err != nil {
		log.Fatalf("Failed to load case layers: %v", err)
	}
	fmt.Printf("Loaded layers in %.2f seconds\n", time.Since(startTime).Seconds())

	if *sliceIndex >= 0 {
		sess.SetActiveSlice(*sliceIndex)
	}
	if *zoom != 1 {
		t := session.DefaultTransform()
		t.Scale = *zoom
		if err := sess.UpdateTransform(leftPane, t); err != nil {
			log.Fatalf("Failed to apply zoom: %v", err)
		}
	}

	w, h := *width, *height
	if w <= 0 {
		w = int(float64(ref.Grid.Cols) * *zoom)
	}
	if h <= 0 {
		h = int(float64(ref.Grid.Rows) * *zoom)
	}

	viewer := visualization.NewViewer(ref, sess.Compositor())
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	for _, pane := range sess.Panes() {
		if *allSlices {
			dir := filepath.Join(*outputDir, string(pane))
			fmt.Printf("Saving %s pane slices to: %s\n", pane, dir)
			if err := viewer.SaveSliceSequence(sess, pane, dir, cfg.Output.Format, w, h); err != nil {
				log.Printf("Warning: Failed to save %s pane slices: %v", pane, err)
			}
			continue
		}
		filename := filepath.Join(*outputDir, fmt.Sprintf("%s_slice_%03d.%s", pane, sess.Navigation().SliceIndex, extension(cfg.Output.Format)))
		if err := viewer.SaveFrame(sess, pane, filename, w, h); err != nil {
			log.Printf("Warning: Failed to save %s pane: %v", pane, err)
			continue
		}
		fmt.Printf("Saved %s pane to: %s\n", pane, filename)
	}

	printStats(sess)
}

// loadLayers reads doses and the structure set in the background and
// installs each result through its load ticket. Every started load is
// collected before it returns; the first failure is reported.
func loadLayers(sess *session.Session, c *caseio.Case, doses map[session.PaneID]string, structID string) error {
	// one slot per possible load so no worker ever blocks on send
	results := make(chan loadResult, 2*len(sess.Panes()))
	var wg sync.WaitGroup
	var firstErr error

	for _, pane := range sess.Panes() {
		id := doses[pane]
		if id != "" {
			ticket, err := sess.BeginLoad(pane, session.LoadDose, id)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if err == nil {
				wg.Add(1)
				go func() {
					defer wg.Done()
					dose, err := c.LoadDose(id)
					results <- loadResult{ticket: ticket, dose: dose, err: err}
				}()
			}
		}
		if structID != "" {
			ticket, err := sess.BeginLoad(pane, session.LoadStructures, structID)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if err == nil {
				wg.Add(1)
				go func() {
					defer wg.Done()
					set, err := c.LoadStructures(structID)
					results <- loadResult{ticket: ticket, set: set, err: err}
				}()
			}
		}
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		err := r.err
		if err == nil {
			if r.ticket.Kind == session.LoadDose {
				err = sess.CompleteDose(r.ticket, r.dose)
			} else {
				err = sess.CompleteStructures(r.ticket, r.set)
			}
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s %q for %s pane: %w", r.ticket.Kind, r.ticket.ID, r.ticket.Pane, err)
		}
	}
	return firstErr
}

func printStats(sess *session.Session) {
	nav := sess.Navigation()
	fmt.Printf("\nDose Statistics (slice %d, display unit %s):\n", nav.SliceIndex, nav.Unit)
	fmt.Printf("=======================================\n")
	fmt.Printf("Display window: %.2f - %.2f %s, opacity %.2f\n", nav.Window.Min, nav.Window.Max, nav.Unit, nav.Opacity)
	for _, pane := range sess.Panes() {
		vp, err := sess.Viewport(pane)
		if err != nil {
			continue
		}
		st, ok := sess.Stats(pane)
		if !ok {
			fmt.Printf("- %s: no dose on this slice\n", pane)
			continue
		}
		fmt.Printf("- %s (%s): min %.2f Gy, max %.2f Gy, mean %.2f Gy, P95 %.2f Gy", pane, vp.DoseID, st.Min, st.Max, st.Mean, st.P95)
		if nav.Unit == units.Percent {
			fmt.Printf(" (max %.1f%% of prescription)", units.ToPercent(st.Max, nav.Prescription))
		}
		fmt.Println()
	}
}

func extension(format string) string {
	if format == "jpeg" || format == "jpg" {
		return "jpg"
	}
	return "png"
}
