// pose-report renders an HTML summary of a predictions database: instance
// counts per frame, the instance score distribution and per-node detection
// rates.
//
// Usage:
//
//	pose-report -db labels.json.predictions.db -out report.html
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/wildtrace/posekit/internal/posedb"
)

var (
	dbFile  = flag.String("db", "", "Path to the predictions database (required)")
	outFile = flag.String("out", "pose-report.html", "Output HTML file")
	bins    = flag.Int("bins", 20, "Number of histogram bins for the score distribution")
)

func instanceCountChart(db *posedb.DB) (*charts.Bar, error) {
	frameInds, counts, err := db.FrameInstanceCounts()
	if err != nil {
		return nil, err
	}

	x := make([]string, len(frameInds))
	y := make([]opts.BarData, len(counts))
	for i := range frameInds {
		x[i] = fmt.Sprintf("%d", frameInds[i])
		y[i] = opts.BarData{Value: counts[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Instances per frame", Subtitle: fmt.Sprintf("%d frames", len(frameInds))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Instances"}),
	)
	bar.SetXAxis(x).AddSeries("instances", y)
	return bar, nil
}

func scoreHistogramChart(db *posedb.DB, nbins int) (*charts.Bar, error) {
	scores, err := db.InstanceScores()
	if err != nil {
		return nil, err
	}
	if nbins < 1 {
		nbins = 1
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range scores {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if len(scores) == 0 || hi <= lo {
		lo, hi = 0, 1
	}

	counts := make([]int, nbins)
	width := (hi - lo) / float64(nbins)
	for _, s := range scores {
		b := int((s - lo) / width)
		if b >= nbins {
			b = nbins - 1
		}
		counts[b]++
	}

	x := make([]string, nbins)
	y := make([]opts.BarData, nbins)
	for i := 0; i < nbins; i++ {
		x[i] = fmt.Sprintf("%.2f", lo+(float64(i)+0.5)*width)
		y[i] = opts.BarData{Value: counts[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Instance score distribution", Subtitle: fmt.Sprintf("%d instances", len(scores))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Score"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Count"}),
	)
	bar.SetXAxis(x).AddSeries("scores", y)
	return bar, nil
}

func detectionRateChart(db *posedb.DB) (*charts.Bar, error) {
	names, rates, err := db.NodeDetectionRates()
	if err != nil {
		return nil, err
	}

	// Worst-detected nodes first so problems are visible at a glance.
	order := make([]int, len(names))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rates[order[a]] < rates[order[b]] })

	x := make([]string, len(names))
	y := make([]opts.BarData, len(names))
	for i, j := range order {
		x[i] = names[j]
		y[i] = opts.BarData{Value: math.Round(rates[j]*1000) / 10}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Node detection rate", Subtitle: "% of instances with the node visible"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "%", Max: 100}),
	)
	bar.SetXAxis(x).AddSeries("detection rate", y,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)
	return bar, nil
}

func run() error {
	if *dbFile == "" {
		return fmt.Errorf("-db is required")
	}

	db, err := posedb.Open(*dbFile)
	if err != nil {
		return err
	}
	defer db.Close()

	countChart, err := instanceCountChart(db)
	if err != nil {
		return fmt.Errorf("instance counts: %w", err)
	}
	scoreChart, err := scoreHistogramChart(db, *bins)
	if err != nil {
		return fmt.Errorf("score histogram: %w", err)
	}
	rateChart, err := detectionRateChart(db)
	if err != nil {
		return fmt.Errorf("detection rates: %w", err)
	}

	page := components.NewPage()
	page.PageTitle = "Pose Predictions Report"
	page.AddCharts(countChart, scoreChart, rateChart)

	f, err := os.Create(*outFile)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	log.Printf("wrote report to %s", *outFile)
	return nil
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("pose-report: %v", err)
	}
}
