// track-plot renders track centroid trajectories from a predictions
// database as a PNG, one coloured line per track.
//
// Usage:
//
//	track-plot -db labels.json.predictions.db -out tracks.png
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/wildtrace/posekit/internal/posedb"
)

var (
	dbFile   = flag.String("db", "", "Path to the predictions database (required)")
	outFile  = flag.String("out", "tracks.png", "Output PNG file")
	minLen   = flag.Int("min-len", 2, "Skip tracks with fewer than this many points")
	plotSize = flag.Float64("size", 10, "Plot side length in inches")
)

// trackColors assigns distinct hues to tracks by index.
func trackColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
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

	trajectories, err := db.TrackTrajectories()
	if err != nil {
		return err
	}

	kept := trajectories[:0]
	for _, tt := range trajectories {
		if len(tt.Frames) >= *minLen {
			kept = append(kept, tt)
		}
	}
	if len(kept) == 0 {
		return fmt.Errorf("no tracks with at least %d points in %s", *minLen, *dbFile)
	}

	p := plot.New()
	p.Title.Text = "Track trajectories"
	p.X.Label.Text = "X (px)"
	p.Y.Label.Text = "Y (px)"
	// Image coordinates grow downward.
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	colors := trackColors(len(kept))
	for i, tt := range kept {
		pts := make(plotter.XYs, len(tt.X))
		for j := range tt.X {
			pts[j].X = tt.X[j]
			pts[j].Y = tt.Y[j]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("track %s: %w", tt.Name, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(tt.Name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	size := vg.Length(*plotSize) * vg.Inch
	if err := p.Save(size, size, *outFile); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}

	log.Printf("wrote %d tracks to %s", len(kept), *outFile)
	return nil
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("track-plot: %v", err)
	}
}
