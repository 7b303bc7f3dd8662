// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/kshedden/gonpy"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	tumorColor  = color.RGBA{R: 0xd6, G: 0x2d, B: 0x20, A: 0xff}
	normalColor = color.RGBA{R: 0x45, G: 0x75, B: 0xb4, A: 0xff}
	dimColor    = color.RGBA{R: 0xa0, G: 0xa0, B: 0xa0, A: 0x80}
)

// plotcmd renders presentation plots. Output format follows the -o
// suffix (.png, .svg, .pdf).
type plotcmd struct{}

func (cmd *plotcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	kind := flags.String("kind", "", "plot kind: density, pca, volcano, or bars")
	inputFilename := flags.String("i", "-", "input `file` (checkpoint for density/pca, loci csv for volcano, counts csv for bars)")
	outputFilename := flags.String("o", "plot.png", "output image `file`")
	scoresFilename := flags.String("scores", "", "pca scores .npy `file` (kind=pca)")
	maxAdjP := flags.Float64("max-adj-p", 0.005, "volcano significance threshold")
	minBetaDiff := flags.Float64("min-beta-diff", 0.2, "volcano effect-size threshold")
	labelCol := flags.String("bar-label-col", "set", "label `column` (kind=bars)")
	valueCol := flags.String("bar-value-col", "pairs", "value `column` (kind=bars)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}

	p := plot.New()
	switch *kind {
	case "density":
		err = cmd.density(p, *inputFilename, stdin)
	case "pca":
		err = cmd.pcaScatter(p, *inputFilename, *scoresFilename, stdin)
	case "volcano":
		err = cmd.volcano(p, *inputFilename, stdin, *maxAdjP, *minBetaDiff)
	case "bars":
		err = cmd.bars(p, *inputFilename, stdin, *labelCol, *valueCol)
	default:
		fmt.Fprintf(stderr, "unrecognized -kind %q\n", *kind)
		return 2
	}
	if err != nil {
		return 1
	}
	err = p.Save(6*vg.Inch, 4*vg.Inch, *outputFilename)
	if err != nil {
		return 1
	}
	return 0
}

func (cmd *plotcmd) density(p *plot.Plot, path string, stdin io.Reader) error {
	ds, err := loadDatasetFile(path, stdin)
	if err != nil {
		return err
	}
	var tumor, normal plotter.Values
	for i := range ds.Probes {
		row := ds.Row(i)
		for j, s := range ds.Samples {
			v := row[j]
			if math.IsNaN(v) {
				continue
			}
			if s.Tumor {
				tumor = append(tumor, v)
			} else {
				normal = append(normal, v)
			}
		}
	}
	p.Title.Text = "Value distribution"
	p.X.Label.Text = "beta"
	if ds.MValues {
		p.X.Label.Text = "M"
	}
	p.Y.Label.Text = "density"
	for _, group := range []struct {
		name   string
		values plotter.Values
		color  color.RGBA
	}{
		{"tumor", tumor, tumorColor},
		{"normal", normal, normalColor},
	} {
		if len(group.values) == 0 {
			continue
		}
		h, err := plotter.NewHist(group.values, 50)
		if err != nil {
			return err
		}
		h.Normalize(1)
		h.FillColor = nil
		h.LineStyle.Color = group.color
		h.LineStyle.Width = vg.Points(1.5)
		p.Add(h)
		p.Legend.Add(group.name, h)
	}
	p.Legend.Top = true
	return nil
}

func (cmd *plotcmd) pcaScatter(p *plot.Plot, dsPath, scoresPath string, stdin io.Reader) error {
	if scoresPath == "" {
		return fmt.Errorf("kind=pca needs -scores argument")
	}
	ds, err := loadDatasetFile(dsPath, stdin)
	if err != nil {
		return err
	}
	f, err := os.Open(scoresPath)
	if err != nil {
		return err
	}
	defer f.Close()
	npr, err := gonpy.NewReader(bufio.NewReader(f))
	if err != nil {
		return err
	}
	scores, err := npr.GetFloat64()
	if err != nil {
		return err
	}
	if len(npr.Shape) != 2 || npr.Shape[0] != len(ds.Samples) || npr.Shape[1] < 2 {
		return fmt.Errorf("%s: scores shape %v, want %d × ≥2 (checkpoint sample order)", scoresPath, npr.Shape, len(ds.Samples))
	}
	k := npr.Shape[1]
	var tumor, normal plotter.XYs
	for i, s := range ds.Samples {
		xy := plotter.XY{X: scores[i*k], Y: scores[i*k+1]}
		if s.Tumor {
			tumor = append(tumor, xy)
		} else {
			normal = append(normal, xy)
		}
	}
	p.Title.Text = "PCA"
	p.X.Label.Text = "PC1"
	p.Y.Label.Text = "PC2"
	for _, group := range []struct {
		name  string
		xys   plotter.XYs
		color color.RGBA
	}{
		{"tumor", tumor, tumorColor},
		{"normal", normal, normalColor},
	} {
		s, err := plotter.NewScatter(group.xys)
		if err != nil {
			return err
		}
		s.GlyphStyle.Color = group.color
		s.GlyphStyle.Radius = vg.Points(2.5)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(group.name, s)
	}
	p.Legend.Top = true
	return nil
}

func (cmd *plotcmd) volcano(p *plot.Plot, path string, stdin io.Reader, maxAdjP, minBetaDiff float64) error {
	loci, err := readLociCSV(path, stdin)
	if err != nil {
		return err
	}
	var sig, rest plotter.XYs
	maxY := 0.0
	for _, l := range loci {
		if math.IsNaN(l.AdjP) || math.IsNaN(l.MeanBetaDiff) {
			continue
		}
		y := -math.Log10(math.Max(l.AdjP, 1e-300))
		if y > maxY {
			maxY = y
		}
		xy := plotter.XY{X: l.MeanBetaDiff, Y: y}
		if l.AdjP < maxAdjP && math.Abs(l.MeanBetaDiff) > minBetaDiff {
			sig = append(sig, xy)
		} else {
			rest = append(rest, xy)
		}
	}
	p.Title.Text = "Differential methylation"
	p.X.Label.Text = "mean beta difference (normal − tumor)"
	p.Y.Label.Text = "−log10 adjusted p"
	for _, group := range []struct {
		name  string
		xys   plotter.XYs
		color color.Color
	}{
		{"", rest, dimColor},
		{"significant", sig, tumorColor},
	} {
		if len(group.xys) == 0 {
			continue
		}
		s, err := plotter.NewScatter(group.xys)
		if err != nil {
			return err
		}
		s.GlyphStyle.Color = group.color
		s.GlyphStyle.Radius = vg.Points(1.5)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		if group.name != "" {
			p.Legend.Add(group.name, s)
		}
	}
	yThresh := -math.Log10(maxAdjP)
	for _, xys := range []plotter.XYs{
		{{X: -minBetaDiff, Y: 0}, {X: -minBetaDiff, Y: maxY}},
		{{X: minBetaDiff, Y: 0}, {X: minBetaDiff, Y: maxY}},
		{{X: -1, Y: yThresh}, {X: 1, Y: yThresh}},
	} {
		l, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		l.LineStyle.Color = color.Gray{Y: 0x60}
		l.LineStyle.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
		p.Add(l)
	}
	p.Legend.Top = true
	return nil
}

func (cmd *plotcmd) bars(p *plot.Plot, path string, stdin io.Reader, labelCol, valueCol string) error {
	f, err := openInput(path, stdin)
	if err != nil {
		return err
	}
	defer f.Close()
	rdr := csv.NewReader(bufio.NewReader(f))
	header, err := rdr.Read()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	li, vi := -1, -1
	for i, name := range header {
		if name == labelCol {
			li = i
		}
		if name == valueCol {
			vi = i
		}
	}
	if li < 0 || vi < 0 {
		return fmt.Errorf("%s: missing column %q or %q", path, labelCol, valueCol)
	}
	var labels []string
	var values plotter.Values
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		v, err := strconv.ParseFloat(rec[vi], 64)
		if err != nil {
			return fmt.Errorf("%s: bad %s %q: %w", path, valueCol, rec[vi], err)
		}
		labels = append(labels, rec[li])
		values = append(values, v)
	}
	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return err
	}
	bars.Color = normalColor
	p.Add(bars)
	p.NominalX(labels...)
	p.Title.Text = "Region annotation overlaps"
	p.Y.Label.Text = valueCol
	return nil
}
