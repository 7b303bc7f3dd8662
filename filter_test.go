package methdiff

import (
	"math"

	"gopkg.in/check.v1"
)

type filterSuite struct{}

var _ = check.Suite(&filterSuite{})

func testSamples() []SampleInfo {
	return []SampleInfo{
		{ID: "s1", Patient: "p1", Tumor: true},
		{ID: "s2", Patient: "p1", Tumor: false},
		{ID: "s3", Patient: "p2", Tumor: true},
		{ID: "s4", Patient: "p2", Tumor: false},
	}
}

func (s *filterSuite) TestDropMissing(c *check.C) {
	nan := math.NaN()
	ds := &Dataset{
		Probes:  []string{"cg01", "cg02", "cg03"},
		Samples: testSamples(),
		Values: []float64{
			0.1, 0.2, 0.3, 0.4,
			nan, nan, nan, nan,
			0.5, 0.6, 0.7, 0.8,
		},
	}
	manifest := map[string]manifestEntry{
		"cg01": {Chrom: "chr1", Pos: 100},
		"cg02": {Chrom: "chr1", Pos: 200},
		"cg03": {Chrom: "chr1", Pos: 300},
	}
	f := &probeFilter{}
	out := f.Apply(ds, manifest)
	c.Check(out.Probes, check.DeepEquals, []string{"cg01", "cg03"})
	c.Check(len(out.Values), check.Equals, 8)
	c.Check(out.Values[4:8], check.DeepEquals, []float64{0.5, 0.6, 0.7, 0.8})
}

func (s *filterSuite) TestDropSexChromAndSNP(c *check.C) {
	ds := &Dataset{
		Probes:  []string{"cg01", "cg02", "cg03", "cg04", "cg05"},
		Samples: testSamples(),
		Values: []float64{
			0.1, 0.2, 0.3, 0.4,
			0.1, 0.2, 0.3, 0.4,
			0.1, 0.2, 0.3, 0.4,
			0.1, 0.2, 0.3, 0.4,
			0.1, 0.2, 0.3, 0.4,
		},
	}
	manifest := map[string]manifestEntry{
		"cg01": {Chrom: "chr2", Pos: 100},
		"cg02": {Chrom: "chrX", Pos: 200},
		"cg03": {Chrom: "Y", Pos: 300},
		"cg04": {Chrom: "chr2", Pos: 400, MaskSNP: true},
		// cg05 not in manifest: unplaced, dropped
	}
	f := &probeFilter{}
	out := f.Apply(ds, manifest)
	c.Check(out.Probes, check.DeepEquals, []string{"cg01"})

	f = &probeFilter{KeepXY: true}
	out = f.Apply(ds, manifest)
	c.Check(out.Probes, check.DeepEquals, []string{"cg01", "cg02", "cg03"})

	f = &probeFilter{KeepSNPs: true}
	out = f.Apply(ds, manifest)
	c.Check(out.Probes, check.DeepEquals, []string{"cg01", "cg04"})
}

func (s *filterSuite) TestOrderPreserved(c *check.C) {
	probes := []string{"cg09", "cg02", "cg07", "cg01"}
	ds := &Dataset{
		Probes:  probes,
		Samples: testSamples(),
		Values:  make([]float64, 16),
	}
	manifest := map[string]manifestEntry{}
	for i, p := range probes {
		manifest[p] = manifestEntry{Chrom: "chr3", Pos: 1000 * (i + 1)}
	}
	out := (&probeFilter{}).Apply(ds, manifest)
	c.Check(out.Probes, check.DeepEquals, probes)
}

func (s *filterSuite) TestEmptyResult(c *check.C) {
	ds := &Dataset{
		Probes:  []string{"cg01"},
		Samples: testSamples(),
		Values:  []float64{0.1, 0.2, 0.3, math.NaN()},
	}
	out := (&probeFilter{}).Apply(ds, map[string]manifestEntry{"cg01": {Chrom: "chr1", Pos: 1}})
	c.Check(len(out.Probes), check.Equals, 0)
	c.Check(len(out.Values), check.Equals, 0)
}
