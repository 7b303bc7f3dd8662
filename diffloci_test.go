// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"math"
	"math/rand"

	"gopkg.in/check.v1"
)

type diffLociSuite struct{}

var _ = check.Suite(&diffLociSuite{})

// syntheticBetas builds a paired tumor/normal beta dataset with nNull
// background probes around 0.5 and nSig probes strongly hypermethylated
// in tumor (tumor ≈ 0.85, normal ≈ 0.35). Signal probes come first.
func syntheticBetas(nSig, nNull, pairs int, seed int64) *Dataset {
	rnd := rand.New(rand.NewSource(seed))
	ds := &Dataset{}
	for i := 0; i < pairs; i++ {
		patient := string(rune('A' + i))
		ds.Samples = append(ds.Samples,
			SampleInfo{ID: patient + "-T", Patient: patient, Tumor: true},
			SampleInfo{ID: patient + "-N", Patient: patient, Tumor: false},
		)
	}
	jitter := func(scale float64) float64 { return (rnd.Float64() - 0.5) * scale }
	for i := 0; i < nSig+nNull; i++ {
		probe := "cg" + string(rune('a'+i/26)) + string(rune('a'+i%26))
		ds.Probes = append(ds.Probes, probe)
		for _, samp := range ds.Samples {
			var beta float64
			switch {
			case i < nSig && samp.Tumor:
				beta = 0.85 + jitter(0.04)
			case i < nSig:
				beta = 0.35 + jitter(0.04)
			default:
				beta = 0.5 + jitter(0.1)
			}
			ds.Values = append(ds.Values, beta)
		}
	}
	return ds
}

func toMValues(betas *Dataset) *Dataset {
	mds := &Dataset{
		Probes:  betas.Probes,
		Samples: betas.Samples,
		Values:  make([]float64, len(betas.Values)),
		MValues: true,
	}
	for i, v := range betas.Values {
		mds.Values[i] = beta2m(v)
	}
	return mds
}

func (s *diffLociSuite) TestFitFindsSignal(c *check.C) {
	betas := syntheticBetas(10, 200, 8, 1)
	mds := toMValues(betas)
	loci, err := (&diffLoci{}).fit(mds, betas.Values, nil)
	c.Assert(err, check.IsNil)
	c.Assert(loci, check.HasLen, 210)

	kept := 0
	for i, l := range loci {
		if !math.IsNaN(l.AdjP) && l.AdjP < 0.005 && math.Abs(l.MeanBetaDiff) > 0.2 {
			kept++
			c.Check(i < 10, check.Equals, true, check.Commentf("null probe %s flagged: %+v", l.Probe, l))
			// tumor-hypermethylated probes have negative differences
			c.Check(l.MeanBetaDiff < 0, check.Equals, true)
			c.Check(l.MeanMDiff < 0, check.Equals, true)
		}
	}
	c.Check(kept, check.Equals, 10)
}

func (s *diffLociSuite) TestThresholdMonotone(c *check.C) {
	betas := syntheticBetas(20, 300, 6, 2)
	mds := toMValues(betas)
	loci, err := (&diffLoci{}).fit(mds, betas.Values, nil)
	c.Assert(err, check.IsNil)

	count := func(maxAdjP, minBetaDiff float64) int {
		n := 0
		for _, l := range loci {
			if !math.IsNaN(l.AdjP) && l.AdjP < maxAdjP && math.Abs(l.MeanBetaDiff) > minBetaDiff {
				n++
			}
		}
		return n
	}
	for _, minDiff := range []float64{0, 0.1, 0.2, 0.4} {
		prev := count(1, minDiff)
		for _, maxP := range []float64{0.5, 0.05, 0.005, 0.0005} {
			n := count(maxP, minDiff)
			c.Check(n <= prev, check.Equals, true, check.Commentf("maxP=%v minDiff=%v: %d > %d", maxP, minDiff, n, prev))
			prev = n
		}
	}
	for _, maxP := range []float64{1, 0.05, 0.005} {
		prev := count(maxP, 0)
		for _, minDiff := range []float64{0.1, 0.2, 0.3, 0.5} {
			n := count(maxP, minDiff)
			c.Check(n <= prev, check.Equals, true, check.Commentf("maxP=%v minDiff=%v: %d > %d", maxP, minDiff, n, prev))
			prev = n
		}
	}
}

func (s *diffLociSuite) TestTooFewSamples(c *check.C) {
	betas := syntheticBetas(1, 5, 1, 3)
	mds := toMValues(betas)
	_, err := (&diffLoci{}).fit(mds, betas.Values, nil)
	c.Check(err, check.ErrorMatches, "need at least 2 samples per group.*")
}

func (s *diffLociSuite) TestCovariateAdjusted(c *check.C) {
	betas := syntheticBetas(5, 100, 8, 4)
	mds := toMValues(betas)
	// one uninformative covariate
	cov := make([]float64, len(mds.Samples))
	rnd := rand.New(rand.NewSource(5))
	for i := range cov {
		cov[i] = rnd.NormFloat64()
	}
	loci, err := (&diffLoci{}).fit(mds, betas.Values, [][]float64{cov})
	c.Assert(err, check.IsNil)
	for i := 0; i < 5; i++ {
		c.Check(loci[i].P < 1e-6, check.Equals, true, check.Commentf("probe %s p=%v", loci[i].Probe, loci[i].P))
	}
}
