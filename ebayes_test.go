// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/check.v1"
)

type ebayesSuite struct{}

var _ = check.Suite(&ebayesSuite{})

func (s *ebayesSuite) TestTrigamma(c *check.C) {
	// ψ'(1) = π²/6, ψ'(0.5) = π²/2
	c.Check(fmt.Sprintf("%.10f", trigamma(1)), check.Equals, fmt.Sprintf("%.10f", math.Pi*math.Pi/6))
	c.Check(fmt.Sprintf("%.10f", trigamma(0.5)), check.Equals, fmt.Sprintf("%.10f", math.Pi*math.Pi/2))
	c.Check(fmt.Sprintf("%.8f", trigamma(10)), check.Equals, "0.10516634")
}

func (s *ebayesSuite) TestTrigammaInverse(c *check.C) {
	for _, y := range []float64{0.01, 0.1, 1, 2.5, 10, 1000} {
		x := trigammaInverse(y)
		if math.Abs(trigamma(x)-y)/y > 1e-6 {
			c.Fatalf("trigammaInverse(%v) = %v, trigamma back = %v", y, x, trigamma(x))
		}
	}
}

func (s *ebayesSuite) TestBHAdjust(c *check.C) {
	adj := bhAdjust([]float64{0.005, 0.011, 0.02, 0.04})
	c.Check(fmt.Sprintf("%.6f", adj[0]), check.Equals, "0.020000")
	c.Check(fmt.Sprintf("%.6f", adj[1]), check.Equals, "0.022000")
	c.Check(fmt.Sprintf("%.6f", adj[2]), check.Equals, "0.026667")
	c.Check(fmt.Sprintf("%.6f", adj[3]), check.Equals, "0.040000")

	// NaN entries stay NaN and don't count as tests
	adj = bhAdjust([]float64{0.01, math.NaN(), 0.04})
	c.Check(fmt.Sprintf("%.6f", adj[0]), check.Equals, "0.020000")
	c.Check(math.IsNaN(adj[1]), check.Equals, true)
	c.Check(fmt.Sprintf("%.6f", adj[2]), check.Equals, "0.040000")

	// adjusted values never exceed 1
	for _, q := range bhAdjust([]float64{0.9, 0.95, 0.99}) {
		c.Check(q <= 1, check.Equals, true)
	}
}

func (s *ebayesSuite) TestBHMonotone(c *check.C) {
	rnd := rand.New(rand.NewSource(1))
	p := make([]float64, 500)
	for i := range p {
		p[i] = rnd.Float64()
	}
	adj := bhAdjust(p)
	for i := range p {
		c.Check(adj[i] >= p[i], check.Equals, true)
	}
}

func (s *ebayesSuite) TestSqueezeVar(c *check.C) {
	df := 10.0
	chi2 := distuv.ChiSquared{K: df, Src: rand.NewSource(42)}
	s2 := make([]float64, 2000)
	for i := range s2 {
		// chi-square_df scaled sample variances around 1
		s2[i] = chi2.Rand() / df
	}
	d0, s02, post := squeezeVar(s2, df)
	c.Check(len(post), check.Equals, len(s2))
	c.Check(s02 > 0.8 && s02 < 1.25, check.Equals, true, check.Commentf("s02=%v", s02))
	for i := range post {
		c.Check(post[i] > 0, check.Equals, true)
		if math.IsInf(d0, 1) {
			c.Check(post[i], check.Equals, s02)
		} else {
			// posterior lies between observed and prior
			lo, hi := math.Min(s2[i], s02), math.Max(s2[i], s02)
			c.Check(post[i] >= lo && post[i] <= hi, check.Equals, true,
				check.Commentf("s2=%v s02=%v post=%v", s2[i], s02, post[i]))
		}
	}
}

func (s *ebayesSuite) TestSqueezeVarIdentical(c *check.C) {
	// no spread beyond chi-square expectation → infinite prior df
	s2 := make([]float64, 100)
	for i := range s2 {
		s2[i] = 2.0
	}
	d0, s02, post := squeezeVar(s2, 8)
	c.Check(math.IsInf(d0, 1), check.Equals, true)
	for _, v := range post {
		c.Check(v, check.Equals, s02)
	}
}
