// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat"
)

// Empirical Bayes variance moderation: per-probe residual variances
// are shrunk toward a common prior estimated by fitting a scaled
// inverse chi-square distribution to the observed variances (moment
// matching on the log scale). Shrinking stabilizes the denominator of
// the t statistic when per-group sample counts are small.

// squeezeVar returns the prior df d0, prior variance s02, and the
// posterior (moderated) variance for each input variance, all sharing
// the same residual df. d0 is +Inf when the observed variances show no
// excess spread over the chi-square expectation; posterior variances
// then collapse to s02.
func squeezeVar(s2 []float64, df float64) (d0, s02 float64, post []float64) {
	e := make([]float64, len(s2))
	for i, v := range s2 {
		if v < 1e-300 {
			v = 1e-300
		}
		e[i] = math.Log(v) - mathext.Digamma(df/2) + math.Log(df/2)
	}
	emean := stat.Mean(e, nil)
	evar := stat.Variance(e, nil) - trigamma(df/2)
	if evar > 0 {
		d0 = 2 * trigammaInverse(evar)
		s02 = math.Exp(emean + mathext.Digamma(d0/2) - math.Log(d0/2))
	} else {
		d0 = math.Inf(1)
		s02 = math.Exp(emean)
	}
	post = make([]float64, len(s2))
	for i, v := range s2 {
		if math.IsInf(d0, 1) {
			post[i] = s02
		} else {
			post[i] = (d0*s02 + df*v) / (d0 + df)
		}
	}
	return d0, s02, post
}

// trigamma is ψ'(x), computed by recurrence into the asymptotic
// regime.
func trigamma(x float64) float64 {
	if math.IsNaN(x) || x <= 0 {
		return math.NaN()
	}
	var acc float64
	for x < 6 {
		acc += 1 / (x * x)
		x++
	}
	inv := 1 / x
	inv2 := inv * inv
	// 1/x + 1/2x² + 1/6x³ − 1/30x⁵ + 1/42x⁷ − 1/30x⁹
	return acc + inv*(1+inv*(0.5+inv*(1.0/6-inv2*(1.0/30-inv2*(1.0/42-inv2/30)))))
}

// tetragamma is ψ''(x), the derivative of trigamma.
func tetragamma(x float64) float64 {
	if math.IsNaN(x) || x <= 0 {
		return math.NaN()
	}
	var acc float64
	for x < 6 {
		acc -= 2 / (x * x * x)
		x++
	}
	inv := 1 / x
	inv2 := inv * inv
	// −1/x² − 1/x³ − 1/2x⁴ + 1/6x⁶ − 1/6x⁸
	return acc - inv2*(1+inv*(1+inv*(0.5-inv2*(1.0/6-inv2/6))))
}

// trigammaInverse solves trigamma(x) = y for x by Newton iteration.
func trigammaInverse(y float64) float64 {
	switch {
	case math.IsNaN(y):
		return math.NaN()
	case y > 1e7:
		return 1 / math.Sqrt(y)
	case y < 1e-6:
		return 1 / y
	}
	x := 0.5 + 1/y
	for iter := 0; iter < 50; iter++ {
		tri := trigamma(x)
		dif := tri * (1 - tri/y) / tetragamma(x)
		x += dif
		if -dif/x < 1e-8 {
			break
		}
	}
	return x
}

// bhAdjust returns Benjamini-Hochberg adjusted p-values in the input
// order. NaN inputs yield NaN outputs and do not count toward the
// number of tests.
func bhAdjust(p []float64) []float64 {
	idx := make([]int, 0, len(p))
	for i, v := range p {
		if !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })
	n := float64(len(idx))
	adj := make([]float64, len(p))
	for i := range adj {
		adj[i] = math.NaN()
	}
	min := 1.0
	for k := len(idx) - 1; k >= 0; k-- {
		q := p[idx[k]] * n / float64(k+1)
		if q < min {
			min = q
		}
		adj[idx[k]] = min
	}
	return adj
}
