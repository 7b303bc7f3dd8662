// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"fmt"
	"io"
	"log"
	"math"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var glmConfig = &glm.Config{
	Family:         glm.NewFamily(glm.GaussianFamily),
	FitMethod:      "IRLS",
	ConcurrentIRLS: 1000,
	Log:            log.New(io.Discard, "", 0),
}

func normalize(a []float64) {
	mean, std := stat.MeanStdDev(a, nil)
	for i, x := range a {
		a[i] = (x - mean) / std
	}
}

// Linear model with covariate adjustment.
//
// glmPvalueFunc builds the fixed part of the design (group indicator,
// intercept, normalized covariate series in sample order) once, and
// returns a function computing a likelihood-ratio p-value for the
// group effect on a single probe's M-values.
func glmPvalueFunc(samples []SampleInfo, covariates [][]float64) func(mvals []float64) float64 {
	covNames := make([]string, 0, len(covariates))
	fixed := make([][]statmodel.Dtype, 0, len(covariates))
	for k, series := range covariates {
		cov := append([]statmodel.Dtype(nil), series...)
		normalize(cov)
		fixed = append(fixed, cov)
		covNames = append(covNames, fmt.Sprintf("cov%d", k))
	}

	group := make([]statmodel.Dtype, len(samples))
	constants := make([]statmodel.Dtype, len(samples))
	for i, s := range samples {
		if s.Tumor {
			group[i] = 1
		}
		constants[i] = 1
	}

	return func(mvals []float64) (p float64) {
		defer func() {
			if recover() != nil {
				// typically "matrix singular or near-singular with condition number +Inf"
				p = math.NaN()
			}
		}()

		outcome := append([]statmodel.Dtype(nil), mvals...)

		nullData := append([][]statmodel.Dtype{outcome, constants}, fixed...)
		nullNames := append([]string{"outcome", "constants"}, covNames...)
		nullModel, err := glm.NewGLM(statmodel.NewDataset(nullData, nullNames), "outcome", nullNames[1:], glmConfig)
		if err != nil {
			return math.NaN()
		}
		logNull := nullModel.Fit().LogLike()

		fullData := append([][]statmodel.Dtype{outcome, group, constants}, fixed...)
		fullNames := append([]string{"outcome", "group", "constants"}, covNames...)
		fullModel, err := glm.NewGLM(statmodel.NewDataset(fullData, fullNames), "outcome", fullNames[1:], glmConfig)
		if err != nil {
			return math.NaN()
		}
		logFull := fullModel.Fit().LogLike()

		dist := distuv.ChiSquared{K: 1}
		return dist.Survival(-2 * (logNull - logFull))
	}
}
