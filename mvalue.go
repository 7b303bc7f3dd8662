// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// betaEpsilon keeps beta values away from 0 and 1 so the log-odds
// transform stays finite.
const betaEpsilon = 1e-6

// beta2m converts a beta value in [0,1] to an M-value,
// log2(beta/(1-beta)). NaN passes through.
func beta2m(beta float64) float64 {
	if math.IsNaN(beta) {
		return beta
	}
	if beta < betaEpsilon {
		beta = betaEpsilon
	} else if beta > 1-betaEpsilon {
		beta = 1 - betaEpsilon
	}
	return math.Log2(beta / (1 - beta))
}

// m2beta is the inverse of beta2m (logistic in base 2).
func m2beta(m float64) float64 {
	if math.IsNaN(m) {
		return m
	}
	e := math.Exp2(m)
	return e / (e + 1)
}

// mvaluecmd rewrites a beta-value checkpoint as M-values.
type mvaluecmd struct{}

func (cmd *mvaluecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "input beta checkpoint `file`")
	outputFilename := flags.String("o", "-", "output M-value checkpoint `file`")
	npyFilename := flags.String("npy-out", "", "also write the M-value matrix to a numpy `file`")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}

	ds, err := loadDatasetFile(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	if ds.MValues {
		err = fmt.Errorf("input checkpoint already contains M-values")
		return 1
	}

	out := &Dataset{
		Probes:  ds.Probes,
		Samples: ds.Samples,
		Values:  make([]float64, len(ds.Values)),
		MValues: true,
	}
	for i, v := range ds.Values {
		out.Values[i] = beta2m(v)
	}
	log.Infof("transformed %d probes × %d samples to M-values", len(out.Probes), len(out.Samples))

	if *npyFilename != "" {
		err = writeMatrixNpy(out, *npyFilename, stdout)
		if err != nil {
			return 1
		}
	}

	err = saveDatasetFile(out, *outputFilename, stdout)
	if err != nil {
		return 1
	}
	return 0
}

func writeMatrixNpy(ds *Dataset, path string, stdout io.Writer) error {
	output, err := openOutput(path, stdout)
	if err != nil {
		return err
	}
	defer output.Close()
	bufw := bufio.NewWriter(output)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	npw.Shape = []int{len(ds.Probes), len(ds.Samples)}
	err = npw.WriteFloat64(ds.Values)
	if err != nil {
		return err
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return output.Close()
}
