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
	"net/http"
	_ "net/http/pprof"

	"github.com/james-bowman/nlp"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// pcacmd computes principal components of the M-value matrix. Samples
// are the data points (matrix columns); the output is a samples ×
// components numpy array, in checkpoint sample order.
type pcacmd struct{}

func (cmd *pcacmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	inputFilename := flags.String("i", "-", "input M-value checkpoint `file`")
	outputFilename := flags.String("o", "-", "output .npy `file`")
	components := flags.Int("components", 4, "number of components")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	log.Print("reading")
	ds, err := loadDatasetFile(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	for _, v := range ds.Values {
		if math.IsNaN(v) {
			err = fmt.Errorf("input contains missing values: run filter first")
			return 1
		}
	}
	if *components > len(ds.Samples) {
		err = fmt.Errorf("cannot compute %d components from %d samples", *components, len(ds.Samples))
		return 1
	}

	mtx := mat.NewDense(len(ds.Probes), len(ds.Samples), ds.Values)

	log.Print("fitting")
	transformer := nlp.NewPCA(*components)
	transformer.Fit(mtx)
	log.Print("transforming")
	scores, err := transformer.Transform(mtx)
	if err != nil {
		return 1
	}
	scores = scores.T()

	rows, cols := scores.Dims()
	out := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[i*cols+j] = scores.At(i, j)
		}
	}

	output, err := openOutput(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	defer output.Close()
	bufw := bufio.NewWriter(output)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return 1
	}
	npw.Shape = []int{rows, cols}
	log.Printf("writing numpy: %d rows, %d cols", rows, cols)
	err = npw.WriteFloat64(out)
	if err != nil {
		return 1
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	log.Print("done")
	return 0
}
