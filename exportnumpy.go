// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"bufio"
	"flag"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// exportNumpy writes a checkpoint's value matrix (probes × samples) as
// a numpy array, with optional row/column label sidecar CSVs for
// downstream analysis outside this toolkit.
type exportNumpy struct{}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "input checkpoint `file`")
	outputFilename := flags.String("o", "-", "output .npy `file`")
	labelsFilename := flags.String("labels-out", "", "also write probe and sample labels to a csv `file`")
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
	log.Infof("exporting %d probes × %d samples", len(ds.Probes), len(ds.Samples))

	err = writeMatrixNpy(ds, *outputFilename, stdout)
	if err != nil {
		return 1
	}

	if *labelsFilename != "" {
		var f io.WriteCloser
		f, err = openOutput(*labelsFilename, stdout)
		if err != nil {
			return 1
		}
		defer f.Close()
		bufw := bufio.NewWriter(f)
		fmt.Fprint(bufw, "kind,index,label\n")
		for i, p := range ds.Probes {
			fmt.Fprintf(bufw, "probe,%d,%s\n", i, p)
		}
		for i, s := range ds.Samples {
			fmt.Fprintf(bufw, "sample,%d,%s\n", i, s.ID)
		}
		err = bufw.Flush()
		if err != nil {
			return 1
		}
		err = f.Close()
		if err != nil {
			return 1
		}
	}
	return 0
}
