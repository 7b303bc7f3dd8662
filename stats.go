// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	_ "net/http/pprof"

	log "github.com/sirupsen/logrus"
)

type statscmd struct{}

func (cmd *statscmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	inputFilename := flags.String("i", "-", "input checkpoint `file`")
	outputFilename := flags.String("o", "-", "output `file`")
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

	ds, err := loadDatasetFile(*inputFilename, stdin)
	if err != nil {
		return 1
	}

	output, err := openOutput(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	defer output.Close()
	bufw := bufio.NewWriter(output)
	err = cmd.doStats(ds, bufw)
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
	return 0
}

func (cmd *statscmd) doStats(ds *Dataset, output io.Writer) error {
	var ret struct {
		Probes        int
		Samples       int
		TumorSamples  int
		NormalSamples int
		Patients      int
		MissingValues int
		MValues       bool
		MinValue      float64
		MaxValue      float64
		Fingerprint   string
	}
	ret.Probes = len(ds.Probes)
	ret.Samples = len(ds.Samples)
	ret.TumorSamples, ret.NormalSamples = ds.tumorNormalCounts()
	patients := map[string]bool{}
	for _, s := range ds.Samples {
		patients[s.Patient] = true
	}
	ret.Patients = len(patients)
	ret.MValues = ds.MValues
	ret.MinValue = math.Inf(1)
	ret.MaxValue = math.Inf(-1)
	for _, v := range ds.Values {
		if math.IsNaN(v) {
			ret.MissingValues++
			continue
		}
		if v < ret.MinValue {
			ret.MinValue = v
		}
		if v > ret.MaxValue {
			ret.MaxValue = v
		}
	}
	ret.Fingerprint = fmt.Sprintf("%x", ds.Fingerprint)
	return json.NewEncoder(output).Encode(ret)
}
