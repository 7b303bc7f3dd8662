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
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// importer reads a probe × sample beta-value matrix and the matching
// clinical metadata, keeps only patients with a tumor/normal pair, and
// writes a Dataset checkpoint with columns reordered to clinical row
// order.
type importer struct {
	betaFile     string
	clinicalFile string
	outputFile   string
}

func (cmd *importer) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	flags.StringVar(&cmd.betaFile, "i", "-", "beta matrix tsv `file` (probes × samples)")
	flags.StringVar(&cmd.clinicalFile, "clinical", "", "clinical metadata tsv `file`")
	flags.StringVar(&cmd.outputFile, "o", "-", "output checkpoint `file`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if cmd.clinicalFile == "" {
		fmt.Fprintln(stderr, "cannot import without -clinical argument")
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return 2
	}
	log.SetLevel(lvl)

	samples, err := cmd.loadClinical(stdin)
	if err != nil {
		return 1
	}
	log.Infof("clinical metadata: %d samples", len(samples))

	ds, err := cmd.loadBeta(stdin, samples)
	if err != nil {
		return 1
	}
	tumor, normal := ds.tumorNormalCounts()
	log.Infof("paired dataset: %d probes × %d samples (%d tumor, %d normal)", len(ds.Probes), len(ds.Samples), tumor, normal)

	err = saveDatasetFile(ds, cmd.outputFile, stdout)
	if err != nil {
		return 1
	}
	return 0
}

func (cmd *importer) loadClinical(stdin io.Reader) ([]SampleInfo, error) {
	f, err := openInput(cmd.clinicalFile, stdin)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<24)
	if !scanner.Scan() {
		return nil, fmt.Errorf("%s: empty clinical file", cmd.clinicalFile)
	}
	idCol, patientCol, typeCol := -1, -1, -1
	for i, name := range strings.Split(scanner.Text(), "\t") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "sample", "sample_id", "sampleid", "barcode":
			idCol = i
		case "patient", "patient_id", "case", "case_id":
			patientCol = i
		case "sample_type", "sampletype", "type":
			typeCol = i
		}
	}
	if idCol < 0 || patientCol < 0 || typeCol < 0 {
		return nil, fmt.Errorf("%s: clinical header must name sample, patient, and sample_type columns", cmd.clinicalFile)
	}

	var samples []SampleInfo
	seen := map[string]bool{}
	line := 1
	for scanner.Scan() {
		line++
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) <= idCol || len(fields) <= patientCol || len(fields) <= typeCol {
			return nil, fmt.Errorf("%s line %d: too few columns", cmd.clinicalFile, line)
		}
		id := fields[idCol]
		if seen[id] {
			return nil, dataIntegrityError{fmt.Sprintf("%s line %d: duplicate sample ID %q", cmd.clinicalFile, line, id)}
		}
		seen[id] = true
		stype := strings.ToLower(fields[typeCol])
		var tumor bool
		switch {
		case strings.Contains(stype, "tumor"):
			tumor = true
		case strings.Contains(stype, "normal"):
			tumor = false
		default:
			log.Warnf("%s line %d: sample %q has unrecognized sample_type %q, skipping", cmd.clinicalFile, line, id, fields[typeCol])
			continue
		}
		samples = append(samples, SampleInfo{ID: id, Patient: fields[patientCol], Tumor: tumor})
	}
	return samples, scanner.Err()
}

func (cmd *importer) loadBeta(stdin io.Reader, clinical []SampleInfo) (*Dataset, error) {
	f, err := openInput(cmd.betaFile, stdin)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<26)
	if !scanner.Scan() {
		return nil, fmt.Errorf("%s: empty beta matrix", cmd.betaFile)
	}
	header := strings.Split(scanner.Text(), "\t")
	if len(header) < 2 {
		return nil, fmt.Errorf("%s: beta matrix header has no sample columns", cmd.betaFile)
	}
	betaCol := map[string]int{}
	for i, id := range header[1:] {
		betaCol[id] = i
	}

	// Keep clinical row order, but only samples that appear in the
	// beta matrix and belong to a patient with a tumor/normal pair.
	tumorPatients := map[string]bool{}
	normalPatients := map[string]bool{}
	for _, s := range clinical {
		if _, ok := betaCol[s.ID]; !ok {
			log.Warnf("sample %q in clinical metadata but not in beta matrix, dropping", s.ID)
			continue
		}
		if s.Tumor {
			tumorPatients[s.Patient] = true
		} else {
			normalPatients[s.Patient] = true
		}
	}
	var keep []SampleInfo
	var srcCol []int
	for _, s := range clinical {
		col, ok := betaCol[s.ID]
		if !ok || !tumorPatients[s.Patient] || !normalPatients[s.Patient] {
			continue
		}
		keep = append(keep, s)
		srcCol = append(srcCol, col)
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("0 tumor/normal pairs after matching clinical metadata to beta matrix")
	}
	dropped := len(clinical) - len(keep)
	if dropped > 0 {
		log.Infof("dropped %d unpaired or unmatched samples", dropped)
	}

	ds := &Dataset{Samples: keep}
	line := 1
	for scanner.Scan() {
		line++
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != len(header) {
			return nil, fmt.Errorf("%s line %d: %d columns, want %d", cmd.betaFile, line, len(fields), len(header))
		}
		ds.Probes = append(ds.Probes, fields[0])
		for _, col := range srcCol {
			v, err := parseBeta(fields[col+1])
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %s", cmd.betaFile, line, err)
			}
			ds.Values = append(ds.Values, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(ds.Probes) == 0 {
		return nil, fmt.Errorf("%s: no probe rows", cmd.betaFile)
	}
	return ds, nil
}

func parseBeta(s string) (float64, error) {
	switch s {
	case "", "NA", "na", "NaN", "nan", "null":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("beta value %g outside [0,1]", v)
	}
	return v, nil
}
