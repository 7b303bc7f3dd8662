// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
)

// region is a run of nearby differentially methylated loci on one
// chromosome. MeanDiff keeps the source pipeline's sign convention:
// NEGATIVE mean beta difference = hypermethylated in tumor, POSITIVE =
// hypomethylated. Downstream interpretation depends on this; do not
// flip it.
type region struct {
	Chrom    string
	Start    int
	End      int
	NProbes  int
	MeanDiff float64
	Z        float64
	P        float64
	Q        float64
}

func (r region) direction() string {
	if r.MeanDiff < 0 {
		return "hyper"
	}
	return "hypo"
}

// dmrcmd aggregates significant loci into regions. Positions come from
// the manifest given here (the target genome build), not from the loci
// table: every probe is rejoined by ID, and a probe missing from the
// manifest is a fatal data error, never silently dropped.
type dmrcmd struct {
	maxGap    int
	minProbes int
}

func (cmd *dmrcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "significant loci csv `file`")
	outputFilename := flags.String("o", "-", "region csv `file`")
	manifestFilename := flags.String("manifest", "", "probe manifest tsv `file` for the target genome build (required)")
	flags.IntVar(&cmd.maxGap, "max-gap", 1000, "maximum `bp` between adjacent probes in one region")
	flags.IntVar(&cmd.minProbes, "min-probes", 2, "minimum probes per region")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if *manifestFilename == "" {
		fmt.Fprintln(stderr, "cannot aggregate regions without -manifest argument")
		return 2
	}

	loci, err := readLociCSV(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	manifest, err := loadManifest(*manifestFilename, stdin)
	if err != nil {
		return 1
	}

	regions, err := cmd.aggregate(loci, manifest)
	if err != nil {
		return 1
	}
	log.Infof("%d regions from %d loci", len(regions), len(loci))
	if len(regions) == 0 {
		log.Warn("empty result: no regions")
	}

	err = writeRegions(regions, *outputFilename, stdout)
	if err != nil {
		return 1
	}
	return 0
}

// aggregate remaps each locus through the manifest, then clusters
// per-chromosome position runs separated by more than maxGap.
func (cmd *dmrcmd) aggregate(loci []locusStat, manifest map[string]manifestEntry) ([]region, error) {
	type placed struct {
		locusStat
		chrom string
		pos   int
	}
	byChrom := map[string][]placed{}
	for _, l := range loci {
		ent, ok := manifest[l.Probe]
		if !ok {
			return nil, dataIntegrityError{fmt.Sprintf("probe %q not in manifest: cannot remap coordinates", l.Probe)}
		}
		byChrom[ent.Chrom] = append(byChrom[ent.Chrom], placed{l, ent.Chrom, ent.Pos})
	}

	chroms := make([]string, 0, len(byChrom))
	for chrom := range byChrom {
		chroms = append(chroms, chrom)
	}
	sort.Strings(chroms)

	norm := distuv.Normal{Mu: 0, Sigma: 1}
	var regions []region
	for _, chrom := range chroms {
		probes := byChrom[chrom]
		sort.Slice(probes, func(i, j int) bool { return probes[i].pos < probes[j].pos })
		for start := 0; start < len(probes); {
			end := start + 1
			for end < len(probes) && probes[end].pos-probes[end-1].pos <= cmd.maxGap {
				end++
			}
			if end-start >= cmd.minProbes {
				r := region{
					Chrom:   chrom,
					Start:   probes[start].pos,
					End:     probes[end-1].pos,
					NProbes: end - start,
				}
				var zsum float64
				for _, pr := range probes[start:end] {
					r.MeanDiff += pr.MeanBetaDiff
					p := pr.P
					if p < 1e-300 {
						p = 1e-300
					} else if p > 1 {
						p = 1
					}
					// lower-tail quantile keeps precision for tiny p
					z := -norm.Quantile(p / 2)
					if pr.MeanMDiff < 0 {
						z = -z
					}
					zsum += z
				}
				r.MeanDiff /= float64(r.NProbes)
				r.Z = zsum / math.Sqrt(float64(r.NProbes))
				r.P = 2 * norm.Survival(math.Abs(r.Z))
				regions = append(regions, r)
			}
			start = end
		}
	}

	p := make([]float64, len(regions))
	for i, r := range regions {
		p[i] = r.P
	}
	for i, q := range bhAdjust(p) {
		regions[i].Q = q
	}
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Q != regions[j].Q {
			return regions[i].Q < regions[j].Q
		}
		if regions[i].Chrom != regions[j].Chrom {
			return regions[i].Chrom < regions[j].Chrom
		}
		return regions[i].Start < regions[j].Start
	})
	return regions, nil
}

func writeRegions(regions []region, path string, stdout io.Writer) error {
	output, err := openOutput(path, stdout)
	if err != nil {
		return err
	}
	defer output.Close()
	bufw := bufio.NewWriter(output)
	fmt.Fprint(bufw, "chrom,start,end,n_probes,mean_diff,direction,z,p,q\n")
	for _, r := range regions {
		fmt.Fprintf(bufw, "%s,%d,%d,%d,%g,%s,%g,%g,%g\n", r.Chrom, r.Start, r.End, r.NProbes, r.MeanDiff, r.direction(), r.Z, r.P, r.Q)
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return output.Close()
}

// readLociCSV reads a loci table written by diff-loci (or equivalent:
// the probe, mean_m_diff, mean_beta_diff, and p columns are required).
func readLociCSV(path string, stdin io.Reader) ([]locusStat, error) {
	f, err := openInput(path, stdin)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rdr := csv.NewReader(bufio.NewReader(f))
	header, err := rdr.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, name := range []string{"probe", "mean_m_diff", "mean_beta_diff", "p"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, name)
		}
	}
	var loci []locusStat
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		l := locusStat{Probe: rec[col["probe"]]}
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"mean_m_diff", &l.MeanMDiff},
			{"mean_beta_diff", &l.MeanBetaDiff},
			{"p", &l.P},
		} {
			*f.dst, err = strconv.ParseFloat(rec[col[f.name]], 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %s for probe %s: %w", path, f.name, l.Probe, err)
			}
		}
		if qi, ok := col["adj_p"]; ok {
			l.AdjP, _ = strconv.ParseFloat(rec[qi], 64)
		}
		loci = append(loci, l)
	}
	return loci, nil
}
