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
	"os"
	"runtime"
	"sort"
	"strconv"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// locusStat is one probe's differential methylation result.
type locusStat struct {
	Probe        string
	Chrom        string
	Pos          int
	HasPos       bool
	MeanMDiff    float64
	MeanBetaDiff float64
	T            float64
	P            float64
	AdjP         float64
}

// diffLoci fits a per-probe two-group linear model on M-values with
// empirical Bayes variance moderation, adjusts p-values with
// Benjamini-Hochberg, and keeps loci passing both the significance and
// the effect-size threshold. Effect sizes are mean differences with
// the normal − tumor contrast: a NEGATIVE difference means
// hypermethylated in tumor. Downstream consumers rely on this sign
// convention; do not flip it. The beta-scale difference drives the
// effect-size threshold.
type diffLoci struct {
	maxAdjP     float64
	minBetaDiff float64
}

func (cmd *diffLoci) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	betaFilename := flags.String("beta", "", "matching beta checkpoint `file` (default: derive betas from M-values)")
	manifestFilename := flags.String("manifest", "", "probe manifest tsv `file` for chrom/pos columns (optional)")
	outputFilename := flags.String("o", "-", "significant loci csv `file`")
	allFilename := flags.String("all", "", "also write the unfiltered loci table to a csv `file`")
	covariatesFilename := flags.String("covariates", "", "samples × components .npy `file` (e.g. pca output) for covariate adjustment")
	components := flags.Int("components", 2, "number of covariate columns to use")
	flags.Float64Var(&cmd.maxAdjP, "max-adj-p", 0.005, "maximum BH-adjusted p-value")
	flags.Float64Var(&cmd.minBetaDiff, "min-beta-diff", 0.2, "minimum absolute mean beta difference")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
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

	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return 2
	}
	log.SetLevel(lvl)

	log.Print("reading")
	mds, err := loadDatasetFile(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	if !mds.MValues {
		err = fmt.Errorf("input checkpoint contains beta values: run mvalues first")
		return 1
	}
	for _, v := range mds.Values {
		if math.IsNaN(v) {
			err = fmt.Errorf("input contains missing values: run filter first")
			return 1
		}
	}

	betas, err := cmd.loadBetas(mds, *betaFilename, stdin)
	if err != nil {
		return 1
	}

	var manifest map[string]manifestEntry
	if *manifestFilename != "" {
		manifest, err = loadManifest(*manifestFilename, stdin)
		if err != nil {
			return 1
		}
	}

	var covariates [][]float64
	if *covariatesFilename != "" {
		covariates, err = loadCovariates(*covariatesFilename, *components, len(mds.Samples))
		if err != nil {
			return 1
		}
		log.Infof("adjusting for %d covariates", len(covariates))
	}

	log.Print("fitting")
	loci, err := cmd.fit(mds, betas, covariates)
	if err != nil {
		return 1
	}

	if manifest != nil {
		for i := range loci {
			if ent, ok := manifest[loci[i].Probe]; ok {
				loci[i].Chrom, loci[i].Pos, loci[i].HasPos = ent.Chrom, ent.Pos, true
			}
		}
	}

	sort.SliceStable(loci, func(i, j int) bool {
		pi, pj := loci[i].AdjP, loci[j].AdjP
		if math.IsNaN(pj) {
			return !math.IsNaN(pi)
		} else if math.IsNaN(pi) {
			return false
		}
		return pi < pj
	})

	if *allFilename != "" {
		err = writeLoci(loci, *allFilename, stdout)
		if err != nil {
			return 1
		}
	}

	kept := loci[:0]
	for _, l := range loci {
		if !math.IsNaN(l.AdjP) && l.AdjP < cmd.maxAdjP && math.Abs(l.MeanBetaDiff) > cmd.minBetaDiff {
			kept = append(kept, l)
		}
	}
	log.Infof("%d of %d loci pass adjP < %g and |beta diff| > %g", len(kept), len(mds.Probes), cmd.maxAdjP, cmd.minBetaDiff)
	if len(kept) == 0 {
		log.Warn("empty result: no differentially methylated loci")
	}

	err = writeLoci(kept, *outputFilename, stdout)
	if err != nil {
		return 1
	}
	return 0
}

// loadBetas returns a row-major beta matrix aligned with mds. With no
// beta checkpoint the betas are recovered through the inverse
// transform, which loses only the pre-clamp extremes.
func (cmd *diffLoci) loadBetas(mds *Dataset, path string, stdin io.Reader) ([]float64, error) {
	if path == "" {
		betas := make([]float64, len(mds.Values))
		for i, m := range mds.Values {
			betas[i] = m2beta(m)
		}
		return betas, nil
	}
	bds, err := loadDatasetFile(path, stdin)
	if err != nil {
		return nil, err
	}
	if bds.MValues {
		return nil, fmt.Errorf("%s: -beta checkpoint contains M-values", path)
	}
	if len(bds.Probes) != len(mds.Probes) || len(bds.Samples) != len(mds.Samples) {
		return nil, dataIntegrityError{fmt.Sprintf("beta checkpoint is %d×%d, M checkpoint is %d×%d", len(bds.Probes), len(bds.Samples), len(mds.Probes), len(mds.Samples))}
	}
	for i, p := range bds.Probes {
		if p != mds.Probes[i] {
			return nil, dataIntegrityError{fmt.Sprintf("beta checkpoint probe %d is %q, M checkpoint has %q", i, p, mds.Probes[i])}
		}
	}
	return bds.Values, nil
}

func loadCovariates(path string, components, nSamples int) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	npr, err := gonpy.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	data, err := npr.GetFloat64()
	if err != nil {
		return nil, err
	}
	if len(npr.Shape) != 2 || npr.Shape[0] != nSamples {
		return nil, fmt.Errorf("%s: covariate matrix shape %v, want %d × k", path, npr.Shape, nSamples)
	}
	k := npr.Shape[1]
	if components > k {
		return nil, fmt.Errorf("%s: %d covariate columns available, %d requested", path, k, components)
	}
	covariates := make([][]float64, components)
	for c := range covariates {
		series := make([]float64, nSamples)
		for i := 0; i < nSamples; i++ {
			series[i] = data[i*k+c]
		}
		covariates[c] = series
	}
	return covariates, nil
}

func (cmd *diffLoci) fit(mds *Dataset, betas []float64, covariates [][]float64) ([]locusStat, error) {
	var tumorIdx, normalIdx []int
	for j, s := range mds.Samples {
		if s.Tumor {
			tumorIdx = append(tumorIdx, j)
		} else {
			normalIdx = append(normalIdx, j)
		}
	}
	if len(tumorIdx) < 2 || len(normalIdx) < 2 {
		return nil, fmt.Errorf("need at least 2 samples per group, have %d tumor and %d normal", len(tumorIdx), len(normalIdx))
	}
	nT, nN := float64(len(tumorIdx)), float64(len(normalIdx))
	df := nT + nN - 2

	nProbes := len(mds.Probes)
	loci := make([]locusStat, nProbes)
	s2 := make([]float64, nProbes)
	glmP := make([]float64, nProbes)

	var th throttle
	th.Max = runtime.GOMAXPROCS(0)
	const chunk = 1024
	for start := 0; start < nProbes; start += chunk {
		start := start
		end := start + chunk
		if end > nProbes {
			end = nProbes
		}
		th.Go(func() error {
			tvals := make([]float64, len(tumorIdx))
			nvals := make([]float64, len(normalIdx))
			var pvalue func([]float64) float64
			if covariates != nil {
				pvalue = glmPvalueFunc(mds.Samples, covariates)
			}
			for i := start; i < end; i++ {
				row := mds.Row(i)
				brow := betas[i*len(mds.Samples) : (i+1)*len(mds.Samples)]
				var bT, bN float64
				for k, j := range tumorIdx {
					tvals[k] = row[j]
					bT += brow[j]
				}
				for k, j := range normalIdx {
					nvals[k] = row[j]
					bN += brow[j]
				}
				meanT, varT := stat.MeanVariance(tvals, nil)
				meanN, varN := stat.MeanVariance(nvals, nil)
				loci[i] = locusStat{
					Probe:        mds.Probes[i],
					MeanMDiff:    meanN - meanT,
					MeanBetaDiff: bN/nN - bT/nT,
				}
				s2[i] = (varT*(nT-1) + varN*(nN-1)) / df
				if pvalue != nil {
					glmP[i] = pvalue(row)
				}
			}
			return nil
		})
	}
	err := th.Wait()
	if err != nil {
		return nil, err
	}

	d0, s02, s2post := squeezeVar(s2, df)
	log.Debugf("eBayes prior: d0=%g s0^2=%g", d0, s02)

	dfTotal := df + d0
	var survival func(float64) float64
	if math.IsInf(dfTotal, 1) {
		dist := distuv.Normal{Mu: 0, Sigma: 1}
		survival = dist.Survival
	} else {
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dfTotal}
		survival = dist.Survival
	}
	scale := math.Sqrt(1/nT + 1/nN)
	p := make([]float64, nProbes)
	for i := range loci {
		loci[i].T = loci[i].MeanMDiff / (math.Sqrt(s2post[i]) * scale)
		if covariates != nil {
			p[i] = glmP[i]
		} else {
			p[i] = 2 * survival(math.Abs(loci[i].T))
		}
		loci[i].P = p[i]
	}
	for i, q := range bhAdjust(p) {
		loci[i].AdjP = q
	}
	return loci, nil
}

func writeLoci(loci []locusStat, path string, stdout io.Writer) error {
	output, err := openOutput(path, stdout)
	if err != nil {
		return err
	}
	defer output.Close()
	bufw := bufio.NewWriterSize(output, 1<<20)
	fmt.Fprint(bufw, "probe,chrom,pos,mean_m_diff,mean_beta_diff,t,p,adj_p\n")
	for _, l := range loci {
		pos := ""
		if l.HasPos {
			pos = strconv.Itoa(l.Pos)
		}
		fmt.Fprintf(bufw, "%s,%s,%s,%g,%g,%g,%g,%g\n", l.Probe, l.Chrom, pos, l.MeanMDiff, l.MeanBetaDiff, l.T, l.P, l.AdjP)
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return output.Close()
}
