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
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// featureSetArg collects repeated -features name=path.bed arguments.
type featureSetArg struct {
	name string
	path string
}

type featureSetArgs []featureSetArg

func (f *featureSetArgs) String() string {
	var names []string
	for _, fs := range *f {
		names = append(names, fs.name+"="+fs.path)
	}
	return strings.Join(names, ",")
}

func (f *featureSetArgs) Set(s string) error {
	name, path, ok := strings.Cut(s, "=")
	if !ok || name == "" || path == "" {
		return fmt.Errorf("-features argument must look like name=path.bed, got %q", s)
	}
	*f = append(*f, featureSetArg{name, path})
	return nil
}

// regionFeature pairs one region with one overlapping feature. A
// region appears once per overlap, and not at all if nothing overlaps.
type regionFeature struct {
	region
	Set   string
	Label string
}

// annotatecmd intersects regions against named feature sets (gene
// features, CpG context) and tabulates the overlaps. With -genes-from
// it also explodes one set's comma-joined gene lists into a
// deduplicated gene-level table.
type annotatecmd struct {
	features featureSetArgs
}

func (cmd *annotatecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "region csv `file`")
	outputFilename := flags.String("o", "-", "region-feature pairs csv `file`")
	flags.Var(&cmd.features, "features", "feature set as `name=path.bed` (repeatable)")
	genesFrom := flags.String("genes-from", "", "write a gene-level table from this feature `set` (e.g. promoters)")
	genesFilename := flags.String("genes-out", "-", "gene-level output csv `file`")
	countsFilename := flags.String("counts-out", "", "per-set overlap counts csv `file`")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if len(cmd.features) == 0 {
		fmt.Fprintln(stderr, "cannot annotate without at least one -features argument")
		return 2
	}

	regions, err := readRegionsCSV(*inputFilename, stdin)
	if err != nil {
		return 1
	}

	var pairs []regionFeature
	counts := make([]struct{ pairs, regions, features int }, len(cmd.features))
	for si, fs := range cmd.features {
		idx, nfeatures, err2 := loadFeatureBED(fs.path, stdin)
		if err2 != nil {
			err = err2
			return 1
		}
		counts[si].features = nfeatures
		for _, r := range regions {
			labels := idx.Overlapping(r.Chrom, r.Start, r.End)
			if len(labels) > 0 {
				counts[si].regions++
			}
			for _, label := range labels {
				pairs = append(pairs, regionFeature{r, fs.name, label})
				counts[si].pairs++
			}
		}
	}
	for si, fs := range cmd.features {
		log.Infof("%s: %d features, %d overlapping regions, %d region-feature pairs", fs.name, counts[si].features, counts[si].regions, counts[si].pairs)
	}
	if len(pairs) == 0 {
		log.Warn("empty result: no overlaps")
	}

	err = writeRegionFeatures(pairs, *outputFilename, stdout)
	if err != nil {
		return 1
	}

	if *countsFilename != "" {
		var f io.WriteCloser
		f, err = openOutput(*countsFilename, stdout)
		if err != nil {
			return 1
		}
		bufw := bufio.NewWriter(f)
		fmt.Fprint(bufw, "set,features,regions_overlapping,pairs\n")
		for si, fs := range cmd.features {
			fmt.Fprintf(bufw, "%s,%d,%d,%d\n", fs.name, counts[si].features, counts[si].regions, counts[si].pairs)
		}
		if err = bufw.Flush(); err != nil {
			return 1
		}
		if err = f.Close(); err != nil {
			return 1
		}
	}

	if *genesFrom != "" {
		found := false
		for _, fs := range cmd.features {
			if fs.name == *genesFrom {
				found = true
			}
		}
		if !found {
			err = fmt.Errorf("-genes-from %q does not match any -features set", *genesFrom)
			return 1
		}
		genes := explodeGenes(pairs, *genesFrom)
		log.Infof("%s: %d distinct genes", *genesFrom, len(genes))
		err = writeGenes(genes, *genesFilename, stdout)
		if err != nil {
			return 1
		}
	}
	return 0
}

// geneRegion is the most significant region hit for one gene within a
// feature set.
type geneRegion struct {
	Gene     string
	MeanDiff float64
	Q        float64
}

func (g geneRegion) direction() string {
	return region{MeanDiff: g.MeanDiff}.direction()
}

// explodeGenes splits comma-joined gene lists in one set's labels into
// one row per gene and deduplicates by gene, keeping the row with the
// smallest region q.
func explodeGenes(pairs []regionFeature, set string) []geneRegion {
	best := map[string]geneRegion{}
	for _, pr := range pairs {
		if pr.Set != set {
			continue
		}
		for _, gene := range strings.FieldsFunc(pr.Label, func(r rune) bool { return r == ',' || r == ';' }) {
			gene = strings.TrimSpace(gene)
			if gene == "" || gene == "." {
				continue
			}
			if prev, ok := best[gene]; !ok || pr.Q < prev.Q {
				best[gene] = geneRegion{Gene: gene, MeanDiff: pr.MeanDiff, Q: pr.Q}
			}
		}
	}
	genes := make([]geneRegion, 0, len(best))
	for _, g := range best {
		genes = append(genes, g)
	}
	sort.Slice(genes, func(i, j int) bool {
		if genes[i].Q != genes[j].Q {
			return genes[i].Q < genes[j].Q
		}
		return genes[i].Gene < genes[j].Gene
	})
	return genes
}

// loadFeatureBED reads BED4 rows {chrom, start, end, label} into a
// frozen featureIndex. BED ends are exclusive; the index stores
// inclusive spans, so end-1 is the last base of each feature.
func loadFeatureBED(path string, stdin io.Reader) (*featureIndex, int, error) {
	f, err := openInput(path, stdin)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	idx := &featureIndex{}
	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<24)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, "track") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 3 {
			return nil, 0, fmt.Errorf("%s line %d: need at least chrom/start/end", path, line)
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, 0, fmt.Errorf("%s line %d: bad start %q", path, line, fields[1])
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, 0, fmt.Errorf("%s line %d: bad end %q", path, line, fields[2])
		}
		label := ""
		if len(fields) > 3 {
			label = fields[3]
		}
		idx.Add(fields[0], start, end-1, label)
		n++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}
	idx.Freeze()
	return idx, n, nil
}

func writeRegionFeatures(pairs []regionFeature, path string, stdout io.Writer) error {
	output, err := openOutput(path, stdout)
	if err != nil {
		return err
	}
	defer output.Close()
	w := csv.NewWriter(bufio.NewWriter(output))
	err = w.Write([]string{"chrom", "start", "end", "n_probes", "mean_diff", "direction", "q", "set", "label"})
	if err != nil {
		return err
	}
	for _, pr := range pairs {
		err = w.Write([]string{
			pr.Chrom,
			strconv.Itoa(pr.Start),
			strconv.Itoa(pr.End),
			strconv.Itoa(pr.NProbes),
			strconv.FormatFloat(pr.MeanDiff, 'g', -1, 64),
			pr.direction(),
			strconv.FormatFloat(pr.Q, 'g', -1, 64),
			pr.Set,
			pr.Label,
		})
		if err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return output.Close()
}

func writeGenes(genes []geneRegion, path string, stdout io.Writer) error {
	output, err := openOutput(path, stdout)
	if err != nil {
		return err
	}
	defer output.Close()
	bufw := bufio.NewWriter(output)
	fmt.Fprint(bufw, "gene,mean_diff,direction,q\n")
	for _, g := range genes {
		fmt.Fprintf(bufw, "%s,%g,%s,%g\n", g.Gene, g.MeanDiff, g.direction(), g.Q)
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return output.Close()
}

// readRegionsCSV reads a region table written by dmr.
func readRegionsCSV(path string, stdin io.Reader) ([]region, error) {
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
	for _, name := range []string{"chrom", "start", "end", "mean_diff", "q"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, name)
		}
	}
	var regions []region
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		var r region
		r.Chrom = rec[col["chrom"]]
		if r.Start, err = strconv.Atoi(rec[col["start"]]); err != nil {
			return nil, fmt.Errorf("%s: bad start %q: %w", path, rec[col["start"]], err)
		}
		if r.End, err = strconv.Atoi(rec[col["end"]]); err != nil {
			return nil, fmt.Errorf("%s: bad end %q: %w", path, rec[col["end"]], err)
		}
		if r.MeanDiff, err = strconv.ParseFloat(rec[col["mean_diff"]], 64); err != nil {
			return nil, fmt.Errorf("%s: bad mean_diff %q: %w", path, rec[col["mean_diff"]], err)
		}
		if r.Q, err = strconv.ParseFloat(rec[col["q"]], 64); err != nil {
			return nil, fmt.Errorf("%s: bad q %q: %w", path, rec[col["q"]], err)
		}
		if ni, ok := col["n_probes"]; ok {
			r.NProbes, _ = strconv.Atoi(rec[ni])
		}
		if pi, ok := col["p"]; ok {
			r.P, _ = strconv.ParseFloat(rec[pi], 64)
		}
		regions = append(regions, r)
	}
	return regions, nil
}
