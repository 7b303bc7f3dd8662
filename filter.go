package methdiff

import (
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	_ "net/http/pprof"
	"strings"

	log "github.com/sirupsen/logrus"
)

// probeFilter drops probes that cannot be analyzed reliably: rows with
// missing values, probes on the sex chromosomes, and probes overlapping
// common SNPs (manifest mask flag).
type probeFilter struct {
	KeepNA   bool
	KeepXY   bool
	KeepSNPs bool
}

func (f *probeFilter) Flags(flags *flag.FlagSet) {
	flags.BoolVar(&f.KeepNA, "keep-na", false, "keep probes with missing values")
	flags.BoolVar(&f.KeepXY, "keep-xy", false, "keep probes on chrX/chrY")
	flags.BoolVar(&f.KeepSNPs, "keep-snps", false, "keep SNP-masked probes")
}

// Apply returns a copy of ds restricted to probes passing all enabled
// criteria, preserving row order. Probes absent from the manifest
// cannot be placed and are dropped unless every manifest-based
// criterion is disabled.
func (f *probeFilter) Apply(ds *Dataset, manifest map[string]manifestEntry) *Dataset {
	out := &Dataset{Samples: ds.Samples, MValues: ds.MValues}
	var droppedNA, droppedXY, droppedSNP, droppedUnplaced int
PROBE:
	for i, probe := range ds.Probes {
		row := ds.Row(i)
		if !f.KeepNA {
			for _, v := range row {
				if math.IsNaN(v) {
					droppedNA++
					continue PROBE
				}
			}
		}
		if !f.KeepXY || !f.KeepSNPs {
			ent, ok := manifest[probe]
			if !ok {
				droppedUnplaced++
				continue
			}
			if !f.KeepXY && sexChrom(ent.Chrom) {
				droppedXY++
				continue
			}
			if !f.KeepSNPs && ent.MaskSNP {
				droppedSNP++
				continue
			}
		}
		out.Probes = append(out.Probes, probe)
		out.Values = append(out.Values, row...)
	}
	log.Infof("filter: kept %d of %d probes (dropped %d missing-value, %d chrX/Y, %d SNP-masked, %d unplaced)",
		len(out.Probes), len(ds.Probes), droppedNA, droppedXY, droppedSNP, droppedUnplaced)
	if len(out.Probes) == 0 {
		log.Warn("filter: empty result, no probes passed")
	}
	return out
}

func sexChrom(chrom string) bool {
	switch strings.TrimPrefix(strings.ToLower(chrom), "chr") {
	case "x", "y":
		return true
	}
	return false
}

type filtercmd struct {
	probeFilter
}

func (cmd *filtercmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	outputFilename := flags.String("o", "-", "output checkpoint `file`")
	manifestFilename := flags.String("manifest", "", "probe manifest tsv `file` (required unless -keep-xy and -keep-snps)")
	cmd.probeFilter.Flags(flags)
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

	needManifest := !cmd.KeepXY || !cmd.KeepSNPs
	if needManifest && *manifestFilename == "" {
		err = fmt.Errorf("cannot filter without -manifest argument (or disable manifest criteria with -keep-xy -keep-snps)")
		return 2
	}

	log.Print("reading")
	ds, err := loadDatasetFile(*inputFilename, stdin)
	if err != nil {
		return 1
	}

	var manifest map[string]manifestEntry
	if needManifest {
		manifest, err = loadManifest(*manifestFilename, stdin)
		if err != nil {
			return 1
		}
		log.Infof("manifest: %d probes", len(manifest))
	}

	log.Print("filtering")
	out := cmd.probeFilter.Apply(ds, manifest)

	log.Print("writing")
	err = saveDatasetFile(out, *outputFilename, stdout)
	if err != nil {
		return 1
	}
	return 0
}
