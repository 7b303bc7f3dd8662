// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// manifestEntry is one row of a probe manifest: the genomic placement
// of a probe in one reference build, plus its SNP mask flag.
type manifestEntry struct {
	Chrom   string
	Pos     int
	MaskSNP bool
}

// loadManifest reads a tab-separated manifest keyed by probe ID. The
// header row names the columns; probe/chrom/pos are required, mask_snp
// is optional (absent means unmasked).
func loadManifest(path string, stdin io.Reader) (map[string]manifestEntry, error) {
	f, err := openInput(path, stdin)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<24)
	if !scanner.Scan() {
		return nil, fmt.Errorf("%s: empty manifest", path)
	}
	probeCol, chromCol, posCol, maskCol := -1, -1, -1, -1
	for i, name := range strings.Split(scanner.Text(), "\t") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "probe", "probe_id", "probeid", "ilmnid", "name":
			probeCol = i
		case "chrom", "chr", "chromosome", "cpg_chrm":
			chromCol = i
		case "pos", "position", "start", "cpg_beg":
			posCol = i
		case "mask_snp", "masksnp", "mask_general", "mask.general":
			maskCol = i
		}
	}
	if probeCol < 0 || chromCol < 0 || posCol < 0 {
		return nil, fmt.Errorf("%s: manifest header must name probe, chrom, and pos columns", path)
	}

	manifest := map[string]manifestEntry{}
	line := 1
	for scanner.Scan() {
		line++
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) <= probeCol || len(fields) <= chromCol || len(fields) <= posCol {
			return nil, fmt.Errorf("%s line %d: too few columns", path, line)
		}
		probe := fields[probeCol]
		if probe == "" {
			continue
		}
		if _, dup := manifest[probe]; dup {
			return nil, dataIntegrityError{fmt.Sprintf("%s line %d: duplicate manifest row for probe %q", path, line, probe)}
		}
		pos, err := strconv.Atoi(fields[posCol])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad position %q: %s", path, line, fields[posCol], err)
		}
		ent := manifestEntry{Chrom: fields[chromCol], Pos: pos}
		if maskCol >= 0 && len(fields) > maskCol {
			ent.MaskSNP = truthy(fields[maskCol])
		}
		manifest[probe] = ent
	}
	return manifest, scanner.Err()
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y":
		return true
	}
	return false
}
