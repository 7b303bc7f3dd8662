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
	"strconv"

	log "github.com/sirupsen/logrus"
)

// mergeExpression joins the gene-level methylation table (annotate
// -genes-from output) with an externally computed differential
// expression table, by gene symbol. Inner join: genes absent from
// either side are dropped silently.
type mergeExpression struct {
	maxPadj float64
}

type exprRow struct {
	log2FC float64
	padj   float64
}

func (cmd *mergeExpression) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "gene-level methylation csv `file`")
	exprFilename := flags.String("expression", "", "differential expression csv `file` (required)")
	outputFilename := flags.String("o", "-", "output csv `file`")
	geneCol := flags.String("expr-gene-col", "gene", "gene symbol `column` in the expression table")
	lfcCol := flags.String("expr-lfc-col", "log2FoldChange", "log fold change `column` in the expression table")
	padjCol := flags.String("expr-padj-col", "padj", "adjusted p-value `column` in the expression table")
	flags.Float64Var(&cmd.maxPadj, "max-padj", 0.05, "expression significance threshold on adjusted p-value")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if *exprFilename == "" {
		fmt.Fprintln(stderr, "cannot merge without -expression argument")
		return 2
	}

	genes, err := readGenesCSV(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	expr, err := readExpressionCSV(*exprFilename, stdin, *geneCol, *lfcCol, *padjCol)
	if err != nil {
		return 1
	}

	output, err := openOutput(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	defer output.Close()
	bufw := bufio.NewWriter(output)
	fmt.Fprint(bufw, "gene,meth_diff,direction,meth_q,log2_fc,expr_padj,expression\n")
	matched := 0
	for _, g := range genes {
		e, ok := expr[g.Gene]
		if !ok {
			continue
		}
		matched++
		label := "not significant"
		if e.padj < cmd.maxPadj {
			label = "significant"
		}
		fmt.Fprintf(bufw, "%s,%g,%s,%g,%g,%g,%s\n", g.Gene, g.MeanDiff, g.direction(), g.Q, e.log2FC, e.padj, label)
	}
	log.Infof("merged %d of %d methylation genes with %d expression genes", matched, len(genes), len(expr))
	if matched == 0 {
		log.Warn("empty result: no genes in common")
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

func readGenesCSV(path string, stdin io.Reader) ([]geneRegion, error) {
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
	for _, name := range []string{"gene", "mean_diff", "q"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, name)
		}
	}
	var genes []geneRegion
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		g := geneRegion{Gene: rec[col["gene"]]}
		if g.MeanDiff, err = strconv.ParseFloat(rec[col["mean_diff"]], 64); err != nil {
			return nil, fmt.Errorf("%s: bad mean_diff for gene %s: %w", path, g.Gene, err)
		}
		if g.Q, err = strconv.ParseFloat(rec[col["q"]], 64); err != nil {
			return nil, fmt.Errorf("%s: bad q for gene %s: %w", path, g.Gene, err)
		}
		genes = append(genes, g)
	}
	return genes, nil
}

// readExpressionCSV reads a DESeq2-style results table. Rows with an
// empty or "NA" adjusted p-value are skipped (genes the expression
// analysis could not test).
func readExpressionCSV(path string, stdin io.Reader, geneCol, lfcCol, padjCol string) (map[string]exprRow, error) {
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
	for _, name := range []string{geneCol, lfcCol, padjCol} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, name)
		}
	}
	expr := map[string]exprRow{}
	skipped := 0
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		gene := rec[col[geneCol]]
		padjField := rec[col[padjCol]]
		if padjField == "" || padjField == "NA" {
			skipped++
			continue
		}
		var e exprRow
		if e.log2FC, err = strconv.ParseFloat(rec[col[lfcCol]], 64); err != nil {
			return nil, fmt.Errorf("%s: bad %s for gene %s: %w", path, lfcCol, gene, err)
		}
		if e.padj, err = strconv.ParseFloat(padjField, 64); err != nil {
			return nil, fmt.Errorf("%s: bad %s for gene %s: %w", path, padjCol, gene, err)
		}
		expr[gene] = e
	}
	if skipped > 0 {
		log.Infof("%s: skipped %d untested genes", path, skipped)
	}
	return expr, nil
}
