// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"bytes"
	"os"
	"strings"

	"gopkg.in/check.v1"
)

type mergeSuite struct{}

var _ = check.Suite(&mergeSuite{})

func (s *mergeSuite) TestMerge(c *check.C) {
	tmpdir := c.MkDir()
	genesFile := tmpdir + "/genes.csv"
	err := os.WriteFile(genesFile, []byte(`gene,mean_diff,direction,q
TP53,-0.31,hyper,0.0001
GAPDH,0.25,hypo,0.003
ONLYMETH,-0.22,hyper,0.004
`), 0666)
	c.Assert(err, check.IsNil)
	exprFile := tmpdir + "/expr.csv"
	err = os.WriteFile(exprFile, []byte(`gene,baseMean,log2FoldChange,padj
TP53,100,-2.1,0.001
GAPDH,5000,0.4,0.6
ONLYEXPR,10,1.5,0.01
NOTTESTED,3,0.1,NA
`), 0666)
	c.Assert(err, check.IsNil)

	var stdout, stderr bytes.Buffer
	exited := (&mergeExpression{}).RunCommand("methdiff merge-expression", []string{
		"-i", genesFile,
		"-expression", exprFile,
		"-o", "-",
	}, nil, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	c.Assert(lines, check.HasLen, 3)
	c.Check(lines[0], check.Equals, "gene,meth_diff,direction,meth_q,log2_fc,expr_padj,expression")
	c.Check(lines[1], check.Equals, "TP53,-0.31,hyper,0.0001,-2.1,0.001,significant")
	c.Check(lines[2], check.Equals, "GAPDH,0.25,hypo,0.003,0.4,0.6,not significant")
}

func (s *mergeSuite) TestMissingExpressionArg(c *check.C) {
	var stdout, stderr bytes.Buffer
	exited := (&mergeExpression{}).RunCommand("methdiff merge-expression", nil, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 2)
	c.Check(stderr.String(), check.Matches, `(?ms).*-expression.*`)
}

func (s *mergeSuite) TestCustomColumns(c *check.C) {
	tmpdir := c.MkDir()
	genesFile := tmpdir + "/genes.csv"
	err := os.WriteFile(genesFile, []byte("gene,mean_diff,direction,q\nKRT8,-0.4,hyper,0.002\n"), 0666)
	c.Assert(err, check.IsNil)
	exprFile := tmpdir + "/expr.csv"
	err = os.WriteFile(exprFile, []byte("symbol,lfc,fdr\nKRT8,3.2,0.0004\n"), 0666)
	c.Assert(err, check.IsNil)

	var stdout, stderr bytes.Buffer
	exited := (&mergeExpression{}).RunCommand("methdiff merge-expression", []string{
		"-i", genesFile,
		"-expression", exprFile,
		"-expr-gene-col", "symbol",
		"-expr-lfc-col", "lfc",
		"-expr-padj-col", "fdr",
	}, nil, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))
	c.Check(stdout.String(), check.Matches, `(?ms).*KRT8,-0\.4,hyper,0\.002,3\.2,0\.0004,significant\n`)
}

func (s *mergeSuite) TestReadExpressionSkipsNA(c *check.C) {
	tmpdir := c.MkDir()
	exprFile := tmpdir + "/expr.csv"
	err := os.WriteFile(exprFile, []byte("gene,log2FoldChange,padj\nA,1,0.2\nB,2,NA\nC,3,\n"), 0666)
	c.Assert(err, check.IsNil)
	expr, err := readExpressionCSV(exprFile, nil, "gene", "log2FoldChange", "padj")
	c.Assert(err, check.IsNil)
	c.Check(expr, check.HasLen, 1)
	c.Check(expr["A"].padj, check.Equals, 0.2)
}
