// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var version = "dev"

type cmdHandler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

var handlers = map[string]cmdHandler{
	"import":           &importer{},
	"stats":            &statscmd{},
	"filter":           &filtercmd{},
	"mvalues":          &mvaluecmd{},
	"export-numpy":     &exportNumpy{},
	"pca":              &pcacmd{},
	"diff-loci":        &diffLoci{},
	"dmr":              &dmrcmd{},
	"annotate":         &annotatecmd{},
	"merge-expression": &mergeExpression{},
	"plot":             &plotcmd{},
}

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.StandardLogger().Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(prog, stderr)
		return 2
	}
	switch args[0] {
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "%s %s\n", prog, version)
		return 0
	case "help", "-help", "--help":
		usage(prog, stdout)
		return 0
	}
	cmd, ok := handlers[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "%s: unrecognized command %q\n", prog, args[0])
		usage(prog, stderr)
		return 2
	}
	return cmd.RunCommand(prog+" "+args[0], args[1:], stdin, stdout, stderr)
}

func usage(prog string, out io.Writer) {
	fmt.Fprintf(out, "usage: %s <command> [options]\n\ncommands:\n", prog)
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", name)
	}
	fmt.Fprintf(out, "  version\n")
}
