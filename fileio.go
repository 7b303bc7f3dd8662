// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"bufio"
	"io"
	"io/ioutil"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
)

// gzipr wraps a gzip ReadCloser and the underlying file, presenting a
// single Close() that closes both.
type gzipr struct {
	io.ReadCloser
	io.Closer
}

func (gr gzipr) Close() error {
	err := gr.ReadCloser.Close()
	err2 := gr.Closer.Close()
	if err == nil {
		err = err2
	}
	return err
}

// openInput opens path for reading, decompressing transparently if the
// name ends in .gz. path "-" means stdin (never decompressed).
func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return ioutil.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gzr, err := pgzip.NewReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		f.Close()
		return nil, err
	}
	return gzipr{gzr, f}, nil
}

// openOutput opens path for writing; "-" means stdout.
func openOutput(path string, stdout io.Writer) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{stdout}, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
}
