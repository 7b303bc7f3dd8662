// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	"golang.org/x/crypto/blake2b"
)

// SampleInfo describes one array sample and its clinical attributes.
type SampleInfo struct {
	ID      string
	Patient string
	Tumor   bool
}

// Dataset is a probe × sample value matrix checkpoint. Values is
// row-major with NaN for missing entries. MValues is false for beta
// values in [0,1] and true after the log-odds transform.
type Dataset struct {
	Probes      []string
	Samples     []SampleInfo
	Values      []float64
	MValues     bool
	Fingerprint [blake2b.Size256]byte
}

func (ds *Dataset) Row(i int) []float64 {
	n := len(ds.Samples)
	return ds.Values[i*n : (i+1)*n]
}

// fingerprint hashes probe IDs, sample IDs, and the value matrix, so
// checkpoints written by different pipeline stages can be told apart.
func (ds *Dataset) fingerprint() [blake2b.Size256]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	for _, p := range ds.Probes {
		io.WriteString(h, p)
		h.Write([]byte{0})
	}
	for _, s := range ds.Samples {
		io.WriteString(h, s.ID)
		h.Write([]byte{0})
	}
	buf := make([]byte, 8)
	for _, v := range ds.Values {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		h.Write(buf)
	}
	var sum [blake2b.Size256]byte
	h.Sum(sum[:0])
	return sum
}

func (ds *Dataset) tumorNormalCounts() (tumor, normal int) {
	for _, s := range ds.Samples {
		if s.Tumor {
			tumor++
		} else {
			normal++
		}
	}
	return
}

// WriteDataset gob-encodes ds to w, compressing if gz.
func WriteDataset(ds *Dataset, w io.Writer, gz bool) error {
	ds.Fingerprint = ds.fingerprint()
	bufw := bufio.NewWriterSize(w, 1<<20)
	var enc *gob.Encoder
	var gzw *pgzip.Writer
	if gz {
		gzw = pgzip.NewWriter(bufw)
		enc = gob.NewEncoder(gzw)
	} else {
		enc = gob.NewEncoder(bufw)
	}
	err := enc.Encode(ds)
	if err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if gzw != nil {
		err = gzw.Close()
		if err != nil {
			return err
		}
	}
	return bufw.Flush()
}

// ReadDataset decodes a Dataset checkpoint and verifies its content
// fingerprint.
func ReadDataset(r io.Reader, gz bool) (*Dataset, error) {
	rdr := io.Reader(bufio.NewReaderSize(r, 1<<20))
	if gz {
		gzr, err := pgzip.NewReader(rdr)
		if err != nil {
			return nil, err
		}
		defer gzr.Close()
		rdr = gzr
	}
	var ds Dataset
	err := gob.NewDecoder(rdr).Decode(&ds)
	if err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	if len(ds.Values) != len(ds.Probes)*len(ds.Samples) {
		return nil, dataIntegrityError{fmt.Sprintf("checkpoint matrix has %d values, want %d probes × %d samples", len(ds.Values), len(ds.Probes), len(ds.Samples))}
	}
	if got := ds.fingerprint(); got != ds.Fingerprint {
		return nil, dataIntegrityError{fmt.Sprintf("checkpoint fingerprint mismatch: recorded %x, computed %x", ds.Fingerprint[:4], got[:4])}
	}
	return &ds, nil
}

func loadDatasetFile(path string, stdin io.Reader) (*Dataset, error) {
	if path == "-" {
		return ReadDataset(stdin, false)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadDataset(f, strings.HasSuffix(path, ".gz"))
}

func saveDatasetFile(ds *Dataset, path string, stdout io.Writer) error {
	if path == "-" {
		return WriteDataset(ds, stdout, false)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	err = WriteDataset(ds, f, strings.HasSuffix(path, ".gz"))
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
