// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

import (
	"bytes"
	"encoding/gob"
	"math"

	"gopkg.in/check.v1"
)

type datasetSuite struct{}

var _ = check.Suite(&datasetSuite{})

func (s *datasetSuite) TestRoundTrip(c *check.C) {
	ds := &Dataset{
		Probes:  []string{"cg01", "cg02"},
		Samples: testSamples(),
		Values:  []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, math.NaN()},
	}
	for _, gz := range []bool{false, true} {
		var buf bytes.Buffer
		err := WriteDataset(ds, &buf, gz)
		c.Assert(err, check.IsNil)
		got, err := ReadDataset(&buf, gz)
		c.Assert(err, check.IsNil)
		c.Check(got.Probes, check.DeepEquals, ds.Probes)
		c.Check(got.Samples, check.DeepEquals, ds.Samples)
		c.Check(got.Values[:7], check.DeepEquals, ds.Values[:7])
		c.Check(math.IsNaN(got.Values[7]), check.Equals, true)
		c.Check(got.Fingerprint, check.Equals, ds.Fingerprint)
	}
}

// encode without WriteDataset, so the recorded fingerprint is not
// refreshed and tampering can be exercised.
func gobEncode(c *check.C, ds *Dataset) []byte {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(ds)
	c.Assert(err, check.IsNil)
	return buf.Bytes()
}

func (s *datasetSuite) TestFingerprintMismatch(c *check.C) {
	ds := &Dataset{
		Probes:  []string{"cg01"},
		Samples: testSamples(),
		Values:  []float64{0.1, 0.2, 0.3, 0.4},
	}
	ds.Fingerprint = ds.fingerprint()
	ds.Values[2] = 0.9
	_, err := ReadDataset(bytes.NewReader(gobEncode(c, ds)), false)
	c.Check(err, check.ErrorMatches, `data integrity: checkpoint fingerprint mismatch.*`)
}

func (s *datasetSuite) TestShapeMismatch(c *check.C) {
	ds := &Dataset{
		Probes:  []string{"cg01", "cg02"},
		Samples: testSamples(),
		Values:  []float64{0.1, 0.2},
	}
	_, err := ReadDataset(bytes.NewReader(gobEncode(c, ds)), false)
	c.Check(err, check.ErrorMatches, `data integrity: checkpoint matrix has 2 values.*`)
}
