// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methdiff

// dataIntegrityError means reference data and assay data disagree in a
// way that would silently corrupt downstream results (e.g., a probe ID
// with no manifest row during coordinate remapping). Always fatal.
type dataIntegrityError struct {
	msg string
}

func (e dataIntegrityError) Error() string {
	return "data integrity: " + e.msg
}
