// Copyright (C) The Methdiff Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"github.com/epiloci/methdiff"
)

func main() {
	methdiff.Main()
}
