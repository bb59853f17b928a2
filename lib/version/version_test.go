// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfoMarksDirtyBuilds(t *testing.T) {
	savedCommit, savedDirty := GitCommit, GitDirty
	t.Cleanup(func() { GitCommit, GitDirty = savedCommit, savedDirty })

	GitCommit = "abc1234"
	GitDirty = "true"
	if got := Info(); !strings.Contains(got, "abc1234-dirty") {
		t.Errorf("Info() = %q, want it to contain %q", got, "abc1234-dirty")
	}

	GitDirty = "false"
	if got := Info(); strings.Contains(got, "-dirty") {
		t.Errorf("Info() = %q, want no dirty marker", got)
	}
}

func TestPrintNamesBinary(t *testing.T) {
	var buffer bytes.Buffer
	Print(&buffer, "quickplay-directory")
	output := buffer.String()
	if !strings.HasPrefix(output, "quickplay-directory "+Version) {
		t.Errorf("Print output = %q, want prefix %q", output, "quickplay-directory "+Version)
	}
	if !strings.Contains(output, "Platform:") {
		t.Errorf("Print output = %q, want platform line", output)
	}
}
