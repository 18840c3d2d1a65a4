package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runDecode(t *testing.T, input string, dedup bool) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	require.NoError(t, decodeFrames(cmd, dedup))
	return out.String(), errOut.String()
}

func TestDecodeFrames(t *testing.T) {
	input := "55.7,12.5,a\nnot,enough\n\n999,1,b\n55.7,12.5,a\n"

	out, errOut := runDecode(t, input, false)
	assert.Equal(t,
		`{"latitude":55.7,"longitude":12.5,"timestamp":"a"}`+"\n"+
			`{"latitude":55.7,"longitude":12.5,"timestamp":"a"}`+"\n", out)
	assert.Contains(t, errOut, "line 2:")
	assert.Contains(t, errOut, "line 4:")

	out, _ = runDecode(t, input, true)
	assert.Equal(t, `{"latitude":55.7,"longitude":12.5,"timestamp":"a"}`+"\n", out)
}
