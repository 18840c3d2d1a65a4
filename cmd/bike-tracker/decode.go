package main

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/i474232898/bike-tracker/internal/tracking"
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode captured feed frames (one per line) from stdin",
	Long: `Reads frames line by line from stdin and prints each decoded reading as
JSON on stdout. Rejected frames are reported on stderr. With --dedup,
readings already printed are skipped the same way ingestion skips them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dedup, _ := cmd.Flags().GetBool("dedup")
		return decodeFrames(cmd, dedup)
	},
}

func init() {
	decodeCmd.Flags().Bool("dedup", false, "skip readings whose fingerprint was already printed")
}

func decodeFrames(cmd *cobra.Command, dedup bool) error {
	in := bufio.NewScanner(cmd.InOrStdin())
	in.Buffer(make([]byte, 0, 64*1024), 1<<20)
	enc := json.NewEncoder(cmd.OutOrStdout())
	seen := make(map[tracking.Fingerprint]struct{})

	line := 0
	for in.Scan() {
		line++
		if len(in.Bytes()) == 0 {
			continue
		}
		r, err := tracking.DecodeFrame(tracking.TextFrame(in.Text()))
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "line %d: %v\n", line, err)
			continue
		}
		if dedup {
			fp := tracking.FingerprintOf(r)
			if _, ok := seen[fp]; ok {
				continue
			}
			seen[fp] = struct{}{}
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return in.Err()
}
