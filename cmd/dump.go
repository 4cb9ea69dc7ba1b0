package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/otus-rtp/internal/report"
	"firestige.xyz/otus-rtp/internal/rtpdump"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file.rtpdump>",
	Short: "Print the header and samples of an rtpdump file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDump(args[0], os.Stdout); err != nil {
			exitWithError("dump failed", err)
		}
	},
}

func runDump(path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r, err := rtpdump.NewReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return report.Dump(out, r)
}
