// Package report renders stream summaries and dump files for the CLI.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	pionrtp "github.com/pion/rtp"
	"gopkg.in/yaml.v3"

	"firestige.xyz/otus-rtp/internal/rtpdump"
	"firestige.xyz/otus-rtp/internal/rtpstream"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts table, json or yaml. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// Streams writes the stream views in the given format.
func Streams(w io.Writer, format Format, views []rtpstream.CalculatedView) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if views == nil {
			views = []rtpstream.CalculatedView{}
		}
		return enc.Encode(views)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable, "":
		streamTable(w, views)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func streamTable(w io.Writer, views []rtpstream.CalculatedView) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{
		"Stream", "Payloads", "Packets", "Lost",
		"Max Delta", "Max Jitter", "Mean Jitter", "Max Skew",
		"Bandwidth", "Duration", "Drift", "Status",
	})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT,
	})

	for _, v := range views {
		status := "OK"
		if v.Problem {
			status = "Problem"
		}
		table.Append([]string{
			v.Stream,
			strings.Join(v.PayloadNames, ","),
			humanize.Comma(int64(v.Packets)),
			fmt.Sprintf("%s (%.1f%%)", humanize.Comma(v.Lost), v.LostPct),
			fmt.Sprintf("%.2f ms @ %d", v.MaxDelta, v.MaxDeltaFrame),
			fmt.Sprintf("%.2f ms", v.MaxJitter),
			fmt.Sprintf("%.2f ms", v.MeanJitter),
			fmt.Sprintf("%.2f ms", v.MaxSkew),
			fmt.Sprintf("%.2f kbps", v.Bandwidth),
			fmt.Sprintf("%.2f s", v.Duration/1000),
			drift(v),
			status,
		})
	}
	table.Render()
}

func drift(v rtpstream.CalculatedView) string {
	if v.ClockRate == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f ms (%.2f%%)", v.ClockDrift, v.FreqDriftPct)
}

// Dump writes the header and every sample of an rtpdump file.
func Dump(w io.Writer, r *rtpdump.Reader) error {
	h := r.Header()
	src := fmt.Sprintf("%d.%d.%d.%d:%d", h.Source[0], h.Source[1], h.Source[2], h.Source[3], h.SrcPort)
	fmt.Fprintf(w, "destination: %s\nsource:      %s\nstart:       %s\n",
		h.Dst, src, h.Start.UTC().Format("2006-01-02 15:04:05.000000"))

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"#", "Offset", "Size", "PT", "Seq", "Timestamp", "SSRC"})

	var n, total uint64
	for {
		s, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		n++
		total += uint64(len(s.Data))
		table.Append(sampleRow(n, s))
	}
	table.Render()
	fmt.Fprintf(w, "%s samples, %s\n", humanize.Comma(int64(n)), humanize.Bytes(total))
	return nil
}

func sampleRow(n uint64, s rtpdump.Sample) []string {
	row := []string{
		humanize.Comma(int64(n)),
		fmt.Sprintf("%d ms", s.Offset),
		humanize.Comma(int64(len(s.Data))),
		"-", "-", "-", "-",
	}
	var h pionrtp.Header
	if _, err := h.Unmarshal(s.Data); err != nil || h.Version != 2 {
		return row
	}
	row[3] = fmt.Sprintf("%d", h.PayloadType)
	row[4] = fmt.Sprintf("%d", h.SequenceNumber)
	row[5] = fmt.Sprintf("%d", h.Timestamp)
	row[6] = fmt.Sprintf("0x%08X", h.SSRC)
	return row
}
