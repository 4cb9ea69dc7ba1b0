package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/otus-rtp/internal/analysis"
	"firestige.xyz/otus-rtp/internal/config"
	"firestige.xyz/otus-rtp/internal/core"
	"firestige.xyz/otus-rtp/internal/export"
	"firestige.xyz/otus-rtp/internal/log"
	"firestige.xyz/otus-rtp/internal/rtpstream"
	"firestige.xyz/otus-rtp/internal/source/file"
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Export one RTP stream in rtpdump format",
	Long: `Save analyses a capture, then writes every packet of the selected stream
to an rtpdump (rtpplay 1.0) file.

The output may be a local path, "-" for stdout, or an s3://bucket/prefix
location. With export.s3.enabled the local file is also uploaded to the
configured bucket.

Examples:
  otus-rtp save -r call.pcap --stream "10.0.0.1:5004>10.0.0.2:6004/0xAABBCCDD" -o a.rtpdump
  otus-rtp save -r call.pcap --stream "10.0.0.1:5004>10.0.0.2:6004/0xAABBCCDD" -o s3://dumps/calls`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSave(cmd.Context(), globalConfig, saveOpts, os.Stdout); err != nil {
			exitWithError("save failed", err)
		}
	},
}

type saveOptions struct {
	file   string
	stream streamFlag
	output string
}

var saveOpts saveOptions

func init() {
	saveCmd.Flags().StringVarP(&saveOpts.file, "read", "r", "", "capture file to read (required)")
	saveCmd.Flags().Var(&saveOpts.stream, "stream", "stream to export: src:port>dst:port/0xSSRC (required)")
	saveCmd.Flags().StringVarP(&saveOpts.output, "output", "o", "",
		"output file, \"-\" for stdout or s3://bucket/prefix (default <stream>.rtpdump)")
	saveCmd.MarkFlagRequired("read")
	saveCmd.MarkFlagRequired("stream")
}

// dumpName is the default file name of an exported stream.
func dumpName(id rtpstream.Identity) string {
	return fmt.Sprintf("%s_%d_%s_%d_%08X.rtpdump",
		id.Src.Addr().StringExpanded(), id.Src.Port(),
		id.Dst.Addr().StringExpanded(), id.Dst.Port(), id.SSRC)
}

func runSave(ctx context.Context, cfg *config.GlobalConfig, opts saveOptions, out io.Writer) error {
	if !opts.stream.set {
		return fmt.Errorf("--stream: %w", core.ErrNoFilterIdentity)
	}
	id := opts.stream.id

	session, err := analyseFile(ctx, cfg, opts.file, "", false)
	if err != nil {
		return err
	}
	info, ok := session.Find(id)
	if !ok {
		return fmt.Errorf("stream %s: %w", id, core.ErrStreamNotFound)
	}

	s3cfg := cfg.Export.S3
	output := opts.output
	if export.IsS3URI(output) {
		s3cfg.Enabled = true
		s3cfg.URIPrefix = output
		output = ""
	}
	if output == "" {
		output = dumpName(id)
	}

	var (
		w     io.WriteCloser
		local string
	)
	if output == "-" {
		w = export.Stdout(out)
	} else {
		f, err := export.Create(cfg.Export.Dir, output)
		if err != nil {
			return err
		}
		w, local = f, f.Name()
	}

	if err := exportStream(ctx, session, id, fileConfig(cfg, opts.file, ""), w, local); err != nil {
		return err
	}

	if local == "" {
		return nil
	}
	fmt.Fprintf(out, "saved %d packets of %s to %s\n", info.Packets, id, local)

	if !s3cfg.Enabled {
		return nil
	}
	uploader, err := export.NewUploader(ctx, s3cfg)
	if err != nil {
		return err
	}
	uri, err := uploader.Upload(ctx, local)
	if err != nil {
		return err
	}
	log.GetLogger().WithField("uri", uri).Info("uploaded rtpdump")
	fmt.Fprintf(out, "uploaded to %s\n", uri)
	return nil
}

// exportStream runs the Save pass into w and closes it. On failure the
// partial local file is removed so it cannot pass for a complete export.
func exportStream(ctx context.Context, session *analysis.Session, id rtpstream.Identity, fc file.Config, w io.WriteCloser, local string) error {
	err := replayFile(ctx, session, analysis.Save{Stream: id, Out: w}, fc)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close %s: %w", local, cerr)
	}
	if err == nil || local == "" {
		return err
	}
	if rmErr := os.Remove(local); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		log.GetLogger().WithError(rmErr).Warnf("failed to remove partial export %s", local)
	}
	return err
}
