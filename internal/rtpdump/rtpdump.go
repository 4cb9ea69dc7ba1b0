// Package rtpdump reads and writes the rtpplay 1.0 dump format: a text
// line naming the destination, a binary file header, then one record per
// RTP packet with its millisecond offset from the start of the stream.
package rtpdump

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"

	"firestige.xyz/otus-rtp/internal/core"
	"firestige.xyz/otus-rtp/internal/rtpstream"
)

const (
	magic        = "#!rtpplay1.0"
	headerLen    = 16
	recordHdrLen = 8
	maxSampleLen = 0xFFFF - recordHdrLen
	maxLineLen   = 128
)

// Header is the per-file header.
type Header struct {
	Dst     netip.AddrPort // from the text line
	Start   time.Time      // second and microsecond precision
	Source  [4]byte        // first four bytes of the source address
	SrcPort uint16
}

// Sample is one RTP packet and its offset from the stream start.
type Sample struct {
	Offset uint32 // ms
	Data   []byte // whole RTP packet
}

// HeaderFor builds the file header of a stream.
func HeaderFor(info rtpstream.StreamInfo) Header {
	h := Header{
		Dst:     info.ID.Dst,
		Start:   info.StartAbsTime,
		SrcPort: info.ID.Src.Port(),
	}
	src := info.ID.Src.Addr()
	if src.Is4() {
		h.Source = src.As4()
	} else if src.Is6() {
		b := src.As16()
		copy(h.Source[:], b[:4])
	}
	return h
}

// Writer serializes samples of one stream.
type Writer struct {
	w  io.Writer
	id string
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the text line and binary header for info.
func (w *Writer) WriteHeader(info rtpstream.StreamInfo) error {
	w.id = info.ID.String()
	return w.writeHeader(HeaderFor(info))
}

func (w *Writer) writeHeader(h Header) error {
	line := fmt.Sprintf("%s %s/%d\n", magic, h.Dst.Addr(), h.Dst.Port())

	var buf [headerLen]byte
	var sec, usec uint32
	if !h.Start.IsZero() {
		sec = uint32(h.Start.Unix())
		usec = uint32(h.Start.Nanosecond() / 1000)
	}
	binary.BigEndian.PutUint32(buf[0:4], sec)
	binary.BigEndian.PutUint32(buf[4:8], usec)
	copy(buf[8:12], h.Source[:])
	binary.BigEndian.PutUint16(buf[12:14], h.SrcPort)
	// buf[14:16] reserved, zero

	if _, err := io.WriteString(w.w, line); err != nil {
		return w.wrap(err)
	}
	if _, err := w.w.Write(buf[:]); err != nil {
		return w.wrap(err)
	}
	return nil
}

// WriteSample writes one record.
func (w *Writer) WriteSample(s Sample) error {
	if len(s.Data) > maxSampleLen {
		return w.wrap(fmt.Errorf("%d bytes: %w", len(s.Data), core.ErrSampleTooLarge))
	}
	var hdr [recordHdrLen]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(len(s.Data)+recordHdrLen))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(s.Data)))
	binary.BigEndian.PutUint32(hdr[4:8], s.Offset)

	if _, err := w.w.Write(hdr[:]); err != nil {
		return w.wrap(err)
	}
	if _, err := w.w.Write(s.Data); err != nil {
		return w.wrap(err)
	}
	return nil
}

func (w *Writer) wrap(err error) error {
	if w.id == "" {
		return fmt.Errorf("rtpdump: %w", err)
	}
	return fmt.Errorf("rtpdump %s: %w", w.id, err)
}

// Reader parses a dump written by Writer or rtpdump(1).
type Reader struct {
	r      *bufio.Reader
	header Header
}

// NewReader reads the text line and file header.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)

	line, err := readLine(br)
	if err != nil {
		return nil, err
	}
	var dst string
	if n, _ := fmt.Sscanf(line, magic+" %s", &dst); n != 1 {
		return nil, fmt.Errorf("first line %q: %w", line, core.ErrBadDumpFile)
	}
	dstAP, err := parseDst(dst)
	if err != nil {
		return nil, fmt.Errorf("destination %q: %w", dst, core.ErrBadDumpFile)
	}

	var buf [headerLen]byte
	if _, err := io.ReadFull(br, buf[:]); err != nil {
		return nil, fmt.Errorf("file header: %w: %w", core.ErrBadDumpFile, err)
	}
	h := Header{
		Dst:     dstAP,
		Start:   time.Unix(int64(binary.BigEndian.Uint32(buf[0:4])), int64(binary.BigEndian.Uint32(buf[4:8]))*1000),
		SrcPort: binary.BigEndian.Uint16(buf[12:14]),
	}
	copy(h.Source[:], buf[8:12])

	return &Reader{r: br, header: h}, nil
}

func readLine(br *bufio.Reader) (string, error) {
	var line []byte
	for len(line) <= maxLineLen {
		b, err := br.ReadByte()
		if err != nil {
			return "", fmt.Errorf("first line: %w: %w", core.ErrBadDumpFile, err)
		}
		if b == '\n' {
			return string(line), nil
		}
		line = append(line, b)
	}
	return "", fmt.Errorf("first line too long: %w", core.ErrBadDumpFile)
}

// parseDst accepts ADDR/PORT, with IPv6 addresses unbracketed.
func parseDst(s string) (netip.AddrPort, error) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != '/' {
			continue
		}
		addr, err := netip.ParseAddr(s[:i])
		if err != nil {
			return netip.AddrPort{}, err
		}
		var port uint16
		if _, err := fmt.Sscanf(s[i+1:], "%d", &port); err != nil {
			return netip.AddrPort{}, err
		}
		return netip.AddrPortFrom(addr, port), nil
	}
	return netip.AddrPort{}, errors.New("missing /port")
}

func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next sample, or io.EOF after the last one.
func (r *Reader) Next() (Sample, error) {
	var hdr [recordHdrLen]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Sample{}, io.EOF
		}
		return Sample{}, fmt.Errorf("record header: %w: %w", core.ErrBadDumpFile, err)
	}
	// plen is 0 for RTCP records, so the body size comes from length
	length := int(binary.BigEndian.Uint16(hdr[0:2]))
	if length < recordHdrLen {
		return Sample{}, fmt.Errorf("record length %d: %w", length, core.ErrBadDumpFile)
	}

	s := Sample{Offset: binary.BigEndian.Uint32(hdr[4:8]), Data: make([]byte, length-recordHdrLen)}
	if _, err := io.ReadFull(r.r, s.Data); err != nil {
		return Sample{}, fmt.Errorf("record body: %w: %w", core.ErrBadDumpFile, err)
	}
	return s, nil
}
