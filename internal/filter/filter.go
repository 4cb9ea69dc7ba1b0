// Package filter evaluates display filters, written as BPF expressions,
// against captured frames.
package filter

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// Filter is a compiled display filter. A nil *Filter matches every frame.
type Filter struct {
	expr string
	vm   *bpf.VM
}

// CompileBpf compiles a filter expression with libpcap and converts it to
// x/net/bpf instructions.
func CompileBpf(expr string, linkType layers.LinkType, snapLen int) ([]bpf.RawInstruction, error) {
	pcapBpf, err := pcap.CompileBPFFilter(linkType, snapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter %q: %w", expr, err)
	}

	rawBpf := make([]bpf.RawInstruction, len(pcapBpf))
	for i, ins := range pcapBpf {
		rawBpf[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return rawBpf, nil
}

// New compiles expr for frames of linkType. An empty expr returns nil.
func New(expr string, linkType layers.LinkType, snapLen int) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}
	raw, err := CompileBpf(expr, linkType, snapLen)
	if err != nil {
		return nil, err
	}
	insns, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("filter %q: program uses instructions the BPF VM cannot run", expr)
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, vm: vm}, nil
}

// Match reports whether the frame passes the filter.
func (f *Filter) Match(frame []byte) bool {
	if f == nil {
		return true
	}
	n, err := f.vm.Run(frame)
	return err == nil && n > 0
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}
