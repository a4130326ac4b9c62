// Package rewriter replaces the address of A records in DNS responses found
// in a capture.
package rewriter

import (
	"errors"
	"fmt"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"log"
	"net"
	"pcap-dns-rewriter/capture"
	"pcap-dns-rewriter/config"
	"pcap-dns-rewriter/util"
)

var (
	ErrInvalidTarget   = errors.New("invalid target address")
	ErrMalformedRecord = errors.New("malformed dns record section")
	ErrSerialize       = errors.New("serialize packet")
)

type Rewriter struct {
	address       string
	target        net.IP
	matcher       util.DomainMatcher
	skipMalformed bool
}

type Report struct {
	Packets   int
	Responses int
	Modified  int
	Skipped   int
	Changes   []Change
}

func (report *Report) String() string {
	return fmt.Sprintf("packets: %d, dns responses: %d, modified: %d, records: %d, skipped: %d",
		report.Packets, report.Responses, report.Modified, len(report.Changes), report.Skipped)
}

func New(conf *config.RewriterConfig) (*Rewriter, error) {
	address := DeriveAddress(conf.Identifier)
	target, err := ParseTarget(address)
	if err != nil {
		return nil, fmt.Errorf("identifier %s: %w", conf.Identifier, err)
	}
	matcher, err := util.NewDomainMatcher(conf.Rule)
	if err != nil {
		return nil, err
	}
	return &Rewriter{
		address:       address,
		target:        target,
		matcher:       matcher,
		skipMalformed: conf.SkipMalformed,
	}, nil
}

func (r *Rewriter) String() string {
	return fmt.Sprintf("Rewriter(%s,%s)", r.address, r.matcher)
}

// Address is the dotted target address A records are rewritten to.
func (r *Rewriter) Address() string {
	return r.address
}

// Rewrite returns a capture holding every frame of in, in the same order.
// Frames that are not rewritten share their bytes with in.
func (r *Rewriter) Rewrite(in *capture.Capture) (*capture.Capture, *Report, error) {
	out := &capture.Capture{
		LinkType:   in.LinkType,
		Snaplen:    in.Snaplen,
		Resolution: in.Resolution,
		Frames:     make([]capture.Frame, 0, len(in.Frames)),
	}
	report := &Report{}
	for i, frame := range in.Frames {
		rewritten, err := r.rewriteFrame(i, frame, in.LinkType, report)
		if err != nil {
			return nil, report, err
		}
		out.Frames = append(out.Frames, rewritten)
		report.Packets++
	}
	return out, report, nil
}

func (r *Rewriter) rewriteFrame(index int, frame capture.Frame, linkType layers.LinkType, report *Report) (capture.Frame, error) {
	packet := gopacket.NewPacket(frame.Data, linkType, gopacket.Default)
	resp := classify(packet)
	if resp == nil {
		return frame, nil
	}
	report.Responses++
	changes, err := r.rewriteRecords(index, resp.message)
	if err != nil {
		if r.skipMalformed {
			log.Printf("%v, pass through", err)
			report.Skipped++
			return frame, nil
		}
		return frame, err
	}
	if len(changes) == 0 {
		return frame, nil
	}
	data, err := recomputeIPLengthAndChecksums(packet, resp.transport, resp.payload)
	if err != nil {
		return frame, fmt.Errorf("packet %d: %w", index, err)
	}
	info := frame.Info
	info.Length += len(data) - info.CaptureLength
	info.CaptureLength = len(data)
	report.Modified++
	report.Changes = append(report.Changes, changes...)
	return capture.Frame{Info: info, Data: data}, nil
}
