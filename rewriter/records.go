package rewriter

import (
	"encoding/binary"
	"fmt"
	"github.com/miekg/dns"
	"net"
	"strings"
)

const (
	SectionAnswer     = "answer"
	SectionAuthority  = "authority"
	SectionAdditional = "additional"
)

// Change describes one A record whose address was replaced.
type Change struct {
	Packet  int    `json:"packet"`
	Section string `json:"section"`
	Name    string `json:"name"`
	From    string `json:"from"`
	To      string `json:"to"`
	Record  string `json:"record"`
}

// rewriteRecords overwrites, in place, the address of every matching A record
// in the answer, authority and additional sections of payload. Section sizes
// are taken from the declared header counts. Everything but the 4 address
// bytes of a rewritten record is left as it was, compression included.
func (r *Rewriter) rewriteRecords(packet int, payload []byte) ([]Change, error) {
	if len(payload) < dnsHeaderLen {
		return nil, fmt.Errorf("%w: packet %d: short dns header", ErrMalformedRecord, packet)
	}
	off := dnsHeaderLen
	for i := 0; i < int(binary.BigEndian.Uint16(payload[4:])); i++ {
		if off >= len(payload) {
			return nil, fmt.Errorf("%w: packet %d question %d missing", ErrMalformedRecord, packet, i)
		}
		_, next, err := dns.UnpackDomainName(payload, off)
		if err != nil || next+4 > len(payload) {
			return nil, fmt.Errorf("%w: packet %d question %d", ErrMalformedRecord, packet, i)
		}
		off = next + 4
	}
	var changes []Change
	var err error
	for _, section := range []struct {
		name  string
		count uint16
	}{
		{SectionAnswer, binary.BigEndian.Uint16(payload[6:])},
		{SectionAuthority, binary.BigEndian.Uint16(payload[8:])},
		{SectionAdditional, binary.BigEndian.Uint16(payload[10:])},
	} {
		if changes, off, err = r.rewriteSection(packet, section.name, section.count, payload, off, changes); err != nil {
			return nil, err
		}
	}
	return changes, nil
}

// rewriteSection walks count records starting at off and returns the offset
// just past the section.
func (r *Rewriter) rewriteSection(packet int, section string, count uint16, payload []byte, off int, changes []Change) ([]Change, int, error) {
	for i := 0; i < int(count); i++ {
		// UnpackRR reads nothing at the end of the message without an error.
		if off >= len(payload) {
			return nil, off, fmt.Errorf("%w: packet %d %s declares %d records, found %d",
				ErrMalformedRecord, packet, section, count, i)
		}
		rr, next, err := dns.UnpackRR(payload, off)
		if err != nil {
			return nil, off, fmt.Errorf("%w: packet %d %s record %d of %d: %v",
				ErrMalformedRecord, packet, section, i+1, count, err)
		}
		if header, ok := rr.(*dns.RR_Header); ok && header.Rrtype == dns.TypeNone {
			return nil, off, fmt.Errorf("%w: packet %d %s record %d of %d has no type",
				ErrMalformedRecord, packet, section, i+1, count)
		}
		off = next
		a, ok := rr.(*dns.A)
		if !ok || a.Hdr.Rdlength != net.IPv4len || !r.matcher.MatchDomain(a.Hdr.Name) {
			continue
		}
		from := a.A.String()
		copy(payload[next-net.IPv4len:next], r.target)
		a.A = r.target
		changes = append(changes, Change{
			Packet:  packet,
			Section: section,
			Name:    strings.TrimSuffix(a.Hdr.Name, "."),
			From:    from,
			To:      r.address,
			Record:  a.String(),
		})
	}
	return changes, off, nil
}
