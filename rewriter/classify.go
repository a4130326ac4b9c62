package rewriter

import (
	"encoding/binary"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	dnsHeaderLen = 12
	dnsPort      = 53
	mdnsPort     = 5353
)

type transportLayer interface {
	gopacket.TransportLayer
	gopacket.SerializableLayer
	SetNetworkLayerForChecksum(gopacket.NetworkLayer) error
}

// response is a DNS response found in a transport segment. payload is a copy
// of the segment payload and message the DNS message inside it.
type response struct {
	transport transportLayer
	payload   []byte
	message   []byte
}

// classify returns the DNS response carried by a packet, or nil for anything
// that passes through untouched. UDP on port 53 or 5353 carries one message.
// TCP on port 53 is handled when the segment holds exactly one length-prefixed
// message.
func classify(packet gopacket.Packet) *response {
	switch transport := packet.TransportLayer().(type) {
	case *layers.UDP:
		src, dst := uint16(transport.SrcPort), uint16(transport.DstPort)
		if !isPort(src, dst, dnsPort) && !isPort(src, dst, mdnsPort) {
			return nil
		}
		return newResponse(transport, transport.Payload, 0)
	case *layers.TCP:
		if !isPort(uint16(transport.SrcPort), uint16(transport.DstPort), dnsPort) {
			return nil
		}
		segment := transport.Payload
		if len(segment) < 2 || int(binary.BigEndian.Uint16(segment)) != len(segment)-2 {
			return nil
		}
		return newResponse(transport, segment, 2)
	}
	return nil
}

func isPort(src, dst, port uint16) bool {
	return src == port || dst == port
}

func newResponse(transport transportLayer, segment []byte, offset int) *response {
	if !isResponseHeader(segment[offset:]) {
		return nil
	}
	payload := append([]byte{}, segment...)
	return &response{transport: transport, payload: payload, message: payload[offset:]}
}

func isResponseHeader(message []byte) bool {
	return len(message) >= dnsHeaderLen && message[2]&0x80 != 0
}
