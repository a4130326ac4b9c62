package rewriter

import (
	"encoding/binary"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/miekg/dns"
	"net"
	"pcap-dns-rewriter/capture"
	"testing"
	"time"
)

var (
	clientIP    = net.IP{192, 168, 1, 10}
	resolverIP  = net.IP{8, 8, 8, 8}
	clientIP6   = net.ParseIP("fd00::10")
	resolverIP6 = net.ParseIP("fd00::53")
	baseTime    = time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
)

func newA(name string, ip string) *dns.A {
	return &dns.A{
		Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
		A:   net.ParseIP(ip),
	}
}

func newAAAA(name string, ip string) *dns.AAAA {
	return &dns.AAAA{
		Hdr:  dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 300},
		AAAA: net.ParseIP(ip),
	}
}

func newCNAME(name string, target string) *dns.CNAME {
	return &dns.CNAME{
		Hdr:    dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeCNAME, Class: dns.ClassINET, Ttl: 300},
		Target: dns.Fqdn(target),
	}
}

func newNS(name string, ns string) *dns.NS {
	return &dns.NS{
		Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 300},
		Ns:  dns.Fqdn(ns),
	}
}

func query(name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.Id = 0x2a2a
	return m
}

func reply(q *dns.Msg, answer []dns.RR, ns []dns.RR, extra []dns.RR) *dns.Msg {
	m := new(dns.Msg)
	m.SetReply(q)
	m.RecursionAvailable = true
	m.Answer = answer
	m.Ns = ns
	m.Extra = extra
	return m
}

func pack(t *testing.T, m *dns.Msg) []byte {
	t.Helper()
	payload, err := m.Pack()
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func serialize(t *testing.T, l ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOptions, l...); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func frameOf(data []byte, offset time.Duration) capture.Frame {
	return capture.Frame{
		Info: gopacket.CaptureInfo{
			Timestamp:      baseTime.Add(offset),
			CaptureLength:  len(data),
			Length:         len(data),
			InterfaceIndex: 1,
		},
		Data: data,
	}
}

func ethernet(ethType layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x53},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x10},
		EthernetType: ethType,
	}
}

func ipv4(src, dst net.IP, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		Id:       0x1234,
		Flags:    layers.IPv4DontFragment,
		TTL:      64,
		Protocol: proto,
		SrcIP:    src,
		DstIP:    dst,
	}
}

// udpFrame builds an Ethernet/IPv4/UDP frame carrying payload.
func udpFrame(t *testing.T, srcPort, dstPort layers.UDPPort, payload []byte, offset time.Duration) capture.Frame {
	t.Helper()
	src, dst := resolverIP, clientIP
	if dstPort == 53 {
		src, dst = clientIP, resolverIP
	}
	ip := ipv4(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: srcPort, DstPort: dstPort}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}
	return frameOf(serialize(t, ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(payload)), offset)
}

func responseFrame(t *testing.T, m *dns.Msg, offset time.Duration) capture.Frame {
	return udpFrame(t, 53, 53000, pack(t, m), offset)
}

func queryFrame(t *testing.T, m *dns.Msg, offset time.Duration) capture.Frame {
	return udpFrame(t, 53000, 53, pack(t, m), offset)
}

func tcpFrame(t *testing.T, offset time.Duration) capture.Frame {
	t.Helper()
	ip := ipv4(clientIP, resolverIP, layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, Seq: 1, ACK: true, PSH: true, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}
	data := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload("GET / HTTP/1.1\r\n\r\n"))
	return frameOf(data, offset)
}

func ipv6ResponseFrame(t *testing.T, m *dns.Msg, offset time.Duration) capture.Frame {
	t.Helper()
	ip := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolUDP,
		HopLimit:   64,
		SrcIP:      resolverIP6,
		DstIP:      clientIP6,
	}
	udp := &layers.UDP{SrcPort: 53, DstPort: 53000}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}
	return frameOf(serialize(t, ethernet(layers.EthernetTypeIPv6), ip, udp, gopacket.Payload(pack(t, m))), offset)
}

func rawResponseFrame(t *testing.T, m *dns.Msg, offset time.Duration) capture.Frame {
	t.Helper()
	ip := ipv4(resolverIP, clientIP, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 53, DstPort: 53000}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}
	return frameOf(serialize(t, ip, udp, gopacket.Payload(pack(t, m))), offset)
}

// tcpSegmentFrame builds an Ethernet/IPv4/TCP frame from port 53 carrying
// segment as is.
func tcpSegmentFrame(t *testing.T, segment []byte, offset time.Duration) capture.Frame {
	t.Helper()
	ip := ipv4(resolverIP, clientIP, layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 53, DstPort: 40053, Seq: 100, Ack: 200, ACK: true, PSH: true, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}
	return frameOf(serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(segment)), offset)
}

func tcpResponseFrame(t *testing.T, m *dns.Msg, offset time.Duration) capture.Frame {
	payload := pack(t, m)
	segment := binary.BigEndian.AppendUint16(nil, uint16(len(payload)))
	return tcpSegmentFrame(t, append(segment, payload...), offset)
}

// decodeDNS returns the DNS message carried by frame, unpacked by miekg/dns.
func decodeDNS(t *testing.T, frame capture.Frame, linkType layers.LinkType) (*dns.Msg, gopacket.Packet) {
	t.Helper()
	packet := gopacket.NewPacket(frame.Data, linkType, gopacket.Default)
	var payload []byte
	switch transport := packet.TransportLayer().(type) {
	case *layers.UDP:
		payload = transport.Payload
	case *layers.TCP:
		payload = transport.Payload[2:]
	default:
		t.Fatalf("no udp or tcp layer in %v", packet)
	}
	m := new(dns.Msg)
	if err := m.Unpack(payload); err != nil {
		t.Fatal(err)
	}
	return m, packet
}

func checksum(data []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(data); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i:]))
	}
	if len(data)%2 == 1 {
		sum += uint32(data[len(data)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(sum)
}

// verifyLengthsAndChecksums checks the IP and UDP or TCP headers of packet
// against its own bytes.
func verifyLengthsAndChecksums(t *testing.T, packet gopacket.Packet) {
	t.Helper()
	transport := packet.TransportLayer()
	if transport == nil {
		t.Fatalf("no transport layer in %v", packet)
	}
	segment := append(append([]byte{}, transport.LayerContents()...), transport.LayerPayload()...)
	proto := layers.IPProtocolTCP
	if udp, ok := transport.(*layers.UDP); ok {
		proto = layers.IPProtocolUDP
		if int(udp.Length) != len(segment) {
			t.Errorf("udp length %d, want %d", udp.Length, len(segment))
		}
	}
	var pseudo []byte
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		if int(ip.Length) != len(ip.Contents)+len(ip.Payload) {
			t.Errorf("ip length %d, want %d", ip.Length, len(ip.Contents)+len(ip.Payload))
		}
		if checksum(ip.Contents) != 0xffff {
			t.Errorf("ip header checksum %#04x is wrong", ip.Checksum)
		}
		pseudo = append(append([]byte{}, ip.SrcIP.To4()...), ip.DstIP.To4()...)
		pseudo = append(pseudo, 0, byte(proto))
		pseudo = binary.BigEndian.AppendUint16(pseudo, uint16(len(segment)))
	case *layers.IPv6:
		if int(ip.Length) != len(ip.Payload) {
			t.Errorf("ipv6 payload length %d, want %d", ip.Length, len(ip.Payload))
		}
		pseudo = append(append([]byte{}, ip.SrcIP.To16()...), ip.DstIP.To16()...)
		pseudo = binary.BigEndian.AppendUint32(pseudo, uint32(len(segment)))
		pseudo = append(pseudo, 0, 0, 0, byte(proto))
	default:
		t.Fatalf("unexpected network layer %v", packet.NetworkLayer())
	}
	if checksum(append(pseudo, segment...)) != 0xffff {
		t.Errorf("%s checksum is wrong", transport.LayerType())
	}
}
