package rewriter

import (
	"fmt"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var serializeOptions = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

// recomputeIPLengthAndChecksums rebuilds the frame from its network layer
// down to transport, which now carries payload. Link-layer header and trailer
// bytes are kept verbatim, IP lengths and IP/UDP/TCP checksums are computed for
// the new payload.
func recomputeIPLengthAndChecksums(packet gopacket.Packet, transport transportLayer, payload []byte) ([]byte, error) {
	network := packet.NetworkLayer()
	if network == nil {
		return nil, fmt.Errorf("%w: no network layer", ErrSerialize)
	}
	all := packet.Layers()
	prefix, start := 0, -1
	for i, layer := range all {
		if layer == network {
			start = i
			break
		}
		prefix += len(layer.LayerContents())
	}
	if start == -1 || prefix > len(packet.Data()) {
		return nil, fmt.Errorf("%w: network layer not found", ErrSerialize)
	}
	stack := make([]gopacket.SerializableLayer, 0, len(all)-start+1)
	var lastNetwork gopacket.NetworkLayer
	found := false
	for _, layer := range all[start:] {
		switch typed := layer.(type) {
		case *layers.IPv4:
			lastNetwork = typed
		case *layers.IPv6:
			lastNetwork = typed
		}
		serializable, ok := layer.(gopacket.SerializableLayer)
		if !ok {
			return nil, fmt.Errorf("%w: %s layer is not serializable", ErrSerialize, layer.LayerType())
		}
		stack = append(stack, serializable)
		if layer == gopacket.Layer(transport) {
			found = true
			break
		}
	}
	if lastNetwork == nil || !found {
		return nil, fmt.Errorf("%w: no ip/%s stack", ErrSerialize, transport.LayerType())
	}
	if err := transport.SetNetworkLayerForChecksum(lastNetwork); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	stack = append(stack, gopacket.Payload(payload))
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOptions, stack...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	var trailer []byte
	if end := prefix + len(network.LayerContents()) + len(network.LayerPayload()); end < len(packet.Data()) {
		trailer = packet.Data()[end:]
	}
	data := make([]byte, 0, prefix+len(buf.Bytes())+len(trailer))
	data = append(data, packet.Data()[:prefix]...)
	data = append(data, buf.Bytes()...)
	return append(data, trailer...), nil
}
