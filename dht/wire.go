package dht

import (
	"encoding/binary"
	"fmt"
	"net"
)

// MaxMessageSize bounds the serialized size of a single RPC message, and
// therefore the receive buffer RecvOne reads into. 64 KiB is about the
// largest payload one UDP datagram can carry (over IPv4 the limit is 65,507
// bytes, so a message within 29 bytes of this bound fails to send), and well
// below the 1 MiB-100 MiB range the specification allows.
const MaxMessageSize = 64 * 1024

// RequestKind is the sum type of request payloads a message can carry:
// Ping, FindNode, Store, or FindValue.
type RequestKind interface {
	isRequestKind()
}

// Ping is a liveness probe; the expected reply is Pong.
type Ping struct{}

// FindNode asks the recipient for the k nodes it knows closest to Target.
type FindNode struct {
	Target NodeID
}

// Store asks the recipient to hold Value under Key. There is no reply.
type Store struct {
	Key   NodeID
	Value []byte
}

// FindValue asks the recipient for the value stored under Key, or failing
// that, the k nodes it knows closest to Key.
type FindValue struct {
	Key NodeID
}

func (Ping) isRequestKind()      {}
func (FindNode) isRequestKind()  {}
func (Store) isRequestKind()     {}
func (FindValue) isRequestKind() {}

// ResponseKind is the sum type of response payloads a message can carry:
// Pong, FindNodeResult, or FindValueResult.
type ResponseKind interface {
	isResponseKind()
}

// Pong answers a Ping.
type Pong struct{}

// FindNodeResult answers a FindNode request with up to K entries.
type FindNodeResult struct {
	Entries []Entry
}

// FindValueResult answers a FindValue request with exactly one of a value
// (ValueFound) or closer nodes to try (CloserNodes).
type FindValueResult struct {
	Response FindValueResponse
}

func (Pong) isResponseKind()            {}
func (FindNodeResult) isResponseKind()  {}
func (FindValueResult) isResponseKind() {}

// FindValueResponse is the sum type a FindValueResult carries.
type FindValueResponse interface {
	isFindValueResponse()
}

// ValueFound carries the value itself. Key is echoed back so a lookup
// driver juggling more than one in-flight key can reject a stale reply.
type ValueFound struct {
	Key   NodeID
	Value []byte
}

// CloserNodes carries up to K nodes closer to the requested key, when the
// responder doesn't hold the value itself.
type CloserNodes struct {
	Entries []Entry
}

func (ValueFound) isFindValueResponse()  {}
func (CloserNodes) isFindValueResponse() {}

// MessageKind is the outer sum type of an RPCMessage: either a Request
// carrying a RequestKind, or a Response carrying a ResponseKind.
type MessageKind interface {
	isMessageKind()
}

// Request wraps a request payload.
type Request struct {
	Kind RequestKind
}

// Response wraps a response payload.
type Response struct {
	Kind ResponseKind
}

func (Request) isMessageKind()  {}
func (Response) isMessageKind() {}

// RPCMessage is a single wire message: the sender's NodeID and either a
// request or a response payload.
type RPCMessage struct {
	Sender NodeID
	Kind   MessageKind
}

// Wire tags. Requests and responses share one tag space so a single byte
// identifies both the direction and the payload shape, in the style of
// this repository's packet-type byte framing.
const (
	tagPing           byte = 0x01
	tagFindNode       byte = 0x02
	tagStore          byte = 0x03
	tagFindValue      byte = 0x04
	tagPong           byte = 0x81
	tagFindNodeResult byte = 0x82
	tagValueFound     byte = 0x83
	tagCloserNodes    byte = 0x84
)

// encodeMessage serializes msg into a length-bounded byte string: a NodeID
// (20 raw bytes), a one-byte kind tag, and a tag-specific payload.
func encodeMessage(msg RPCMessage) ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, msg.Sender[:]...)

	switch k := msg.Kind.(type) {
	case Request:
		switch r := k.Kind.(type) {
		case Ping:
			buf = append(buf, tagPing)
		case FindNode:
			buf = append(buf, tagFindNode)
			buf = append(buf, r.Target[:]...)
		case Store:
			buf = append(buf, tagStore)
			buf = append(buf, r.Key[:]...)
			buf = appendBytes(buf, r.Value)
		case FindValue:
			buf = append(buf, tagFindValue)
			buf = append(buf, r.Key[:]...)
		default:
			return nil, fmt.Errorf("dht: unknown request kind %T", r)
		}
	case Response:
		switch r := k.Kind.(type) {
		case Pong:
			buf = append(buf, tagPong)
		case FindNodeResult:
			buf = append(buf, tagFindNodeResult)
			buf = appendEntries(buf, r.Entries)
		case FindValueResult:
			switch fv := r.Response.(type) {
			case ValueFound:
				buf = append(buf, tagValueFound)
				buf = append(buf, fv.Key[:]...)
				buf = appendBytes(buf, fv.Value)
			case CloserNodes:
				buf = append(buf, tagCloserNodes)
				buf = appendEntries(buf, fv.Entries)
			default:
				return nil, fmt.Errorf("dht: unknown find-value response %T", fv)
			}
		default:
			return nil, fmt.Errorf("dht: unknown response kind %T", r)
		}
	default:
		return nil, fmt.Errorf("dht: unknown message kind %T", k)
	}

	if len(buf) > MaxMessageSize {
		return nil, &Error{Kind: ErrCodec, Msg: fmt.Sprintf("message too large: %d bytes", len(buf))}
	}
	return buf, nil
}

// decodeMessage parses the wire format encodeMessage produces.
func decodeMessage(data []byte) (RPCMessage, error) {
	if len(data) > MaxMessageSize {
		return RPCMessage{}, &Error{Kind: ErrCodec, Msg: fmt.Sprintf("message too large: %d bytes", len(data))}
	}
	if len(data) < idLength+1 {
		return RPCMessage{}, &Error{Kind: ErrCodec, Msg: "message too short"}
	}

	var sender NodeID
	copy(sender[:], data[:idLength])
	rest := data[idLength:]
	tag := rest[0]
	rest = rest[1:]

	switch tag {
	case tagPing:
		return RPCMessage{Sender: sender, Kind: Request{Kind: Ping{}}}, nil
	case tagFindNode:
		target, _, err := takeNodeID(rest)
		if err != nil {
			return RPCMessage{}, err
		}
		return RPCMessage{Sender: sender, Kind: Request{Kind: FindNode{Target: target}}}, nil
	case tagStore:
		key, rest, err := takeNodeID(rest)
		if err != nil {
			return RPCMessage{}, err
		}
		value, _, err := takeBytes(rest)
		if err != nil {
			return RPCMessage{}, err
		}
		return RPCMessage{Sender: sender, Kind: Request{Kind: Store{Key: key, Value: value}}}, nil
	case tagFindValue:
		key, _, err := takeNodeID(rest)
		if err != nil {
			return RPCMessage{}, err
		}
		return RPCMessage{Sender: sender, Kind: Request{Kind: FindValue{Key: key}}}, nil
	case tagPong:
		return RPCMessage{Sender: sender, Kind: Response{Kind: Pong{}}}, nil
	case tagFindNodeResult:
		entries, _, err := takeEntries(rest)
		if err != nil {
			return RPCMessage{}, err
		}
		return RPCMessage{Sender: sender, Kind: Response{Kind: FindNodeResult{Entries: entries}}}, nil
	case tagValueFound:
		key, rest, err := takeNodeID(rest)
		if err != nil {
			return RPCMessage{}, err
		}
		value, _, err := takeBytes(rest)
		if err != nil {
			return RPCMessage{}, err
		}
		return RPCMessage{Sender: sender, Kind: Response{Kind: FindValueResult{Response: ValueFound{Key: key, Value: value}}}}, nil
	case tagCloserNodes:
		entries, _, err := takeEntries(rest)
		if err != nil {
			return RPCMessage{}, err
		}
		return RPCMessage{Sender: sender, Kind: Response{Kind: FindValueResult{Response: CloserNodes{Entries: entries}}}}, nil
	default:
		return RPCMessage{}, &Error{Kind: ErrCodec, Msg: fmt.Sprintf("unknown message tag 0x%02x", tag)}
	}
}

func appendBytes(buf []byte, data []byte) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

func takeBytes(data []byte) (value []byte, rest []byte, err error) {
	if len(data) < 2 {
		return nil, nil, &Error{Kind: ErrCodec, Msg: "truncated length prefix"}
	}
	n := int(binary.BigEndian.Uint16(data[:2]))
	data = data[2:]
	if len(data) < n {
		return nil, nil, &Error{Kind: ErrCodec, Msg: "truncated byte string"}
	}
	value = make([]byte, n)
	copy(value, data[:n])
	return value, data[n:], nil
}

func takeNodeID(data []byte) (id NodeID, rest []byte, err error) {
	if len(data) < idLength {
		return NodeID{}, nil, &Error{Kind: ErrCodec, Msg: "truncated NodeID"}
	}
	copy(id[:], data[:idLength])
	return id, data[idLength:], nil
}

// appendEntries serializes a list of Entry as a one-byte count followed by,
// for each entry, its NodeID and UDP address (a one-byte IP length, the IP
// bytes, and a two-byte port). Lists longer than K never occur in practice
// since closestK bounds its results, but the count byte itself permits up
// to 255 for robustness against a misbehaving peer's encoder.
func appendEntries(buf []byte, entries []Entry) []byte {
	buf = append(buf, byte(len(entries)))
	for _, e := range entries {
		buf = append(buf, e.NodeID[:]...)
		buf = appendAddr(buf, e.Addr)
	}
	return buf
}

func takeEntries(data []byte) (entries []Entry, rest []byte, err error) {
	if len(data) < 1 {
		return nil, nil, &Error{Kind: ErrCodec, Msg: "truncated entry count"}
	}
	count := int(data[0])
	data = data[1:]

	entries = make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		var id NodeID
		id, data, err = takeNodeID(data)
		if err != nil {
			return nil, nil, err
		}
		var addr net.Addr
		addr, data, err = takeAddr(data)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, Entry{NodeID: id, Addr: addr})
	}
	return entries, data, nil
}

func appendAddr(buf []byte, addr net.Addr) []byte {
	udp, ok := addr.(*net.UDPAddr)
	if !ok {
		udp = &net.UDPAddr{}
	}
	ip4 := udp.IP.To4()
	var ipBytes []byte
	if ip4 != nil {
		ipBytes = ip4
	} else if udp.IP != nil {
		ipBytes = udp.IP.To16()
	}

	buf = append(buf, byte(len(ipBytes)))
	buf = append(buf, ipBytes...)
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], uint16(udp.Port))
	return append(buf, portBuf[:]...)
}

func takeAddr(data []byte) (net.Addr, []byte, error) {
	if len(data) < 1 {
		return nil, nil, &Error{Kind: ErrCodec, Msg: "truncated address"}
	}
	ipLen := int(data[0])
	data = data[1:]
	if ipLen != 0 && ipLen != 4 && ipLen != 16 {
		return nil, nil, &Error{Kind: ErrCodec, Msg: fmt.Sprintf("invalid address IP length %d", ipLen)}
	}
	if len(data) < ipLen+2 {
		return nil, nil, &Error{Kind: ErrCodec, Msg: "truncated address body"}
	}

	ip := make(net.IP, ipLen)
	copy(ip, data[:ipLen])
	data = data[ipLen:]
	port := int(binary.BigEndian.Uint16(data[:2]))
	data = data[2:]

	var addr net.Addr = &net.UDPAddr{IP: ip, Port: port}
	return addr, data, nil
}
