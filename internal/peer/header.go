package peer

import (
	"encoding/binary"
	"fmt"
	"io"

	coreerrors "peerbridge/internal/core/errors"
)

// Protocol 流上承载的协议
type Protocol uint8

const (
	ProtocolHTTP Protocol = iota + 1
	ProtocolTCP
	ProtocolUDP
	ProtocolPing
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	case ProtocolPing:
		return "ping"
	default:
		return fmt.Sprintf("protocol(%d)", uint8(p))
	}
}

// ParseProtocol 从名称解析协议
func ParseProtocol(name string) (Protocol, error) {
	switch name {
	case "http":
		return ProtocolHTTP, nil
	case "tcp":
		return ProtocolTCP, nil
	case "udp":
		return ProtocolUDP, nil
	case "ping":
		return ProtocolPing, nil
	}
	return 0, coreerrors.Newf(coreerrors.CodeProtocolError, "unknown protocol %q", name)
}

// ProtocolHeader 每条流开头的协议标签
type ProtocolHeader struct {
	Protocol Protocol
	Extra    []byte
}

// Preface 流前导：协议头以及两端标识
type Preface struct {
	Header ProtocolHeader
	Source string
	Target string
}

const (
	prefaceMagic0   = 'P'
	prefaceMagic1   = 'B'
	prefaceVersion  = 1
	prefaceFixedLen = 2 + 1 + 1 + IDLength*2 + 2
	maxExtraLen     = 0xFFFF
)

// WritePreface 写入流前导
func WritePreface(w io.Writer, p Preface) error {
	if err := ValidateID(p.Source); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeProtocolError, "invalid source id")
	}
	if err := ValidateID(p.Target); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeProtocolError, "invalid target id")
	}
	if len(p.Header.Extra) > maxExtraLen {
		return coreerrors.Newf(coreerrors.CodeProtocolError, "header extra too large: %d", len(p.Header.Extra))
	}

	buf := make([]byte, prefaceFixedLen, prefaceFixedLen+len(p.Header.Extra))
	buf[0], buf[1] = prefaceMagic0, prefaceMagic1
	buf[2] = prefaceVersion
	buf[3] = byte(p.Header.Protocol)
	copy(buf[4:4+IDLength], p.Source)
	copy(buf[4+IDLength:4+IDLength*2], p.Target)
	binary.BigEndian.PutUint16(buf[4+IDLength*2:], uint16(len(p.Header.Extra)))
	buf = append(buf, p.Header.Extra...)

	_, err := w.Write(buf)
	return err
}

// ReadPreface 读取流前导
func ReadPreface(r io.Reader) (Preface, error) {
	var p Preface
	buf := make([]byte, prefaceFixedLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return p, coreerrors.Wrap(err, coreerrors.CodeProtocolError, "read preface")
	}
	if buf[0] != prefaceMagic0 || buf[1] != prefaceMagic1 {
		return p, coreerrors.New(coreerrors.CodeProtocolError, "bad preface magic")
	}
	if buf[2] != prefaceVersion {
		return p, coreerrors.Newf(coreerrors.CodeProtocolError, "unsupported preface version %d", buf[2])
	}

	p.Header.Protocol = Protocol(buf[3])
	p.Source = string(buf[4 : 4+IDLength])
	p.Target = string(buf[4+IDLength : 4+IDLength*2])

	extraLen := binary.BigEndian.Uint16(buf[4+IDLength*2:])
	if extraLen > 0 {
		p.Header.Extra = make([]byte, extraLen)
		if _, err := io.ReadFull(r, p.Header.Extra); err != nil {
			return p, coreerrors.Wrap(err, coreerrors.CodeProtocolError, "read preface extra")
		}
	}
	return p, nil
}
