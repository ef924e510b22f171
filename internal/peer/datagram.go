package peer

import (
	"encoding/binary"
	"errors"
	"io"

	coreerrors "peerbridge/internal/core/errors"
)

// MaxDatagramSize 单个分帧数据报的最大负载
const MaxDatagramSize = 65535

// ErrEmptyDatagram 不允许写入空数据报
var ErrEmptyDatagram = coreerrors.New(coreerrors.CodeInvalidParam, "empty datagram")

// WriteFramedDatagram 以 2 字节大端长度前缀写入一个数据报
func WriteFramedDatagram(w io.Writer, p []byte) error {
	if len(p) == 0 {
		return ErrEmptyDatagram
	}
	if len(p) > MaxDatagramSize {
		return coreerrors.Wrapf(coreerrors.ErrPacketTooLarge, coreerrors.CodePacketTooLarge, "datagram size %d", len(p))
	}

	buf := make([]byte, 2+len(p))
	binary.BigEndian.PutUint16(buf, uint16(len(p)))
	copy(buf[2:], p)
	_, err := w.Write(buf)
	return err
}

// ReadFramedDatagram 读取一个分帧数据报
//
// 在帧边界遇到 EOF 返回 io.EOF，帧中途断开返回 io.ErrUnexpectedEOF。
func ReadFramedDatagram(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	size := binary.BigEndian.Uint16(lenBuf[:])
	if size == 0 {
		return nil, coreerrors.Wrap(ErrEmptyDatagram, coreerrors.CodeProtocolError, "zero-length frame")
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
