// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"spectrum/internal/analysis"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Bass Fast         | float32        | 4            | Fast bass envelope      |
| Bass Smooth       | float32        | 4            | Slow bass envelope      |
| Band Count        | uint16         | 2            | Number of floats (N)    |
| Bands             | []float32      | N * 4        | Log-spaced band levels  |
+-----------------------------------------------------------------------------+
*/

// HeaderSize is the packet size without bands.
const HeaderSize = 4 + 8 + 4 + 4 + 2

// MaxBands is the largest band count a packet can carry.
const MaxBands = math.MaxUint16

// Packet is a decoded frame packet.
type Packet struct {
	Seq        uint32
	Timestamp  int64
	BassFast   float32
	BassSmooth float32
	Bands      []float32
}

// AppendPacket appends the encoding of f to buf. It does not allocate when
// buf already has room for the packet.
func AppendPacket(buf *bytes.Buffer, seq uint32, timestamp int64, f *analysis.Frame) error {
	if len(f.Bands) > MaxBands {
		return fmt.Errorf("%d bands exceed the packet limit of %d", len(f.Bands), MaxBands)
	}
	buf.Grow(HeaderSize + 4*len(f.Bands))

	b := buf.AvailableBuffer()
	b = binary.BigEndian.AppendUint32(b, seq)
	b = binary.BigEndian.AppendUint64(b, uint64(timestamp))
	b = binary.BigEndian.AppendUint32(b, math.Float32bits(float32(f.BassFast)))
	b = binary.BigEndian.AppendUint32(b, math.Float32bits(float32(f.BassSmooth)))
	b = binary.BigEndian.AppendUint16(b, uint16(len(f.Bands)))
	for _, v := range f.Bands {
		b = binary.BigEndian.AppendUint32(b, math.Float32bits(float32(v)))
	}
	buf.Write(b)
	return nil
}

// ParsePacket decodes a packet produced by AppendPacket.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, errors.New("packet shorter than header")
	}
	p := Packet{
		Seq:        binary.BigEndian.Uint32(b[0:]),
		Timestamp:  int64(binary.BigEndian.Uint64(b[4:])),
		BassFast:   math.Float32frombits(binary.BigEndian.Uint32(b[12:])),
		BassSmooth: math.Float32frombits(binary.BigEndian.Uint32(b[16:])),
	}
	n := int(binary.BigEndian.Uint16(b[20:]))
	body := b[HeaderSize:]
	if len(body) != 4*n {
		return Packet{}, fmt.Errorf("packet declares %d bands but carries %d bytes", n, len(body))
	}
	p.Bands = make([]float32, n)
	for i := range p.Bands {
		p.Bands[i] = math.Float32frombits(binary.BigEndian.Uint32(body[4*i:]))
	}
	return p, nil
}
