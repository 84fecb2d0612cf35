package streamer

import (
	"encoding/binary"
	"fmt"
)

// Arrange modes of the sensor output.
const (
	// ArrangeInterleaved packs all fields of one pixel together.
	ArrangeInterleaved = 0
	// ArrangePlanes writes the phase plane followed by the amplitude plane.
	ArrangePlanes = 2
)

// Layout describes how pixels are packed in a raw payload.
type Layout struct {
	BytesPerPixel uint32
	ArrangeMode   int
}

// DefaultLayout is 4 bytes per pixel, interleaved.
var DefaultLayout = Layout{BytesPerPixel: 4, ArrangeMode: ArrangeInterleaved}

func (l Layout) Validate() error {
	if l.BytesPerPixel != 2 && l.BytesPerPixel != 4 {
		return fmt.Errorf("bytes per pixel %d: %w", l.BytesPerPixel, ErrLayout)
	}
	if l.ArrangeMode != ArrangeInterleaved && l.ArrangeMode != ArrangePlanes {
		return fmt.Errorf("arrange mode %d: %w", l.ArrangeMode, ErrLayout)
	}
	if l.BytesPerPixel == 2 && l.ArrangeMode == ArrangePlanes {
		return fmt.Errorf("16-bit output has no amplitude plane: %w", ErrLayout)
	}
	return nil
}

// Pixel is one decoded ToF sample. Phase and Amplitude are 12-bit.
type Pixel struct {
	Phase     uint16
	Amplitude uint16
	Ambient   uint8
	Flags     uint8
}

// A 4-byte pixel is two little-endian half-words:
//
//	lo: phase[11:0] | ambient[3:0]<<12
//	hi: amplitude[11:0] | flags[3:0]<<12
//
// A 2-byte pixel keeps the phase and the top nibble of the amplitude:
//
//	phase[11:0] | amplitude[11:8]<<12
func lo(p Pixel) uint16 { return p.Phase&0xFFF | uint16(p.Ambient&0xF)<<12 }
func hi(p Pixel) uint16 { return p.Amplitude&0xFFF | uint16(p.Flags&0xF)<<12 }

// Encode packs pixels into out, which must hold len(pixels)*BytesPerPixel bytes.
func Encode(l Layout, pixels []Pixel, out []byte) error {
	if err := l.Validate(); err != nil {
		return err
	}
	n := len(pixels)
	if len(out) < n*int(l.BytesPerPixel) {
		return fmt.Errorf("encode %d pixels into %d bytes: %w", n, len(out), ErrShortPayload)
	}
	le := binary.LittleEndian
	for i, p := range pixels {
		switch {
		case l.BytesPerPixel == 2:
			le.PutUint16(out[2*i:], p.Phase&0xFFF|(p.Amplitude>>8&0xF)<<12)
		case l.ArrangeMode == ArrangePlanes:
			le.PutUint16(out[2*i:], lo(p))
			le.PutUint16(out[2*(n+i):], hi(p))
		default:
			le.PutUint16(out[4*i:], lo(p))
			le.PutUint16(out[4*i+2:], hi(p))
		}
	}
	return nil
}

// Decode unpacks len(phase) pixels from in. All four planes must have the
// same length.
func Decode(l Layout, in []byte, phase, amplitude []uint16, ambient, flags []uint8) error {
	if err := l.Validate(); err != nil {
		return err
	}
	n := len(phase)
	if len(amplitude) != n || len(ambient) != n || len(flags) != n {
		return fmt.Errorf("decode: plane lengths differ: %w", ErrLayout)
	}
	if len(in) < n*int(l.BytesPerPixel) {
		return fmt.Errorf("decode %d pixels from %d bytes: %w", n, len(in), ErrShortPayload)
	}
	le := binary.LittleEndian
	for i := range n {
		var a, b uint16
		switch {
		case l.BytesPerPixel == 2:
			w := le.Uint16(in[2*i:])
			phase[i] = w & 0xFFF
			amplitude[i] = (w >> 12) << 8
			ambient[i], flags[i] = 0, 0
			continue
		case l.ArrangeMode == ArrangePlanes:
			a, b = le.Uint16(in[2*i:]), le.Uint16(in[2*(n+i):])
		default:
			a, b = le.Uint16(in[4*i:]), le.Uint16(in[4*i+2:])
		}
		phase[i] = a & 0xFFF
		ambient[i] = uint8(a >> 12)
		amplitude[i] = b & 0xFFF
		flags[i] = uint8(b >> 12)
	}
	return nil
}
