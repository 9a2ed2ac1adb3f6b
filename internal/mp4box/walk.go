// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mp4box

import (
	"errors"
	"fmt"
)

// ErrInvalidBox is returned when a box header declares an impossible size.
var ErrInvalidBox = errors.New("mp4box: invalid box size")

// Action tells Walk how to continue after a box has been visited.
type Action int

const (
	// Continue moves on to the next sibling.
	Continue Action = iota
	// Descend walks the box payload as a list of child boxes, then continues.
	Descend
	// Stop ends the whole walk without error.
	Stop
)

// Box is one parsed box header with its payload.
type Box struct {
	Type    string
	Offset  int // offset of the header within the walked buffer
	Payload []byte
	Depth   int
}

// Visitor is called for every box in document order.
type Visitor func(Box) (Action, error)

// Walk iterates the boxes in data. 64-bit largesize and size 0 ("extends to end
// of buffer") are supported.
func Walk(data []byte, fn Visitor) error {
	_, err := walk(data, 0, fn)
	return err
}

func walk(data []byte, depth int, fn Visitor) (bool, error) {
	r := NewReader(data)
	for r.Remaining() >= 8 {
		start := r.Offset()
		size32, _ := r.Uint32()
		typ, _ := r.Bytes(4)

		size := uint64(size32)
		header := 8
		switch size32 {
		case 1:
			large, err := r.Uint64()
			if err != nil {
				return false, fmt.Errorf("%w: truncated largesize at %d", ErrInvalidBox, start)
			}
			size = large
			header = 16
		case 0:
			size = uint64(len(data) - start)
		}
		if size < uint64(header) || size > uint64(len(data)-start) {
			return false, fmt.Errorf("%w: %q declares %d bytes at offset %d", ErrInvalidBox, typ, size, start)
		}

		box := Box{
			Type:    string(typ),
			Offset:  start,
			Payload: data[start+header : start+int(size)],
			Depth:   depth,
		}
		action, err := fn(box)
		if err != nil {
			return false, err
		}
		switch action {
		case Stop:
			return true, nil
		case Descend:
			stopped, err := walk(box.Payload, depth+1, fn)
			if err != nil || stopped {
				return stopped, err
			}
		}

		if err := r.Skip(int(size) - (r.Offset() - start)); err != nil {
			return false, err
		}
	}
	return false, nil
}
