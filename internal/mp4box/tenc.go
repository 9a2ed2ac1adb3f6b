// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mp4box

// containers lists the boxes whose payload is a plain list of child boxes.
var containers = map[string]bool{
	"moov": true, "trak": true, "mdia": true, "minf": true,
	"stbl": true, "sinf": true, "schi": true, "mvex": true,
}

// sampleEntryHeader is the fixed prefix of encv/enca sample entries before their
// child boxes: 6 reserved + 2 data reference index + the codec specific fields.
var sampleEntryHeader = map[string]int{
	"encv": 8 + 70,
	"enca": 8 + 20,
}

// FindDefaultKID extracts the default key id from the tenc box of an initialization
// segment. ok is false when the segment carries no protection scheme.
func FindDefaultKID(init []byte) (kid []byte, ok bool) {
	var visit Visitor
	visit = func(b Box) (Action, error) {
		switch {
		case containers[b.Type]:
			return Descend, nil
		case b.Type == "stsd":
			// full box header + entry count
			if len(b.Payload) < 8 {
				return Continue, nil
			}
			if err := Walk(b.Payload[8:], visit); err != nil {
				return Continue, nil
			}
			if kid != nil {
				return Stop, nil
			}
			return Continue, nil
		case sampleEntryHeader[b.Type] > 0:
			skip := sampleEntryHeader[b.Type]
			if len(b.Payload) < skip {
				return Continue, nil
			}
			if err := Walk(b.Payload[skip:], visit); err != nil {
				return Continue, nil
			}
			if kid != nil {
				return Stop, nil
			}
			return Continue, nil
		case b.Type == "tenc":
			r := NewReader(b.Payload)
			// version(1) flags(3) reserved(1) pattern(1) isProtected(1) ivSize(1) kid(16)
			if err := r.Skip(8); err != nil {
				return Continue, nil
			}
			id, err := r.Bytes(16)
			if err != nil {
				return Continue, nil
			}
			kid = append([]byte(nil), id...)
			return Stop, nil
		}
		return Continue, nil
	}
	if err := Walk(init, visit); err != nil && kid == nil {
		return nil, false
	}
	return kid, kid != nil
}
