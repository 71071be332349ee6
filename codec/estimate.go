package codec

import "xdao.co/acttoken/action"

// Per-item worst case for a CBOR head: initial byte plus an 8-byte
// argument. Canonical encoding always uses fewer bytes; the estimate
// only has to be a sound upper bound.
const headMax = 9

// EstimateSize returns a cheap upper bound on len(Canonicalize(a)).
//
// It walks the parameter tree and sums worst-case CBOR heads without
// marshaling, so strategy selection can rule out the inline tiers for
// obviously large records before paying for a real encode, and without
// ever running the compressor.
func EstimateSize(a action.Action) int {
	// Envelope map head + "h" key + handler + "p" key.
	n := headMax
	n += headMax + 1 + headMax + len(a.Handler)
	if len(a.Params) > 0 {
		n += headMax + 1
		n += headMax // params map head
		for k, v := range a.Params {
			n += headMax + len(k)
			n += estimateValue(v)
		}
	}
	return n
}

func estimateValue(v action.Value) int {
	switch v.Kind() {
	case action.KindNull, action.KindBool:
		return 1
	case action.KindInt, action.KindFloat:
		return headMax
	case action.KindString:
		s, _ := v.AsString()
		return headMax + len(s)
	case action.KindBytes:
		b, _ := v.AsBytes()
		return headMax + len(b)
	case action.KindList:
		list, _ := v.AsList()
		n := headMax
		for _, e := range list {
			n += estimateValue(e)
		}
		return n
	case action.KindMap:
		m, _ := v.AsMap()
		n := headMax
		for k, e := range m {
			n += headMax + len(k)
			n += estimateValue(e)
		}
		return n
	default:
		return headMax
	}
}
