package asn1ber

// MaxDepth bounds the nesting of constructed elements accepted by the decoder.
const MaxDepth = 64

type decoder struct {
	buf []byte
	der bool
}

// Decode parses exactly one BER element from b. Definite and (constructed)
// indefinite lengths are accepted; trailing bytes are an error.
func Decode(b []byte) (*Node, error) {
	return decodeOne(b, false)
}

// DecodeDER is Decode restricted to the distinguished encoding rules:
// definite lengths only, in their shortest form.
func DecodeDER(b []byte) (*Node, error) {
	return decodeOne(b, true)
}

// DecodeAll parses a concatenation of BER elements.
func DecodeAll(b []byte) ([]*Node, error) {
	d := decoder{buf: b}
	var out []*Node
	for off := 0; off < len(b); {
		n, next, err := d.element(off, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		off = next
	}
	return out, nil
}

func decodeOne(b []byte, der bool) (*Node, error) {
	if len(b) == 0 {
		return nil, offsetError(Truncated, "ASN1-HDR-001", 0, "empty input")
	}
	d := decoder{buf: b, der: der}
	n, next, err := d.element(0, 0)
	if err != nil {
		return nil, err
	}
	if next != len(b) {
		return nil, offsetError(Malformed, "ASN1-HDR-002", next, "trailing data after element")
	}
	return n, nil
}

// element parses one element starting at off and returns it together with
// the offset just past it.
func (d *decoder) element(off, depth int) (*Node, int, error) {
	if depth > MaxDepth {
		return nil, 0, offsetError(Malformed, "ASN1-HDR-003", off, "nesting too deep")
	}
	n := &Node{Offset: off}
	p := off

	// Identifier octets.
	if p >= len(d.buf) {
		return nil, 0, offsetError(Truncated, "ASN1-HDR-001", p, "missing identifier")
	}
	id := d.buf[p]
	p++
	n.Class = Class(id >> 6)
	n.Constructed = id&0x20 != 0
	n.Tag = int(id & 0x1f)
	if n.Tag == 0x1f {
		tag, next, err := d.highTag(p)
		if err != nil {
			return nil, 0, err
		}
		n.Tag, p = tag, next
	}

	// Length octets.
	if p >= len(d.buf) {
		return nil, 0, offsetError(Truncated, "ASN1-LEN-001", p, "missing length")
	}
	lb := d.buf[p]
	p++
	switch {
	case lb < 0x80:
		return d.definite(n, off, p, int(lb), depth)
	case lb == 0x80:
		if d.der {
			return nil, 0, offsetError(Indefinite, "ASN1-LEN-010", off, "indefinite length not allowed in DER")
		}
		if !n.Constructed {
			return nil, 0, offsetError(Indefinite, "ASN1-LEN-011", off, "indefinite length on primitive element")
		}
		return d.indefinite(n, off, p, depth)
	case lb == 0xff:
		return nil, 0, offsetError(Malformed, "ASN1-LEN-002", p-1, "reserved length octet")
	default:
		count := int(lb & 0x7f)
		if count > 4 {
			return nil, 0, offsetError(Malformed, "ASN1-LEN-003", p-1, "length too large")
		}
		if p+count > len(d.buf) {
			return nil, 0, offsetError(Truncated, "ASN1-LEN-001", p, "truncated length")
		}
		length := 0
		for i := 0; i < count; i++ {
			length = length<<8 | int(d.buf[p+i])
		}
		if d.der {
			if d.buf[p] == 0 || length < 0x80 {
				return nil, 0, offsetError(Malformed, "ASN1-LEN-004", p-1, "non-minimal length encoding")
			}
		}
		p += count
		return d.definite(n, off, p, length, depth)
	}
}

func (d *decoder) highTag(p int) (int, int, error) {
	tag := 0
	for i := 0; ; i++ {
		if p >= len(d.buf) {
			return 0, 0, offsetError(Truncated, "ASN1-HDR-004", p, "truncated tag number")
		}
		b := d.buf[p]
		p++
		if i == 0 && b == 0x80 {
			return 0, 0, offsetError(Malformed, "ASN1-HDR-005", p-1, "tag number has leading zero")
		}
		if i >= 4 {
			return 0, 0, offsetError(Malformed, "ASN1-HDR-006", p-1, "tag number too large")
		}
		tag = tag<<7 | int(b&0x7f)
		if b&0x80 == 0 {
			break
		}
	}
	if tag < 0x1f && d.der {
		return 0, 0, offsetError(Malformed, "ASN1-HDR-007", p, "low tag number in high-tag form")
	}
	return tag, p, nil
}

func (d *decoder) definite(n *Node, off, start, length, depth int) (*Node, int, error) {
	end := start + length
	if length < 0 || end > len(d.buf) {
		return nil, 0, offsetError(Truncated, "ASN1-LEN-005", start, "content extends past end of input")
	}
	n.Raw = d.buf[off:end:end]
	n.Content = d.buf[start:end:end]
	if !n.Constructed {
		return n, end, nil
	}
	for p := start; p < end; {
		child, next, err := d.element(p, depth+1)
		if err != nil {
			return nil, 0, err
		}
		if next > end {
			return nil, 0, offsetError(Malformed, "ASN1-LEN-006", p, "child overruns parent length")
		}
		n.Children = append(n.Children, child)
		p = next
	}
	return n, end, nil
}

func (d *decoder) indefinite(n *Node, off, start, depth int) (*Node, int, error) {
	n.Indefinite = true
	for p := start; ; {
		if p+1 < len(d.buf) && d.buf[p] == 0 && d.buf[p+1] == 0 {
			end := p + 2
			n.Raw = d.buf[off:end:end]
			n.Content = d.buf[start:p:p]
			return n, end, nil
		}
		if p >= len(d.buf) {
			return nil, 0, offsetError(Indefinite, "ASN1-LEN-012", off, "unterminated indefinite-length element")
		}
		child, next, err := d.element(p, depth+1)
		if err != nil {
			if IsKind(err, Truncated) {
				return nil, 0, wrapError(Indefinite, "ASN1-LEN-012", "", "unterminated indefinite-length element", err)
			}
			return nil, 0, err
		}
		n.Children = append(n.Children, child)
		p = next
	}
}
