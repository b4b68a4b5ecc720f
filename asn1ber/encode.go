package asn1ber

import (
	"bytes"
	"math/big"
	"sort"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// Encode serializes v as DER according to s.
//
// Lengths use the shortest definite form, SET and SET OF components are
// sorted, and components equal to their DEFAULT are omitted.
func Encode(v *Value, s *Schema) ([]byte, error) {
	return encodeTagged(v, s, s.label())
}

// Marshal is an alias of Encode, mirroring Unmarshal.
func Marshal(v *Value, s *Schema) ([]byte, error) { return Encode(v, s) }

func encodeTagged(v *Value, s *Schema, path string) ([]byte, error) {
	if v == nil {
		return nil, newError(MissingField, "ASN1-ENC-001", path, "nil value")
	}
	inner, err := encodeUntagged(v, s, path)
	if err != nil {
		return nil, err
	}
	if s.Tag == nil {
		return inner, nil
	}
	if s.Tag.Mode == Explicit {
		return appendTLV(nil, s.Tag.Class, s.Tag.Number, true, inner), nil
	}
	// IMPLICIT: keep the inner content and constructed bit, replace the tag.
	n, err := DecodeDER(inner)
	if err != nil {
		return nil, wrapError(EncodeFailure, "ASN1-ENC-002", path, "re-tagging failed", err)
	}
	return appendTLV(nil, s.Tag.Class, s.Tag.Number, n.Constructed, n.Content), nil
}

// encodeUntagged returns the complete universal encoding of v.
func encodeUntagged(v *Value, s *Schema, path string) ([]byte, error) {
	switch s.Kind {
	case KindAny:
		if len(v.Raw) == 0 {
			return nil, newError(EncodeFailure, "ASN1-ENC-003", path, "ANY value has no encoding")
		}
		return append([]byte(nil), v.Raw...), nil
	case KindChoice:
		if v.Choice == nil {
			return nil, newError(MissingField, "ASN1-ENC-004", path, "CHOICE has no selected alternative")
		}
		for _, alt := range s.Fields {
			if alt.Name == v.Choice.Name {
				return encodeTagged(v.Choice.Value, alt.Type, path+"."+alt.Name)
			}
		}
		return nil, newError(SchemaMismatch, "ASN1-ENC-005", path, "unknown CHOICE alternative "+strconv.Quote(v.Choice.Name))
	}

	tag, constructed := s.Kind.universalTag()
	var content []byte
	switch s.Kind {
	case KindSequence:
		for _, f := range s.Fields {
			b, err := encodeField(v, f, path)
			if err != nil {
				return nil, err
			}
			content = append(content, b...)
		}
	case KindSet:
		var parts [][]byte
		for _, f := range s.Fields {
			b, err := encodeField(v, f, path)
			if err != nil {
				return nil, err
			}
			if b != nil {
				parts = append(parts, b)
			}
		}
		content = joinSorted(parts)
	case KindSequenceOf, KindSetOf:
		parts := make([][]byte, 0, len(v.Items))
		for i, item := range v.Items {
			b, err := encodeTagged(item, s.Elem, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			parts = append(parts, b)
		}
		if s.Kind == KindSetOf {
			content = joinSorted(parts)
		} else {
			content = bytes.Join(parts, nil)
		}
	case KindBoolean:
		content = []byte{0x00}
		if v.Bool {
			content[0] = 0xff
		}
	case KindInteger, KindEnumerated:
		i, err := intValue(v, s, path)
		if err != nil {
			return nil, err
		}
		content = encodeInteger(i)
	case KindOctetString:
		content = v.Bytes
	case KindBitString:
		bits := v.Bits
		if bits.BitLength == 0 && len(bits.Bytes) > 0 {
			bits.BitLength = 8 * len(bits.Bytes)
		}
		nbytes := (bits.BitLength + 7) / 8
		if nbytes > len(bits.Bytes) {
			return nil, newError(EncodeFailure, "ASN1-ENC-006", path, "BIT STRING length exceeds data")
		}
		unused := 8*nbytes - bits.BitLength
		content = make([]byte, 1+nbytes)
		content[0] = byte(unused)
		copy(content[1:], bits.Bytes[:nbytes])
		if nbytes > 0 {
			content[nbytes] &= 0xff << uint(unused)
		}
	case KindObjectIdentifier:
		b, err := encodeOID(v, path)
		if err != nil {
			return nil, err
		}
		content = b
	case KindNull:
	case KindGeneralizedTime:
		if v.Time.IsZero() {
			return nil, newError(MissingField, "ASN1-ENC-007", path, "zero time")
		}
		content = []byte(v.Time.UTC().Format("20060102150405.999999999") + "Z")
	case KindUTCTime:
		t := v.Time.UTC()
		if t.Year() < 1950 || t.Year() > 2049 {
			return nil, newError(EncodeFailure, "ASN1-ENC-008", path, "UTCTime out of range")
		}
		content = []byte(t.Format("060102150405") + "Z")
	case KindString:
		tag = s.StringTag
		if tag == 0 {
			tag = TagUTF8String
		}
		b, err := encodeString(tag, v)
		if err != nil {
			return nil, wrapError(EncodeFailure, "ASN1-ENC-009", path, "invalid string", err)
		}
		content = b
	default:
		return nil, newError(SchemaMismatch, "ASN1-ENC-010", path, "unsupported schema kind "+s.Kind.String())
	}
	return appendTLV(nil, ClassUniversal, tag, constructed, content), nil
}

// encodeField returns the encoding of one SEQUENCE/SET component, or nil when
// it is absent or equal to its DEFAULT.
func encodeField(parent *Value, f Field, path string) ([]byte, error) {
	fpath := path + "." + f.Name
	fv := parent.Field(f.Name)
	if fv == nil || fv.Defaulted {
		if f.Type.Optional || f.Type.Default != nil {
			return nil, nil
		}
		return nil, newError(MissingField, "ASN1-ENC-011", fpath, "missing mandatory field")
	}
	b, err := encodeTagged(fv, f.Type, fpath)
	if err != nil {
		return nil, err
	}
	if f.Type.Default != nil {
		def, err := encodeTagged(f.Type.Default, f.Type, fpath)
		if err == nil && bytes.Equal(def, b) {
			return nil, nil
		}
	}
	return b, nil
}

func intValue(v *Value, s *Schema, path string) (*big.Int, error) {
	if v.Int != nil {
		return v.Int, nil
	}
	if v.Name != "" {
		for n, name := range s.Names {
			if name == v.Name {
				return big.NewInt(n), nil
			}
		}
		return nil, newError(EncodeFailure, "ASN1-ENC-012", path, "unknown symbolic value "+strconv.Quote(v.Name))
	}
	return nil, newError(MissingField, "ASN1-ENC-013", path, "missing integer value")
}

func encodeInteger(i *big.Int) []byte {
	switch i.Sign() {
	case 0:
		return []byte{0}
	case 1:
		b := i.Bytes()
		if b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	default:
		// Two's complement of a negative number: invert the bits of |i|-1.
		m := new(big.Int).Neg(i)
		m.Sub(m, big.NewInt(1))
		b := m.Bytes()
		for j := range b {
			b[j] = ^b[j]
		}
		if len(b) == 0 || b[0]&0x80 == 0 {
			b = append([]byte{0xff}, b...)
		}
		return b
	}
}

func encodeOID(v *Value, path string) ([]byte, error) {
	oid := v.OID
	if len(oid) < 2 || oid[0] > 2 || (oid[0] < 2 && oid[1] > 39) {
		return nil, newError(EncodeFailure, "ASN1-ENC-014", path, "invalid OBJECT IDENTIFIER "+oid.String())
	}
	out := appendBase128(nil, oid[0]*40+oid[1])
	for _, arc := range oid[2:] {
		if arc < 0 {
			return nil, newError(EncodeFailure, "ASN1-ENC-014", path, "negative OID arc")
		}
		out = appendBase128(out, arc)
	}
	return out, nil
}

func encodeString(tag int, v *Value) ([]byte, error) {
	s := v.String
	if s == "" && v.Bytes != nil {
		return v.Bytes, nil
	}
	switch tag {
	case TagBMPString:
		u := utf16.Encode([]rune(s))
		out := make([]byte, 0, 2*len(u))
		for _, c := range u {
			out = append(out, byte(c>>8), byte(c))
		}
		return out, nil
	case TagUTF8String:
		if !utf8.ValidString(s) {
			return nil, errInvalidUTF8
		}
	}
	return []byte(s), nil
}

var errInvalidUTF8 = &Error{Kind: EncodeFailure, RuleID: "ASN1-ENC-015", Message: "invalid UTF-8"}

func joinSorted(parts [][]byte) []byte {
	sort.Slice(parts, func(i, j int) bool { return bytes.Compare(parts[i], parts[j]) < 0 })
	return bytes.Join(parts, nil)
}

func appendTLV(dst []byte, class Class, tag int, constructed bool, content []byte) []byte {
	id := byte(class) << 6
	if constructed {
		id |= 0x20
	}
	if tag < 0x1f {
		dst = append(dst, id|byte(tag))
	} else {
		dst = append(dst, id|0x1f)
		dst = appendBase128(dst, tag)
	}
	dst = appendLength(dst, len(content))
	return append(dst, content...)
}

func appendLength(dst []byte, n int) []byte {
	if n < 0x80 {
		return append(dst, byte(n))
	}
	var tmp [8]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte(n)
		n >>= 8
	}
	dst = append(dst, 0x80|byte(len(tmp)-i))
	return append(dst, tmp[i:]...)
}

func appendBase128(dst []byte, n int) []byte {
	if n == 0 {
		return append(dst, 0)
	}
	var tmp [10]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte(n & 0x7f)
		if i != len(tmp)-1 {
			tmp[i] |= 0x80
		}
		n >>= 7
	}
	return append(dst, tmp[i:]...)
}

// TLV encodes one element from its parts. It is exported for callers that
// assemble structures outside a schema, such as extension values.
func TLV(class Class, tag int, constructed bool, content []byte) []byte {
	return appendTLV(nil, class, tag, constructed, content)
}
