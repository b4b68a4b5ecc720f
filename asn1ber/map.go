package asn1ber

import (
	"encoding/asn1"
	"errors"
	"math/big"
	"strconv"
	"time"
	"unicode/utf16"
)

// Map projects a decoded element onto schema s.
func Map(n *Node, s *Schema) (*Value, error) {
	if n == nil {
		return nil, newError(MissingField, "ASN1-MAP-001", s.label(), "no element")
	}
	return mapNode(n, s, s.label())
}

// Unmarshal is Decode followed by Map.
func Unmarshal(b []byte, s *Schema) (*Value, error) {
	n, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return Map(n, s)
}

func mapNode(n *Node, s *Schema, path string) (*Value, error) {
	if s.Tag != nil {
		if n.Class != s.Tag.Class || n.Tag != s.Tag.Number {
			return nil, mismatch(path, n, "expected ["+s.Tag.Class.String()+" "+strconv.Itoa(s.Tag.Number)+"]")
		}
		if s.Tag.Mode == Explicit {
			if !n.Constructed || len(n.Children) != 1 {
				return nil, newError(SchemaMismatch, "ASN1-MAP-002", path, "explicit tag must wrap exactly one element")
			}
			return mapUntagged(n.Children[0], s, path)
		}
		return mapContent(n, s, path)
	}
	return mapUntagged(n, s, path)
}

// mapUntagged maps n against s ignoring s.Tag.
func mapUntagged(n *Node, s *Schema, path string) (*Value, error) {
	switch s.Kind {
	case KindAny:
		return &Value{Kind: KindAny, Raw: n.Raw, Node: n}, nil
	case KindChoice:
		return mapChoice(n, s, path)
	case KindString:
		if n.Class != ClassUniversal || !isStringTag(n.Tag) || (s.StringTag != 0 && n.Tag != s.StringTag) {
			return nil, mismatch(path, n, "expected character string")
		}
		return mapContent(n, s, path)
	}
	tag, _ := s.Kind.universalTag()
	if n.Class != ClassUniversal || n.Tag != tag {
		return nil, mismatch(path, n, "expected "+s.Kind.String())
	}
	return mapContent(n, s, path)
}

func mapChoice(n *Node, s *Schema, path string) (*Value, error) {
	for _, alt := range s.Fields {
		if !alt.Type.matches(n) {
			continue
		}
		v, err := mapNode(n, alt.Type, path+"."+alt.Name)
		if err != nil {
			return nil, err
		}
		return &Value{Kind: KindChoice, Choice: &Alternative{Name: alt.Name, Value: v}, Raw: n.Raw, Node: n}, nil
	}
	return nil, mismatch(path, n, "no CHOICE alternative matches")
}

// mapContent interprets the content of n as s.Kind; tag checks are done.
func mapContent(n *Node, s *Schema, path string) (*Value, error) {
	v := &Value{Kind: s.Kind, Raw: n.Raw, Node: n}
	switch s.Kind {
	case KindSequence:
		if !n.Constructed {
			return nil, newError(Malformed, "ASN1-MAP-003", path, "SEQUENCE must be constructed")
		}
		fields, err := mapSequence(n.Children, s, path)
		if err != nil {
			return nil, err
		}
		v.Fields = fields
	case KindSet:
		if !n.Constructed {
			return nil, newError(Malformed, "ASN1-MAP-003", path, "SET must be constructed")
		}
		fields, err := mapSet(n.Children, s, path)
		if err != nil {
			return nil, err
		}
		v.Fields = fields
	case KindSequenceOf, KindSetOf:
		if !n.Constructed {
			return nil, newError(Malformed, "ASN1-MAP-003", path, s.Kind.String()+" must be constructed")
		}
		v.Items = make([]*Value, 0, len(n.Children))
		for i, c := range n.Children {
			item, err := mapNode(c, s.Elem, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			v.Items = append(v.Items, item)
		}
	case KindChoice, KindAny:
		// Only reachable through an IMPLICIT tag that Implicit() turned
		// into an explicit one; treat the content as the inner element.
		if len(n.Children) != 1 {
			return nil, newError(SchemaMismatch, "ASN1-MAP-002", path, "tagged "+s.Kind.String()+" must wrap exactly one element")
		}
		return mapUntagged(n.Children[0], s, path)
	case KindBoolean:
		if n.Constructed || len(n.Content) != 1 {
			return nil, newError(Malformed, "ASN1-BOOL-001", path, "BOOLEAN must be one octet")
		}
		v.Bool = n.Content[0] != 0
	case KindInteger, KindEnumerated:
		i, err := parseInteger(n, path)
		if err != nil {
			return nil, err
		}
		v.Int = i
		if s.Names != nil && i.IsInt64() {
			v.Name = s.Names[i.Int64()]
		}
	case KindOctetString:
		b, err := octets(n, TagOctetString, path, 0)
		if err != nil {
			return nil, err
		}
		v.Bytes = b
	case KindBitString:
		bits, err := parseBitString(n, path)
		if err != nil {
			return nil, err
		}
		v.Bits = bits
	case KindObjectIdentifier:
		oid, err := parseOID(n, path)
		if err != nil {
			return nil, err
		}
		v.OID = oid
		if s.Known != nil {
			name, err := s.Known.Name(oid)
			if err != nil {
				var e *Error
				if errors.As(err, &e) {
					e.Path = path
				}
				return nil, err
			}
			v.Name = name
		}
	case KindNull:
		if n.Constructed || len(n.Content) != 0 {
			return nil, newError(Malformed, "ASN1-NULL-001", path, "NULL must be empty")
		}
	case KindGeneralizedTime:
		t, err := parseGeneralizedTime(n, path)
		if err != nil {
			return nil, err
		}
		v.Time = t
	case KindUTCTime:
		t, err := parseUTCTime(n, path)
		if err != nil {
			return nil, err
		}
		v.Time = t
	case KindString:
		tag := s.StringTag
		if n.Class == ClassUniversal {
			tag = n.Tag
		}
		b, err := octets(n, tag, path, 0)
		if err != nil {
			return nil, err
		}
		v.Bytes = b
		v.String = decodeString(tag, b)
	default:
		return nil, newError(SchemaMismatch, "ASN1-MAP-004", path, "unsupported schema kind "+s.Kind.String())
	}
	return v, nil
}

func mapSequence(children []*Node, s *Schema, path string) (map[string]*Value, error) {
	out := make(map[string]*Value, len(s.Fields))
	i := 0
	for _, f := range s.Fields {
		fpath := path + "." + f.Name
		if i < len(children) && f.Type.matches(children[i]) {
			v, err := mapNode(children[i], f.Type, fpath)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
			i++
			continue
		}
		if f.Type.Default != nil {
			out[f.Name] = defaulted(f.Type)
			continue
		}
		if f.Type.Optional {
			continue
		}
		if i < len(children) {
			return nil, mismatch(fpath, children[i], "unexpected element for mandatory field")
		}
		return nil, newError(MissingField, "ASN1-MAP-005", fpath, "missing mandatory field")
	}
	if i < len(children) {
		return nil, mismatch(path, children[i], "unexpected trailing element")
	}
	return out, nil
}

func mapSet(children []*Node, s *Schema, path string) (map[string]*Value, error) {
	out := make(map[string]*Value, len(s.Fields))
	for _, c := range children {
		matched := false
		for _, f := range s.Fields {
			if _, done := out[f.Name]; done || !f.Type.matches(c) {
				continue
			}
			v, err := mapNode(c, f.Type, path+"."+f.Name)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
			matched = true
			break
		}
		if !matched {
			return nil, mismatch(path, c, "element matches no SET component")
		}
	}
	for _, f := range s.Fields {
		if _, ok := out[f.Name]; ok {
			continue
		}
		switch {
		case f.Type.Default != nil:
			out[f.Name] = defaulted(f.Type)
		case !f.Type.Optional:
			return nil, newError(MissingField, "ASN1-MAP-005", path+"."+f.Name, "missing mandatory field")
		}
	}
	return out, nil
}

func defaulted(s *Schema) *Value {
	c := *s.Default
	c.Defaulted = true
	c.Raw, c.Node = nil, nil
	if c.Kind == KindInteger || c.Kind == KindEnumerated {
		c.Kind = s.Kind
		if s.Names != nil && c.Int != nil && c.Int.IsInt64() {
			c.Name = s.Names[c.Int.Int64()]
		}
	}
	return &c
}

func parseInteger(n *Node, path string) (*big.Int, error) {
	b := n.Content
	if n.Constructed || len(b) == 0 {
		return nil, newError(Malformed, "ASN1-INT-001", path, "empty INTEGER")
	}
	if len(b) > 1 && ((b[0] == 0 && b[1]&0x80 == 0) || (b[0] == 0xff && b[1]&0x80 != 0)) {
		return nil, newError(Malformed, "ASN1-INT-002", path, "INTEGER not minimally encoded")
	}
	i := new(big.Int).SetBytes(b)
	if b[0]&0x80 != 0 {
		// Two's complement: subtract 2^(8*len).
		i.Sub(i, new(big.Int).Lsh(big.NewInt(1), uint(8*len(b))))
	}
	return i, nil
}

// octets returns the content of a string type, concatenating the segments
// of a BER constructed encoding. Segments carry the universal tag segTag;
// zero accepts any character string tag.
func octets(n *Node, segTag int, path string, depth int) ([]byte, error) {
	if !n.Constructed {
		return n.Content, nil
	}
	if depth > MaxDepth {
		return nil, newError(Malformed, "ASN1-STR-001", path, "constructed string nested too deep")
	}
	var out []byte
	for _, c := range n.Children {
		ok := c.Class == ClassUniversal && (c.Tag == segTag || (segTag == 0 && isStringTag(c.Tag)))
		if !ok {
			return nil, mismatch(path, c, "invalid segment in constructed string")
		}
		seg, err := octets(c, segTag, path, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, seg...)
	}
	return out, nil
}

func parseBitString(n *Node, path string) (asn1.BitString, error) {
	b := n.Content
	if n.Constructed {
		return asn1.BitString{}, newError(Malformed, "ASN1-BIT-001", path, "constructed BIT STRING is not supported")
	}
	if len(b) == 0 {
		return asn1.BitString{}, newError(Malformed, "ASN1-BIT-002", path, "empty BIT STRING")
	}
	unused := int(b[0])
	if unused > 7 || (len(b) == 1 && unused != 0) {
		return asn1.BitString{}, newError(Malformed, "ASN1-BIT-003", path, "invalid unused-bits count")
	}
	return asn1.BitString{Bytes: b[1:], BitLength: 8*(len(b)-1) - unused}, nil
}

func parseOID(n *Node, path string) (asn1.ObjectIdentifier, error) {
	b := n.Content
	if n.Constructed || len(b) == 0 {
		return nil, newError(Malformed, "ASN1-OID-003", path, "empty OBJECT IDENTIFIER")
	}
	var arcs []int
	val := 0
	for i, c := range b {
		if val == 0 && c == 0x80 {
			return nil, newError(Malformed, "ASN1-OID-004", path, "OID arc has leading zero")
		}
		if val > (1<<31-1)>>7 {
			return nil, newError(Malformed, "ASN1-OID-005", path, "OID arc too large")
		}
		val = val<<7 | int(c&0x7f)
		if c&0x80 != 0 {
			if i == len(b)-1 {
				return nil, newError(Truncated, "ASN1-OID-006", path, "truncated OID arc")
			}
			continue
		}
		if len(arcs) == 0 {
			switch {
			case val < 40:
				arcs = append(arcs, 0, val)
			case val < 80:
				arcs = append(arcs, 1, val-40)
			default:
				arcs = append(arcs, 2, val-80)
			}
		} else {
			arcs = append(arcs, val)
		}
		val = 0
	}
	return asn1.ObjectIdentifier(arcs), nil
}

func parseGeneralizedTime(n *Node, path string) (time.Time, error) {
	s := string(n.Content)
	for _, layout := range []string{"20060102150405Z0700", "20060102150405.999999999Z0700", "200601021504Z0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, newError(Malformed, "ASN1-TIME-001", path, "invalid GeneralizedTime "+strconv.Quote(s))
}

func parseUTCTime(n *Node, path string) (time.Time, error) {
	s := string(n.Content)
	for _, layout := range []string{"060102150405Z0700", "0601021504Z0700"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		// RFC 5280: YY >= 50 is 19YY, otherwise 20YY.
		if t.Year() >= 2050 {
			t = t.AddDate(-100, 0, 0)
		}
		return t, nil
	}
	return time.Time{}, newError(Malformed, "ASN1-TIME-002", path, "invalid UTCTime "+strconv.Quote(s))
}

func decodeString(tag int, b []byte) string {
	switch tag {
	case TagBMPString:
		if len(b)%2 != 0 {
			return string(b)
		}
		u := make([]uint16, len(b)/2)
		for i := range u {
			u[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
		}
		return string(utf16.Decode(u))
	case TagUniversalString:
		if len(b)%4 != 0 {
			return string(b)
		}
		r := make([]rune, len(b)/4)
		for i := range r {
			r[i] = rune(b[4*i])<<24 | rune(b[4*i+1])<<16 | rune(b[4*i+2])<<8 | rune(b[4*i+3])
		}
		return string(r)
	}
	return string(b)
}

func mismatch(path string, n *Node, msg string) error {
	return &Error{
		Kind:    SchemaMismatch,
		RuleID:  "ASN1-MAP-010",
		Path:    path,
		Offset:  n.Offset,
		Message: msg + ", got " + n.String(),
	}
}
