package asn1ber

import "fmt"

// Kind names the ASN.1 type a Schema describes.
type Kind uint8

const (
	KindAny Kind = iota
	KindSequence
	KindSequenceOf
	KindSet
	KindSetOf
	KindChoice
	KindBoolean
	KindInteger
	KindEnumerated
	KindOctetString
	KindBitString
	KindObjectIdentifier
	KindNull
	KindGeneralizedTime
	KindUTCTime
	KindString
)

var kindNames = [...]string{
	KindAny:              "ANY",
	KindSequence:         "SEQUENCE",
	KindSequenceOf:       "SEQUENCE OF",
	KindSet:              "SET",
	KindSetOf:            "SET OF",
	KindChoice:           "CHOICE",
	KindBoolean:          "BOOLEAN",
	KindInteger:          "INTEGER",
	KindEnumerated:       "ENUMERATED",
	KindOctetString:      "OCTET STRING",
	KindBitString:        "BIT STRING",
	KindObjectIdentifier: "OBJECT IDENTIFIER",
	KindNull:             "NULL",
	KindGeneralizedTime:  "GeneralizedTime",
	KindUTCTime:          "UTCTime",
	KindString:           "STRING",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) universalTag() (tag int, constructed bool) {
	switch k {
	case KindSequence, KindSequenceOf:
		return TagSequence, true
	case KindSet, KindSetOf:
		return TagSet, true
	case KindBoolean:
		return TagBoolean, false
	case KindInteger:
		return TagInteger, false
	case KindEnumerated:
		return TagEnumerated, false
	case KindOctetString:
		return TagOctetString, false
	case KindBitString:
		return TagBitString, false
	case KindObjectIdentifier:
		return TagOID, false
	case KindNull:
		return TagNull, false
	case KindGeneralizedTime:
		return TagGeneralizedTime, false
	case KindUTCTime:
		return TagUTCTime, false
	}
	return -1, false
}

// TagMode selects how a context tag frames the underlying type.
type TagMode uint8

const (
	// Explicit adds an extra constructed TLV around the inner encoding.
	Explicit TagMode = iota
	// Implicit replaces the inner type's own tag.
	Implicit
)

// Tag is a non-universal tag attached to a schema.
type Tag struct {
	Class  Class
	Number int
	Mode   TagMode
}

// Field is a named component of a SEQUENCE, SET or CHOICE.
type Field struct {
	Name string
	Type *Schema
}

// F is shorthand for Field{Name: name, Type: t}.
func F(name string, t *Schema) Field { return Field{Name: name, Type: t} }

// Schema is an immutable type description. Builders return fresh values and
// every modifier (Explicit, Implicit, Optional, ...) returns a modified copy,
// so a schema can be shared by reference between parents.
type Schema struct {
	Name   string
	Kind   Kind
	Fields []Field
	Elem   *Schema

	Tag      *Tag
	Optional bool
	// Default is used when an optional-by-default field is absent. It also
	// causes DER encoding to omit a field whose value equals it.
	Default *Value

	// Names maps INTEGER/ENUMERATED values to symbolic names.
	Names map[int64]string
	// StringTag restricts a KindString schema to a single universal tag.
	// Zero accepts any character string type when decoding and encodes as UTF8String.
	StringTag int
	// Known, when set on an OBJECT IDENTIFIER schema, rejects OIDs absent from the registry.
	Known *Registry
}

func Sequence(name string, fields ...Field) *Schema {
	return &Schema{Name: name, Kind: KindSequence, Fields: fields}
}

func Set(name string, fields ...Field) *Schema {
	return &Schema{Name: name, Kind: KindSet, Fields: fields}
}

func SequenceOf(elem *Schema) *Schema {
	return &Schema{Name: "SEQUENCE OF " + elem.label(), Kind: KindSequenceOf, Elem: elem}
}

func SetOf(elem *Schema) *Schema {
	return &Schema{Name: "SET OF " + elem.label(), Kind: KindSetOf, Elem: elem}
}

// Choice describes a CHOICE. Alternatives are tried in order; the first whose
// tag matches wins. An alternative of KindAny without a tag matches anything.
func Choice(name string, alternatives ...Field) *Schema {
	return &Schema{Name: name, Kind: KindChoice, Fields: alternatives}
}

func Enumerated(name string, names map[int64]string) *Schema {
	return &Schema{Name: name, Kind: KindEnumerated, Names: names}
}

func Integer() *Schema          { return &Schema{Kind: KindInteger} }
func Boolean() *Schema          { return &Schema{Kind: KindBoolean} }
func OctetString() *Schema      { return &Schema{Kind: KindOctetString} }
func BitString() *Schema        { return &Schema{Kind: KindBitString} }
func ObjectIdentifier() *Schema { return &Schema{Kind: KindObjectIdentifier} }
func Null() *Schema             { return &Schema{Kind: KindNull} }
func GeneralizedTime() *Schema  { return &Schema{Kind: KindGeneralizedTime} }
func UTCTime() *Schema          { return &Schema{Kind: KindUTCTime} }
func Any() *Schema              { return &Schema{Kind: KindAny} }

// String describes a character string. tag is one of the universal string
// tags, or zero for "any string type".
func String(tag int) *Schema { return &Schema{Kind: KindString, StringTag: tag} }

// Named returns a copy of s with a type name used in error paths.
func (s *Schema) Named(name string) *Schema {
	c := *s
	c.Name = name
	return &c
}

// Explicit returns a copy of s tagged [n] EXPLICIT in the context class.
func (s *Schema) Explicit(n int) *Schema {
	c := *s
	c.Tag = &Tag{Class: ClassContext, Number: n, Mode: Explicit}
	return &c
}

// Implicit returns a copy of s tagged [n] IMPLICIT in the context class.
// CHOICE and ANY cannot be implicitly tagged; for those the tag is applied
// explicitly, as X.680 requires.
func (s *Schema) Implicit(n int) *Schema {
	c := *s
	mode := Implicit
	if s.Kind == KindChoice || s.Kind == KindAny {
		mode = Explicit
	}
	c.Tag = &Tag{Class: ClassContext, Number: n, Mode: mode}
	return &c
}

// Tagged returns a copy of s with an arbitrary tag.
func (s *Schema) Tagged(t Tag) *Schema {
	c := *s
	c.Tag = &t
	return &c
}

// AsOptional returns a copy of s marked OPTIONAL.
func (s *Schema) AsOptional() *Schema {
	c := *s
	c.Optional = true
	return &c
}

// WithDefault returns a copy of s with a DEFAULT value.
func (s *Schema) WithDefault(v *Value) *Schema {
	c := *s
	c.Default = v
	return &c
}

// WithNames returns a copy of an INTEGER/ENUMERATED schema with symbolic names.
func (s *Schema) WithNames(names map[int64]string) *Schema {
	c := *s
	c.Names = names
	return &c
}

// Restrict returns a copy of an OBJECT IDENTIFIER schema that only accepts
// OIDs present in reg.
func (s *Schema) Restrict(reg *Registry) *Schema {
	c := *s
	c.Known = reg
	return &c
}

func (s *Schema) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Kind.String()
}

// matches reports whether n could be an encoding of s, looking at tags only.
func (s *Schema) matches(n *Node) bool {
	if s.Tag != nil {
		return n.Class == s.Tag.Class && n.Tag == s.Tag.Number
	}
	switch s.Kind {
	case KindAny:
		return true
	case KindChoice:
		for _, alt := range s.Fields {
			if alt.Type.matches(n) {
				return true
			}
		}
		return false
	case KindString:
		if n.Class != ClassUniversal {
			return false
		}
		if s.StringTag != 0 {
			return n.Tag == s.StringTag
		}
		return isStringTag(n.Tag)
	}
	tag, _ := s.Kind.universalTag()
	return n.Class == ClassUniversal && n.Tag == tag
}

func isStringTag(tag int) bool {
	switch tag {
	case TagUTF8String, TagNumericString, TagPrintableString, TagT61String,
		TagIA5String, TagVisibleString, TagUniversalString, TagBMPString:
		return true
	}
	return false
}
