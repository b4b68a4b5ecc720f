package asn1ber

import (
	"encoding/asn1"
	"math/big"
	"time"
)

// Value is the typed result of Map, and the input of Encode.
//
// Only the members relevant to Kind are populated. Raw and Node are set by
// Map and ignored by Encode except for KindAny, which is emitted from Raw
// verbatim.
type Value struct {
	Kind Kind

	// Fields holds SEQUENCE and SET components by name. Absent OPTIONAL
	// components have no entry; absent DEFAULT components are filled from
	// the schema with Defaulted set.
	Fields map[string]*Value
	// Items holds SEQUENCE OF and SET OF elements in encoding order.
	Items []*Value
	// Choice holds the selected CHOICE alternative.
	Choice *Alternative

	Int    *big.Int
	Bool   bool
	Bytes  []byte
	Bits   asn1.BitString
	OID    asn1.ObjectIdentifier
	Time   time.Time
	String string
	// Name is the symbolic name of an INTEGER/ENUMERATED value or of a
	// registered OBJECT IDENTIFIER, when the schema provides one.
	Name string

	Defaulted bool

	// Raw is the exact encoding this value was mapped from. For EXPLICIT
	// tagged components it is the inner element, without the context wrapper.
	Raw  []byte
	Node *Node
}

// Alternative is a selected CHOICE variant.
type Alternative struct {
	Name  string
	Value *Value
}

// Field returns the named component, or nil. It is safe to call on nil.
func (v *Value) Field(name string) *Value {
	if v == nil || v.Fields == nil {
		return nil
	}
	return v.Fields[name]
}

// Path follows a chain of component names, descending into CHOICE
// alternatives transparently when the name matches the selected variant.
func (v *Value) Path(names ...string) *Value {
	cur := v
	for _, name := range names {
		if cur == nil {
			return nil
		}
		if cur.Choice != nil && cur.Choice.Name == name {
			cur = cur.Choice.Value
			continue
		}
		cur = cur.Field(name)
	}
	return cur
}

// Has reports whether the named component is present in the encoding.
func (v *Value) Has(name string) bool {
	f := v.Field(name)
	return f != nil && !f.Defaulted
}

// Int64 returns the INTEGER/ENUMERATED value when it fits in an int64.
func (v *Value) Int64() (int64, bool) {
	if v == nil || v.Int == nil || !v.Int.IsInt64() {
		return 0, false
	}
	return v.Int.Int64(), true
}

// Variant returns the selected alternative name of a CHOICE, or "".
func (v *Value) Variant() string {
	if v == nil || v.Choice == nil {
		return ""
	}
	return v.Choice.Name
}

// Constructors for building values to Encode.

func NewStruct(fields map[string]*Value) *Value {
	return &Value{Kind: KindSequence, Fields: fields}
}

func NewList(items ...*Value) *Value {
	return &Value{Kind: KindSequenceOf, Items: items}
}

func NewChoice(name string, v *Value) *Value {
	return &Value{Kind: KindChoice, Choice: &Alternative{Name: name, Value: v}}
}

func NewInt(i int64) *Value { return &Value{Kind: KindInteger, Int: big.NewInt(i)} }

func NewBigInt(i *big.Int) *Value { return &Value{Kind: KindInteger, Int: new(big.Int).Set(i)} }

func NewEnum(i int64) *Value { return &Value{Kind: KindEnumerated, Int: big.NewInt(i)} }

func NewBool(b bool) *Value { return &Value{Kind: KindBoolean, Bool: b} }

func NewOctets(b []byte) *Value { return &Value{Kind: KindOctetString, Bytes: b} }

// NewBits returns a BIT STRING covering every bit of b.
func NewBits(b []byte) *Value {
	return &Value{Kind: KindBitString, Bits: asn1.BitString{Bytes: b, BitLength: 8 * len(b)}}
}

func NewOID(oid asn1.ObjectIdentifier) *Value { return &Value{Kind: KindObjectIdentifier, OID: oid} }

func NewNull() *Value { return &Value{Kind: KindNull} }

func NewTime(t time.Time) *Value { return &Value{Kind: KindGeneralizedTime, Time: t} }

func NewString(s string) *Value { return &Value{Kind: KindString, String: s} }

// NewRaw wraps an already encoded element, for ANY components.
func NewRaw(der []byte) *Value { return &Value{Kind: KindAny, Raw: der} }
