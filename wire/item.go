// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

// Kind tags the concrete type carried by an Item.
type Kind uint8

const (
	KindNull Kind = iota
	KindBytes
	KindText
	KindInt
	KindFloat
	KindComplex
	KindBool
	KindList
	KindTuple
	KindMap
	KindSet
)

// Complex is a real/imaginary pair, Go's analogue of the source language's
// native complex number literal.
type Complex struct {
	Real, Imag float64
}

// MapEntry is one key/value pair of a Map item. Item keys are themselves
// Items (per the data model an Item's mapping may use any Item as a key),
// so a Go map (which requires a comparable, hashable key type) cannot
// represent it directly; an ordered slice of entries is used instead and
// preserves wire order.
type MapEntry struct {
	Key, Value Item
}

// Item is an opaque value drawn from the closed set of kinds the protocol
// recognizes. Exactly one of the fields below is meaningful, selected by
// Kind.
type Item struct {
	Kind Kind

	Bytes   []byte
	Text    string
	Int     int64
	Float   float64
	Complex Complex
	Bool    bool
	List    []Item
	Tuple   []Item
	Map     []MapEntry
	Set     []Item
}

// Null is the singleton null Item.
var Null = Item{Kind: KindNull}

func NewBytes(b []byte) Item   { return Item{Kind: KindBytes, Bytes: append([]byte(nil), b...)} }
func NewText(s string) Item    { return Item{Kind: KindText, Text: s} }
func NewInt(i int64) Item      { return Item{Kind: KindInt, Int: i} }
func NewFloat(f float64) Item  { return Item{Kind: KindFloat, Float: f} }
func NewBool(b bool) Item      { return Item{Kind: KindBool, Bool: b} }
func NewList(items ...Item) Item  { return Item{Kind: KindList, List: items} }
func NewTuple(items ...Item) Item { return Item{Kind: KindTuple, Tuple: items} }

func NewComplex(real, imag float64) Item {
	return Item{Kind: KindComplex, Complex: Complex{Real: real, Imag: imag}}
}

func NewMap(entries ...MapEntry) Item { return Item{Kind: KindMap, Map: entries} }

// NewSet deduplicates items by Equal, preserving first-seen order.
func NewSet(items ...Item) Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		dup := false
		for _, seen := range out {
			if seen.Equal(it) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, it)
		}
	}
	return Item{Kind: KindSet, Set: out}
}

// Equal reports deep equality between two Items, recursing into
// collections and comparing bytes by content.
func (it Item) Equal(other Item) bool {
	if it.Kind != other.Kind {
		return false
	}
	switch it.Kind {
	case KindNull:
		return true
	case KindBytes:
		return string(it.Bytes) == string(other.Bytes)
	case KindText:
		return it.Text == other.Text
	case KindInt:
		return it.Int == other.Int
	case KindFloat:
		return it.Float == other.Float
	case KindComplex:
		return it.Complex == other.Complex
	case KindBool:
		return it.Bool == other.Bool
	case KindList:
		return equalItemSlices(it.List, other.List)
	case KindTuple:
		return equalItemSlices(it.Tuple, other.Tuple)
	case KindSet:
		return equalItemSlices(it.Set, other.Set)
	case KindMap:
		if len(it.Map) != len(other.Map) {
			return false
		}
		for i, e := range it.Map {
			o := other.Map[i]
			if !e.Key.Equal(o.Key) || !e.Value.Equal(o.Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func equalItemSlices(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
