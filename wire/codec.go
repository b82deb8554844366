// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"errors"

	"github.com/tinylib/msgp/msgp"
)

// ErrDecode reports a malformed Item encoding.
var ErrDecode = errors.New("wire: malformed item encoding")

// EncodeItem serializes an Item to bytes that DecodeItem can reverse
// exactly (§8 "codec round-trip").
//
// Every encoded value is prefixed with one byte identifying its Kind; the
// remainder is written with the tinylib/msgp runtime's Append* primitives.
// The Kind prefix — rather than msgp.NextType — is what disambiguates
// List/Tuple/Set on decode, since msgpack itself has only one array type
// and would otherwise conflate the three.
func EncodeItem(it Item) []byte {
	return appendItem(nil, it)
}

func appendItem(b []byte, it Item) []byte {
	b = append(b, byte(it.Kind))
	switch it.Kind {
	case KindNull:
		return msgp.AppendNil(b)
	case KindBytes:
		return msgp.AppendBytes(b, it.Bytes)
	case KindText:
		return msgp.AppendString(b, it.Text)
	case KindInt:
		return msgp.AppendInt64(b, it.Int)
	case KindFloat:
		return msgp.AppendFloat64(b, it.Float)
	case KindComplex:
		return msgp.AppendComplex128(b, complex(it.Complex.Real, it.Complex.Imag))
	case KindBool:
		return msgp.AppendBool(b, it.Bool)
	case KindList:
		b = msgp.AppendArrayHeader(b, uint32(len(it.List)))
		for _, e := range it.List {
			b = appendItem(b, e)
		}
		return b
	case KindTuple:
		b = msgp.AppendArrayHeader(b, uint32(len(it.Tuple)))
		for _, e := range it.Tuple {
			b = appendItem(b, e)
		}
		return b
	case KindSet:
		b = msgp.AppendArrayHeader(b, uint32(len(it.Set)))
		for _, e := range it.Set {
			b = appendItem(b, e)
		}
		return b
	case KindMap:
		b = msgp.AppendMapHeader(b, uint32(len(it.Map)))
		for _, e := range it.Map {
			b = appendItem(b, e.Key)
			b = appendItem(b, e.Value)
		}
		return b
	default:
		return msgp.AppendNil(b)
	}
}

// DecodeItem parses bytes produced by EncodeItem. It errors if trailing
// bytes remain after one full Item has been consumed.
func DecodeItem(data []byte) (Item, error) {
	it, rest, err := readItem(data)
	if err != nil {
		return Item{}, err
	}
	if len(rest) != 0 {
		return Item{}, ErrDecode
	}
	return it, nil
}

func readItem(b []byte) (Item, []byte, error) {
	if len(b) < 1 {
		return Item{}, nil, ErrDecode
	}
	kind := Kind(b[0])
	b = b[1:]

	switch kind {
	case KindNull:
		rest, err := msgp.ReadNilBytes(b)
		if err != nil {
			return Item{}, nil, ErrDecode
		}
		return Null, rest, nil
	case KindBytes:
		bs, rest, err := msgp.ReadBytesBytes(b, nil)
		if err != nil {
			return Item{}, nil, ErrDecode
		}
		return Item{Kind: KindBytes, Bytes: bs}, rest, nil
	case KindText:
		s, rest, err := msgp.ReadStringBytes(b)
		if err != nil {
			return Item{}, nil, ErrDecode
		}
		return Item{Kind: KindText, Text: s}, rest, nil
	case KindInt:
		i, rest, err := msgp.ReadInt64Bytes(b)
		if err != nil {
			return Item{}, nil, ErrDecode
		}
		return Item{Kind: KindInt, Int: i}, rest, nil
	case KindFloat:
		f, rest, err := msgp.ReadFloat64Bytes(b)
		if err != nil {
			return Item{}, nil, ErrDecode
		}
		return Item{Kind: KindFloat, Float: f}, rest, nil
	case KindComplex:
		c, rest, err := msgp.ReadComplex128Bytes(b)
		if err != nil {
			return Item{}, nil, ErrDecode
		}
		return Item{Kind: KindComplex, Complex: Complex{Real: real(c), Imag: imag(c)}}, rest, nil
	case KindBool:
		v, rest, err := msgp.ReadBoolBytes(b)
		if err != nil {
			return Item{}, nil, ErrDecode
		}
		return Item{Kind: KindBool, Bool: v}, rest, nil
	case KindList, KindTuple, KindSet:
		sz, rest, err := msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return Item{}, nil, ErrDecode
		}
		items := make([]Item, 0, sz)
		for i := uint32(0); i < sz; i++ {
			var e Item
			e, rest, err = readItem(rest)
			if err != nil {
				return Item{}, nil, err
			}
			items = append(items, e)
		}
		switch kind {
		case KindList:
			return Item{Kind: KindList, List: items}, rest, nil
		case KindTuple:
			return Item{Kind: KindTuple, Tuple: items}, rest, nil
		default:
			return Item{Kind: KindSet, Set: items}, rest, nil
		}
	case KindMap:
		sz, rest, err := msgp.ReadMapHeaderBytes(b)
		if err != nil {
			return Item{}, nil, ErrDecode
		}
		entries := make([]MapEntry, 0, sz)
		for i := uint32(0); i < sz; i++ {
			var key, val Item
			key, rest, err = readItem(rest)
			if err != nil {
				return Item{}, nil, err
			}
			val, rest, err = readItem(rest)
			if err != nil {
				return Item{}, nil, err
			}
			entries = append(entries, MapEntry{Key: key, Value: val})
		}
		return Item{Kind: KindMap, Map: entries}, rest, nil
	default:
		return Item{}, nil, ErrDecode
	}
}
