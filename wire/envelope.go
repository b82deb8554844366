// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/base64"
	"time"
)

// Command is one of the fixed wire command/reply literals. No command is a
// prefix of another (§6).
type Command string

const (
	CmdPut      Command = "PUT"
	CmdGet      Command = "GET"
	CmdData     Command = "DATA"
	CmdFull     Command = "FULL"
	CmdEmpty    Command = "EMPTY"
	CmdNormal   Command = "NORMAL"
	CmdStatus   Command = "STATUS"
	CmdOK       Command = "OK"
	CmdFail     Command = "FAIL"
	CmdPing     Command = "PING"
	CmdPong     Command = "PONG"
	CmdSize     Command = "SIZE"
	CmdMaxSize  Command = "MAXSIZE"
	CmdReset    Command = "RESET"
	CmdClients  Command = "CLIENTS"
	CmdTaskDone Command = "TASK_DONE"
	CmdJoin     Command = "JOIN"
	CmdAuthKey  Command = "AUTH_KEY"
	CmdHI       Command = "HI"
	CmdNeedAuth Command = "NEED_AUTH"
)

// envelopeSep joins the four base64-encoded envelope fields. It is the
// ASCII Unit Separator, which base64's URL-safe alphabet never emits, so no
// further escaping of the joined blobs is required.
const envelopeSep = 0x1f

// Envelope is the structured {command, args, payload, error} record carried
// in one frame.
type Envelope struct {
	Command Command
	Args    Item // always KindMap (may be empty)
	Payload Item
	Err     Item
}

// Encode serializes e as four base64 blobs joined by envelopeSep.
func Encode(e Envelope) []byte {
	parts := [][]byte{
		[]byte(e.Command),
		EncodeItem(e.Args),
		EncodeItem(e.Payload),
		EncodeItem(e.Err),
	}
	encoded := make([][]byte, len(parts))
	for i, p := range parts {
		encoded[i] = []byte(base64.RawURLEncoding.EncodeToString(p))
	}
	return bytes.Join(encoded, []byte{envelopeSep})
}

// Decode reverses Encode.
func Decode(data []byte) (Envelope, error) {
	parts := bytes.Split(data, []byte{envelopeSep})
	if len(parts) != 4 {
		return Envelope{}, ErrDecode
	}

	raw := make([][]byte, 4)
	for i, p := range parts {
		b, err := base64.RawURLEncoding.DecodeString(string(p))
		if err != nil {
			return Envelope{}, ErrDecode
		}
		raw[i] = b
	}

	args, err := DecodeItem(raw[1])
	if err != nil {
		return Envelope{}, err
	}
	payload, err := DecodeItem(raw[2])
	if err != nil {
		return Envelope{}, err
	}
	errItem, err := DecodeItem(raw[3])
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		Command: Command(raw[0]),
		Args:    args,
		Payload: payload,
		Err:     errItem,
	}, nil
}

// Simple reply/request constructors used throughout server and client.

// Reply builds a bare envelope carrying just a command (OK, FULL, EMPTY,
// PONG, NORMAL, FAIL, HI, NEED_AUTH, ...).
func Reply(cmd Command) Envelope {
	return Envelope{Command: cmd, Args: NewMap(), Payload: Null, Err: Null}
}

// DataReply builds a DATA reply carrying payload.
func DataReply(payload Item) Envelope {
	return Envelope{Command: CmdData, Args: NewMap(), Payload: payload, Err: Null}
}

// --- typed per-command args (§9 "dynamic args map" closed per command) ---

// PutArgs are the arguments of a PUT request.
type PutArgs struct {
	Block   bool
	Timeout *time.Duration
}

// GetArgs are the arguments of a GET request.
type GetArgs struct {
	Block   bool
	Timeout *time.Duration
}

// ResetArgs are the arguments of a RESET request.
type ResetArgs struct {
	NewCapacity *uint64
}

// AuthArgs are the arguments of an AUTH_KEY request.
type AuthArgs struct {
	KeyDigest string
}

func durationToItem(d *time.Duration) Item {
	if d == nil {
		return Null
	}
	return NewInt(d.Milliseconds())
}

func itemToDuration(it Item) *time.Duration {
	if it.Kind != KindInt {
		return nil
	}
	d := time.Duration(it.Int) * time.Millisecond
	return &d
}

func mapGet(m Item, key string) (Item, bool) {
	for _, e := range m.Map {
		if e.Key.Kind == KindText && e.Key.Text == key {
			return e.Value, true
		}
	}
	return Item{}, false
}

// EncodePutArgs / EncodeGetArgs render typed args as the wire's string-keyed
// mapping Item.
func EncodePutArgs(a PutArgs) Item {
	return NewMap(
		MapEntry{Key: NewText("block"), Value: NewBool(a.Block)},
		MapEntry{Key: NewText("timeout"), Value: durationToItem(a.Timeout)},
	)
}

func EncodeGetArgs(a GetArgs) Item {
	return NewMap(
		MapEntry{Key: NewText("block"), Value: NewBool(a.Block)},
		MapEntry{Key: NewText("timeout"), Value: durationToItem(a.Timeout)},
	)
}

func EncodeResetArgs(a ResetArgs) Item {
	if a.NewCapacity == nil {
		return NewMap(MapEntry{Key: NewText("max_size"), Value: Null})
	}
	return NewMap(MapEntry{Key: NewText("max_size"), Value: NewInt(int64(*a.NewCapacity))})
}

func EncodeAuthArgs(a AuthArgs) Item {
	return NewMap(MapEntry{Key: NewText("auth_key"), Value: NewText(a.KeyDigest)})
}

func ParsePutArgs(it Item) PutArgs {
	var a PutArgs
	if block, ok := mapGet(it, "block"); ok && block.Kind == KindBool {
		a.Block = block.Bool
	}
	if to, ok := mapGet(it, "timeout"); ok {
		a.Timeout = itemToDuration(to)
	}
	return a
}

func ParseGetArgs(it Item) GetArgs {
	var a GetArgs
	if block, ok := mapGet(it, "block"); ok && block.Kind == KindBool {
		a.Block = block.Bool
	}
	if to, ok := mapGet(it, "timeout"); ok {
		a.Timeout = itemToDuration(to)
	}
	return a
}

func ParseResetArgs(it Item) ResetArgs {
	var a ResetArgs
	if v, ok := mapGet(it, "max_size"); ok && v.Kind == KindInt {
		u := uint64(v.Int)
		a.NewCapacity = &u
	}
	return a
}

func ParseAuthArgs(it Item) AuthArgs {
	var a AuthArgs
	if v, ok := mapGet(it, "auth_key"); ok && v.Kind == KindText {
		a.KeyDigest = v.Text
	}
	return a
}
