package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrUnknownKind   = errors.New("protocol: unknown message kind")
	ErrUnknownFrame  = errors.New("protocol: unknown frame type")
	ErrUnknownSignal = errors.New("protocol: unknown signal type")
)

// Field numbers of the wire encoding. They never change once released.
const (
	fieldMessageKind protowire.Number = 1
	fieldMessageSeq  protowire.Number = 2
	fieldMessageText protowire.Number = 3

	fieldFrameType    protowire.Number = 1
	fieldFrameFrom    protowire.Number = 2
	fieldFrameTo      protowire.Number = 3
	fieldFramePayload protowire.Number = 4
	fieldFrameReason  protowire.Number = 5

	fieldSignalType protowire.Number = 1
	fieldSignalSDP  protowire.Number = 2
)

// Codec encodes envelopes in protobuf wire format without generated code.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) EncodeMessage(msg Message) ([]byte, error) {
	if msg.Kind.String() == "UNKNOWN" {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, msg.Kind)
	}

	b := make([]byte, 0, 8+len(msg.Text))
	b = protowire.AppendTag(b, fieldMessageKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(msg.Kind))
	if msg.Seq != 0 {
		b = protowire.AppendTag(b, fieldMessageSeq, protowire.VarintType)
		b = protowire.AppendVarint(b, msg.Seq)
	}
	if msg.Text != "" {
		b = protowire.AppendTag(b, fieldMessageText, protowire.BytesType)
		b = protowire.AppendString(b, msg.Text)
	}
	return b, nil
}

func (c *Codec) DecodeMessage(data []byte) (Message, error) {
	var msg Message
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldMessageKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			msg.Kind = Kind(v)
			return n, nil
		case num == fieldMessageSeq && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			msg.Seq = v
			return n, nil
		case num == fieldMessageText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			msg.Text = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return Message{}, err
	}
	if msg.Kind.String() == "UNKNOWN" {
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownKind, msg.Kind)
	}
	return msg, nil
}

func (c *Codec) EncodeFrame(f Frame) ([]byte, error) {
	if f.Type.String() == "UNKNOWN" {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFrame, f.Type)
	}

	b := make([]byte, 0, 16+len(f.From)+len(f.To)+len(f.Payload))
	b = protowire.AppendTag(b, fieldFrameType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Type))
	b = appendString(b, fieldFrameFrom, f.From)
	b = appendString(b, fieldFrameTo, f.To)
	if len(f.Payload) > 0 {
		b = protowire.AppendTag(b, fieldFramePayload, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Payload)
	}
	b = appendString(b, fieldFrameReason, f.Reason)
	return b, nil
}

func (c *Codec) DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldFrameType && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			f.Type = FrameType(v)
			return n, nil
		}
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		switch num {
		case fieldFrameFrom:
			v, n := protowire.ConsumeString(b)
			f.From = v
			return n, nil
		case fieldFrameTo:
			v, n := protowire.ConsumeString(b)
			f.To = v
			return n, nil
		case fieldFramePayload:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				f.Payload = append([]byte(nil), v...)
			}
			return n, nil
		case fieldFrameReason:
			v, n := protowire.ConsumeString(b)
			f.Reason = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return Frame{}, err
	}
	if f.Type.String() == "UNKNOWN" {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownFrame, f.Type)
	}
	return f, nil
}

func (c *Codec) EncodeSignal(s Signal) ([]byte, error) {
	if s.Type.String() == "UNKNOWN" {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSignal, s.Type)
	}

	b := make([]byte, 0, 8+len(s.SDP))
	b = protowire.AppendTag(b, fieldSignalType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Type))
	b = appendString(b, fieldSignalSDP, s.SDP)
	return b, nil
}

func (c *Codec) DecodeSignal(data []byte) (Signal, error) {
	var s Signal
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldSignalType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s.Type = SignalType(v)
			return n, nil
		case num == fieldSignalSDP && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			s.SDP = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return Signal{}, err
	}
	if s.Type.String() == "UNKNOWN" {
		return Signal{}, fmt.Errorf("%w: %d", ErrUnknownSignal, s.Type)
	}
	return s, nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// walkFields calls fn for every field in data. fn consumes the value and
// reports how many bytes it used; unknown fields must be skipped by fn.
func walkFields(data []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("protocol: reading tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("protocol: reading field %d: %w", num, protowire.ParseError(m))
		}
		data = data[m:]
	}
	return nil
}
