package protocol

import (
	"bytes"
	"errors"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodecUserText(t *testing.T) {
	codec := NewCodec()

	data, err := codec.EncodeMessage(UserText(7, "Thinking of you"))
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}

	msg, err := codec.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}

	if msg.Kind != KindUserText {
		t.Errorf("Expected USER_TEXT, got %s", msg.Kind)
	}
	if msg.Seq != 7 {
		t.Errorf("Expected seq 7, got %d", msg.Seq)
	}
	if msg.Text != "Thinking of you" {
		t.Errorf("Expected 'Thinking of you', got '%s'", msg.Text)
	}
}

func TestCodecControlTextIsNotControl(t *testing.T) {
	codec := NewCodec()

	// A user typing the old sentinel must stay user text.
	data, err := codec.EncodeMessage(UserText(1, "Connection confirmed"))
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}

	msg, err := codec.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	if msg.Kind.IsControl() {
		t.Errorf("Expected user text, got %s", msg.Kind)
	}
}

func TestCodecAck(t *testing.T) {
	codec := NewCodec()

	data, err := codec.EncodeMessage(Ack(42))
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}

	msg, err := codec.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	if msg.Kind != KindAck || msg.Seq != 42 {
		t.Errorf("Expected ack 42, got %s %d", msg.Kind, msg.Seq)
	}
	if msg.Text != "" {
		t.Errorf("Expected empty text, got '%s'", msg.Text)
	}
}

func TestCodecRejectsUnknownKind(t *testing.T) {
	codec := NewCodec()

	if _, err := codec.EncodeMessage(Message{Kind: 9}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind on encode, got %v", err)
	}

	var b []byte
	b = protowire.AppendTag(b, fieldMessageKind, protowire.VarintType)
	b = protowire.AppendVarint(b, 9)
	if _, err := codec.DecodeMessage(b); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind on decode, got %v", err)
	}
}

func TestCodecSkipsUnknownFields(t *testing.T) {
	codec := NewCodec()

	data, err := codec.EncodeMessage(Confirm())
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	data = protowire.AppendTag(data, 15, protowire.BytesType)
	data = protowire.AppendString(data, "from a newer peer")

	msg, err := codec.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	if msg.Kind != KindConfirm {
		t.Errorf("Expected CONTROL_CONFIRM, got %s", msg.Kind)
	}
}

func TestCodecTruncatedInput(t *testing.T) {
	codec := NewCodec()

	data, err := codec.EncodeMessage(UserText(3, "hello"))
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}

	if _, err := codec.DecodeMessage(data[:len(data)-2]); err == nil {
		t.Error("Expected error for truncated message")
	}
}

func TestCodecFrameRelay(t *testing.T) {
	codec := NewCodec()
	payload := []byte{0x01, 0x02, 0x03}

	data, err := codec.EncodeFrame(Frame{Type: FrameRelay, From: "a", To: "b", Payload: payload})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	f, err := codec.DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}

	if f.Type != FrameRelay {
		t.Errorf("Expected RELAY, got %s", f.Type)
	}
	if f.From != "a" || f.To != "b" {
		t.Errorf("Expected a->b, got %s->%s", f.From, f.To)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Errorf("Payload mismatch")
	}
}

func TestCodecFrameUnavailable(t *testing.T) {
	codec := NewCodec()

	data, err := codec.EncodeFrame(Frame{Type: FrameUnavailable, To: "ghost", Reason: "not connected"})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	f, err := codec.DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if f.Type != FrameUnavailable || f.To != "ghost" || f.Reason != "not connected" {
		t.Errorf("Unexpected frame %+v", f)
	}
}

func TestCodecSignal(t *testing.T) {
	codec := NewCodec()

	data, err := codec.EncodeSignal(Signal{Type: SignalOffer, SDP: "v=0"})
	if err != nil {
		t.Fatalf("EncodeSignal failed: %v", err)
	}

	s, err := codec.DecodeSignal(data)
	if err != nil {
		t.Fatalf("DecodeSignal failed: %v", err)
	}
	if s.Type != SignalOffer || s.SDP != "v=0" {
		t.Errorf("Unexpected signal %+v", s)
	}

	if _, err := codec.EncodeSignal(Signal{}); !errors.Is(err, ErrUnknownSignal) {
		t.Errorf("Expected ErrUnknownSignal, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindUserText: "USER_TEXT",
		KindConfirm:  "CONTROL_CONFIRM",
		KindAck:      "CONTROL_ACK",
		Kind(0):      "UNKNOWN",
	}
	for kind, want := range tests {
		if kind.String() != want {
			t.Errorf("Kind(%d).String() = %s, want %s", kind, kind.String(), want)
		}
	}
}
