package messages

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ugorji/go/codec"
)

// MaxMessageSize bounds a single encoded message read from a stream.
const MaxMessageSize = 1 << 20

var (
	// ErrUnknownMessage is returned when decoding a message whose type tag is
	// not a known variant.
	ErrUnknownMessage = errors.New("unknown message type")

	// ErrNilMessage is returned when encoding a nil Message.
	ErrNilMessage = errors.New("nil message")
)

// envelope is the wire form of a Message: a type tag and the CBOR encoding of
// the variant. Decoders that do not know the tag can still parse the
// envelope and reject it cleanly.
type envelope struct {
	Type    MessageType `codec:"type"`
	Payload []byte      `codec:"payload"`
}

func cborHandle() *codec.CborHandle {
	h := new(codec.CborHandle)
	h.Canonical = true
	return h
}

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	var b bytes.Buffer
	if err := WriteMessage(&b, m); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Decode parses a Message produced by Encode.
func Decode(data []byte) (Message, error) {
	return ReadMessage(bytes.NewReader(data))
}

// WriteMessage encodes m onto w.
func WriteMessage(w io.Writer, m Message) error {
	if m == nil {
		return ErrNilMessage
	}

	var payload bytes.Buffer
	if err := codec.NewEncoder(&payload, cborHandle()).Encode(m); err != nil {
		return err
	}

	env := envelope{
		Type:    m.Type(),
		Payload: payload.Bytes(),
	}

	return codec.NewEncoder(w, cborHandle()).Encode(&env)
}

// ReadMessage decodes one Message from r, reading at most MaxMessageSize
// bytes.
func ReadMessage(r io.Reader) (Message, error) {
	var env envelope
	dec := codec.NewDecoder(io.LimitReader(r, MaxMessageSize), cborHandle())
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding message envelope: %v", err)
	}

	m, err := newMessage(env.Type)
	if err != nil {
		return nil, err
	}

	if err := codec.NewDecoderBytes(env.Payload, cborHandle()).Decode(m); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %v", env.Type, err)
	}

	return m, nil
}
