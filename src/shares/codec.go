package shares

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// cborHandle returns the handle used for every value persisted by the store
// and for share-id hashing. Canonical mode keeps encodings, and therefore
// share ids, deterministic.
func cborHandle() *codec.CborHandle {
	h := new(codec.CborHandle)
	h.Canonical = true
	return h
}

func marshal(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	enc := codec.NewEncoder(&b, cborHandle())
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func unmarshal(data []byte, v interface{}) error {
	b := bytes.NewBuffer(data)
	dec := codec.NewDecoder(b, cborHandle())
	return dec.Decode(v)
}
