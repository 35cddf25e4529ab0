package shares

import (
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// ShareID identifies a share. It is the string form of a CIDv1 (dag-cbor,
// sha2-256) computed over the CBOR encoding of the share header, so the same
// header always yields the same identifier on every node.
type ShareID string

var shareIDPrefix = cid.Prefix{
	Version:  1,
	Codec:    cid.DagCBOR,
	MhType:   mh.SHA2_256,
	MhLength: -1,
}

// NewShareID hashes data into a ShareID.
func NewShareID(data []byte) (ShareID, error) {
	c, err := shareIDPrefix.Sum(data)
	if err != nil {
		return "", err
	}
	return ShareID(c.String()), nil
}

// ParseShareID validates s as a CID and returns it in canonical form.
func ParseShareID(s string) (ShareID, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return "", err
	}
	return ShareID(c.String()), nil
}

// IsZero reports whether id is the empty identifier, used for "no previous
// share".
func (id ShareID) IsZero() bool {
	return id == ""
}

func (id ShareID) String() string {
	return string(id)
}
