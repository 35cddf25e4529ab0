package shares

import (
	"fmt"
	"time"
)

// ShareHeader is the hashed part of a share.
type ShareHeader struct {
	// MinerPubKey is the hex encoded public key of the miner that found the
	// share.
	MinerPubKey string `codec:"miner_pubkey"`

	// PrevShareHash links to the previous share. It is empty for the first
	// share of a chain.
	PrevShareHash ShareID `codec:"prev_share_hash"`

	// WorkInfoID references the MinerWorkbase the share was mined on.
	WorkInfoID uint64 `codec:"workinfoid"`

	Nonce     uint32 `codec:"nonce"`
	NTime     uint32 `codec:"ntime"`
	Timestamp int64  `codec:"timestamp"`
}

// ShareBlock is a share as exchanged between nodes and stored in the chain.
type ShareBlock struct {
	Hash     ShareID     `codec:"hash"`
	Header   ShareHeader `codec:"header"`
	Coinbase []byte      `codec:"coinbase,omitempty"`
}

// NewShareBlock computes the hash of header and returns the corresponding
// ShareBlock. A zero Timestamp is set to the current time.
func NewShareBlock(header ShareHeader, coinbase []byte) (*ShareBlock, error) {
	if header.Timestamp == 0 {
		header.Timestamp = time.Now().Unix()
	}

	hash, err := header.Hash()
	if err != nil {
		return nil, err
	}

	return &ShareBlock{
		Hash:     hash,
		Header:   header,
		Coinbase: coinbase,
	}, nil
}

// Hash returns the ShareID of the header.
func (h *ShareHeader) Hash() (ShareID, error) {
	bytes, err := marshal(h)
	if err != nil {
		return "", err
	}
	return NewShareID(bytes)
}

// Verify checks that the stored hash matches the header.
func (s *ShareBlock) Verify() error {
	hash, err := s.Header.Hash()
	if err != nil {
		return err
	}
	if hash != s.Hash {
		return fmt.Errorf("share hash mismatch: have %s, header hashes to %s", s.Hash, hash)
	}
	return nil
}

// Marshal ...
func (s *ShareBlock) Marshal() ([]byte, error) {
	return marshal(s)
}

// Unmarshal ...
func (s *ShareBlock) Unmarshal(data []byte) error {
	return unmarshal(data, s)
}
