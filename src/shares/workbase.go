package shares

// MinerWorkbase is the work template handed to miners by the local pool
// software. Shares reference it through WorkInfoID.
type MinerWorkbase struct {
	WorkInfoID uint64   `codec:"workinfoid"`
	Height     uint64   `codec:"height"`
	PrevHash   string   `codec:"prevhash"`
	Coinb1     string   `codec:"coinb1"`
	Coinb2     string   `codec:"coinb2"`
	Merkles    []string `codec:"merkles"`
	Version    string   `codec:"version"`
	NBits      string   `codec:"nbit"`
	NTime      string   `codec:"ntime"`
	CreatedAt  int64    `codec:"createdate"`
}

// Marshal ...
func (w *MinerWorkbase) Marshal() ([]byte, error) {
	return marshal(w)
}

// Unmarshal ...
func (w *MinerWorkbase) Unmarshal(data []byte) error {
	return unmarshal(data, w)
}
