package shares

import (
	cm "github.com/p2poolv2/p2pool/src/common"
	"github.com/sirupsen/logrus"
)

// Chain tracks the local share chain on top of a Store. It is not safe for
// concurrent use; the node actor is its only user.
type Chain struct {
	store  *Store
	tip    ShareID
	logger *logrus.Entry
}

// NewChain returns a Chain backed by store, restoring the persisted tip if
// there is one.
func NewChain(store *Store, logger *logrus.Entry) (*Chain, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	chain := &Chain{
		store:  store,
		logger: logger,
	}

	tip, err := store.GetTip()
	switch {
	case err == nil:
		chain.tip = tip
		logger.WithField("tip", tip).Debug("Loaded chain tip")
	case cm.IsStore(err, cm.KeyNotFound):
		logger.Debug("Empty chain")
	default:
		return nil, err
	}

	return chain, nil
}

// AddShare stores share and makes it the new tip. The share hash must match
// its header, and its previous share, if any, must already be known.
func (c *Chain) AddShare(share *ShareBlock) error {
	if share == nil {
		return cm.NewStoreErr("Share", cm.Empty, "")
	}

	if err := share.Verify(); err != nil {
		return err
	}

	prev := share.Header.PrevShareHash
	if !prev.IsZero() && !c.store.HasShare(prev) {
		return cm.NewStoreErr("Share", cm.UnknownParent, string(prev))
	}

	if err := c.store.AddShareAsTip(share); err != nil {
		return err
	}

	c.tip = share.Hash

	c.logger.WithFields(logrus.Fields{
		"share": share.Hash,
		"prev":  prev,
	}).Debug("Added share")

	return nil
}

// Tip returns the most recent share accepted by the chain. The boolean is
// false for an empty chain.
func (c *Chain) Tip() (ShareID, bool) {
	return c.tip, !c.tip.IsZero()
}

// Store exposes the underlying store.
func (c *Chain) Store() *Store {
	return c.store
}

// Close closes the underlying store.
func (c *Chain) Close() error {
	return c.store.Close()
}
