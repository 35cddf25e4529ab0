package shares

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger"
	cm "github.com/p2poolv2/p2pool/src/common"
	"github.com/sirupsen/logrus"
)

const (
	sharePrefix    = "share"
	workbasePrefix = "workbase"
	tipKey         = "tip"
)

// Store persists shares, workbases and the chain tip in a Badger database.
type Store struct {
	db     *badger.DB
	path   string
	logger *logrus.Entry

	closed    int32
	closeOnce sync.Once
}

// NewStore opens the database in path, creating it if needed.
func NewStore(path string, logger *logrus.Entry) (*Store, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithLogger(logger.WithField("ns", "badger"))

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:     handle,
		path:   path,
		logger: logger,
	}, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func shareKey(id ShareID) []byte {
	return []byte(fmt.Sprintf("%s_%s", sharePrefix, id))
}

func workbaseKey(workInfoID uint64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", workbasePrefix, workInfoID))
}

/*******************************************************************************
Shares
*******************************************************************************/

// AddShare writes share under its hash. Writing the same share twice is
// idempotent.
func (s *Store) AddShare(share *ShareBlock) error {
	if share == nil || share.Hash.IsZero() {
		return cm.NewStoreErr("Share", cm.Empty, "")
	}
	if err := s.checkOpen("Share"); err != nil {
		return err
	}

	val, err := share.Marshal()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(shareKey(share.Hash), val)
	})
}

// GetShare ...
func (s *Store) GetShare(id ShareID) (*ShareBlock, error) {
	if err := s.checkOpen("Share"); err != nil {
		return nil, err
	}

	var shareBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(shareKey(id))
		if err != nil {
			return err
		}
		shareBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapError(err, "Share", string(id))
	}

	share := new(ShareBlock)
	if err := share.Unmarshal(shareBytes); err != nil {
		return nil, err
	}

	return share, nil
}

// HasShare ...
func (s *Store) HasShare(id ShareID) bool {
	if s.checkOpen("Share") != nil {
		return false
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(shareKey(id))
		return err
	})
	return err == nil
}

/*******************************************************************************
Tip
*******************************************************************************/

// SetTip records id as the current chain tip.
func (s *Store) SetTip(id ShareID) error {
	if err := s.checkOpen("Tip"); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(tipKey), []byte(id))
	})
}

// AddShareAsTip writes share and records it as the chain tip in a single
// transaction.
func (s *Store) AddShareAsTip(share *ShareBlock) error {
	if share == nil || share.Hash.IsZero() {
		return cm.NewStoreErr("Share", cm.Empty, "")
	}
	if err := s.checkOpen("Share"); err != nil {
		return err
	}

	val, err := share.Marshal()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(shareKey(share.Hash), val); err != nil {
			return err
		}
		return txn.Set([]byte(tipKey), []byte(share.Hash))
	})
}

// GetTip returns the persisted tip, or a KeyNotFound StoreErr for an empty
// chain.
func (s *Store) GetTip() (ShareID, error) {
	if err := s.checkOpen("Tip"); err != nil {
		return "", err
	}

	var tipBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(tipKey))
		if err != nil {
			return err
		}
		tipBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", mapError(err, "Tip", tipKey)
	}
	return ShareID(tipBytes), nil
}

/*******************************************************************************
Workbases
*******************************************************************************/

// AddWorkbase stores workbase under its WorkInfoID. Workbases are immutable;
// storing a second workbase with the same id fails with KeyAlreadyExists.
func (s *Store) AddWorkbase(workbase *MinerWorkbase) error {
	if workbase == nil {
		return cm.NewStoreErr("Workbase", cm.Empty, "")
	}
	if err := s.checkOpen("Workbase"); err != nil {
		return err
	}

	val, err := workbase.Marshal()
	if err != nil {
		return err
	}

	key := workbaseKey(workbase.WorkInfoID)

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	_, err = tx.Get(key)
	if err == nil {
		return cm.NewStoreErr("Workbase", cm.KeyAlreadyExists, string(key))
	}
	if !isDBKeyNotFound(err) {
		return err
	}

	if err := tx.Set(key, val); err != nil {
		return err
	}

	return tx.Commit()
}

// GetWorkbase ...
func (s *Store) GetWorkbase(workInfoID uint64) (*MinerWorkbase, error) {
	if err := s.checkOpen("Workbase"); err != nil {
		return nil, err
	}

	key := workbaseKey(workInfoID)

	var wbBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		wbBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapError(err, "Workbase", string(key))
	}

	workbase := new(MinerWorkbase)
	if err := workbase.Unmarshal(wbBytes); err != nil {
		return nil, err
	}

	return workbase, nil
}

/*******************************************************************************
Lifecycle
*******************************************************************************/

// Close closes the underlying database. It is safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		atomic.StoreInt32(&s.closed, 1)
		err = s.db.Close()
	})
	return err
}

// Path returns the filepath of the underlying database.
func (s *Store) Path() string {
	return s.path
}

// checkOpen returns a Closed StoreErr once Close was called.
func (s *Store) checkOpen(name string) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return cm.NewStoreErr(name, cm.Closed, s.path)
	}
	return nil
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
