// Package leveldb implements the backup.Index interface on goleveldb.
package leveldb

import (
	"fmt"
	"sync"

	"flashvault/bid"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"

	log "github.com/sirupsen/logrus"
)

const (
	keyPrefixBID = "BID" // Backup metadata indexed by ID. Followed by the textual ID representation
	keyPrefixTSC = "TSC" // Backup metadata indexed by creation time. Followed by a 16-digit hexadecimal nanosecond timestamp and the textual ID
)

var ErrCorrupted = fmt.Errorf("corrupted")

type levelDB struct {
	path string
	mu   sync.Mutex
	db   *leveldb.DB
}

func keyFromID(id *bid.ID) []byte {
	return append([]byte(keyPrefixBID), []byte(id.String())...)
}

func keyFromTime(nanos uint64, id *bid.ID) []byte {
	key := append([]byte(keyPrefixTSC), []byte(fmt.Sprintf("%016x", nanos))...)
	return append(key, []byte(id.String())...)
}

func initLevelDb(path string) (*leveldb.DB, error) {
	// Artifacts carry the payload; records here are small, so skip compression
	opts := &opt.Options{
		Compression: opt.NoCompression,
	}

	// Open or create the new DB. The directory LOCK file doubles as the
	// cross-process single-writer guard for catalog mutations.
	db, err := leveldb.OpenFile(path, opts)
	if errors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, nil)
	}

	if err != nil {
		return nil, err
	}

	log.Infof("Opened LevelDB at %s", path)

	return db, nil
}

func (l *levelDB) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}
