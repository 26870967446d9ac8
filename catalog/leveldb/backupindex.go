package leveldb

import (
	"flashvault/bid"
	"flashvault/datamodel/backup"

	"github.com/fxamacker/cbor/v2"
	log "github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var _ backup.Index = (*BackupIndex)(nil)

// BackupIndex stores each metadata record under two keys: one by backup ID
// for lookups and one by creation time for ordered listing. Both keys are
// written in a single batch, so a record is either fully indexed or absent.
type BackupIndex struct {
	levelDB
}

func NewBackupIndex(path string) (*BackupIndex, error) {
	ldb, err := initLevelDb(path)
	if err != nil {
		return nil, err
	}

	return &BackupIndex{
		levelDB: levelDB{
			path: path,
			db:   ldb,
		},
	}, nil
}

func (l *BackupIndex) Put(md *backup.Metadata) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := cbor.Marshal(md)
	if err != nil {
		return err
	}

	// Create a batch for atomic update of both keys
	batch := new(leveldb.Batch)
	batch.Put(keyFromID(&md.ID), raw)
	batch.Put(keyFromTime(uint64(md.CreatedAt.UnixNano()), &md.ID), raw)

	return l.db.Write(batch, nil)
}

func (l *BackupIndex) Get(id *bid.ID) (*backup.Metadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := l.db.Get(keyFromID(id), nil)
	if err == errors.ErrNotFound {
		return nil, backup.ErrorNotIndexed
	}
	if err != nil {
		return nil, err
	}

	md := &backup.Metadata{}
	if err := cbor.Unmarshal(raw, md); err != nil {
		return nil, err
	}

	// Compare the ID just in case
	if !md.ID.Equal(id) {
		log.Errorf("Get: backup ID mismatch: %s != %s", id.String(), md.ID.String())
		return nil, ErrCorrupted
	}

	return md, nil
}

func (l *BackupIndex) Has(id *bid.ID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Get(keyFromID(id), nil)
	if err == nil {
		return true, nil
	} else if err == errors.ErrNotFound {
		return false, nil
	} else {
		return false, err
	}
}

func (l *BackupIndex) Delete(id *bid.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// The time key embeds CreatedAt, so fetch the record first
	raw, err := l.db.Get(keyFromID(id), nil)
	if err == errors.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	md := &backup.Metadata{}
	if err := cbor.Unmarshal(raw, md); err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Delete(keyFromID(id))
	batch.Delete(keyFromTime(uint64(md.CreatedAt.UnixNano()), id))

	return l.db.Write(batch, nil)
}

// EnumerateByTime returns all records newest first by iterating the
// time-keyed prefix backwards.
func (l *BackupIndex) EnumerateByTime() ([]*backup.Metadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var results []*backup.Metadata

	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefixTSC)), nil)
	defer iter.Release()

	for ok := iter.Last(); ok; ok = iter.Prev() {
		md := &backup.Metadata{}
		if err := cbor.Unmarshal(iter.Value(), md); err != nil {
			return nil, err
		}
		results = append(results, md)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	return results, nil
}
