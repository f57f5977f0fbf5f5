package badgerindex

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/kbsync/core"
)

// Key prefixes for different data types
const (
	recordPrefix   = "vecrec"
	docIndexPrefix = "vecdoc"
)

// makeRecordKey generates a key for an embedding record by ID.
func makeRecordKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", recordPrefix, id))
}

// makeDocIndexKey generates a composite key for the document index.
// Format: prefix:documentID:recordID
func makeDocIndexKey(documentID string, id core.ID) []byte {
	prefix := docIndexPrefix + ":" + documentID + ":"
	prefixBytes := []byte(prefix)
	buf := make([]byte, len(prefixBytes)+8)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialDocIndexKey generates a partial key for scanning all records
// belonging to a document.
func makePartialDocIndexKey(documentID string) []byte {
	return []byte(docIndexPrefix + ":" + documentID + ":")
}

// recordIDFromDocIndexKey extracts the record ID from a document index key.
func recordIDFromDocIndexKey(key []byte) (core.ID, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("document index key too short: %d bytes", len(key))
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:])), nil
}
