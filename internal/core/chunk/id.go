package chunk

import (
	"strconv"

	"github.com/google/uuid"
)

// recordNS is the fixed namespace for deterministic record IDs.
// Never change it: a re-ingest must mint the same IDs as the first pass
// so the vector upsert overwrites instead of duplicating
var recordNS = uuid.MustParse("b0e7d1a4-3f52-5c18-9d6a-7c41e8f0b29d")

// RecordID derives the idempotency key for one record as a UUIDv5 over
// sourceID, the source-native timestamp token, and the piece ordinal
func RecordID(sourceID, rawTS string, ordinal int) string {
	name := sourceID + "|" + rawTS + "|" + strconv.Itoa(ordinal)
	return uuid.NewSHA1(recordNS, []byte(name)).String()
}
