package ids

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// CodedLength is the length of a coded id: 16 raw bytes in unpadded base64url.
const CodedLength = 22

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newULID(t time.Time) ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), entropy)
}

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	return newULID(time.Now()).String()
}

// CreateCodedUUID returns a time-ordered id in its compact 22-character form.
// The raw bytes are a ULID so the creation timestamp can be recovered with
// CodedTime.
func CreateCodedUUID() string {
	id := newULID(time.Now())
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// ParseCoded decodes a coded id back into its ULID.
func ParseCoded(coded string) (ulid.ULID, error) {
	var id ulid.ULID
	if len(coded) != CodedLength {
		return id, fmt.Errorf("coded id must be %d characters, got %d", CodedLength, len(coded))
	}
	raw, err := base64.RawURLEncoding.DecodeString(coded)
	if err != nil {
		return id, fmt.Errorf("decode coded id: %w", err)
	}
	copy(id[:], raw)
	return id, nil
}

// CodedTime returns the UTC timestamp a coded id was created at.
func CodedTime(coded string) (time.Time, error) {
	id, err := ParseCoded(coded)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()).UTC(), nil
}

// Compare orders two coded ids by creation. Undecodable ids sort first.
func Compare(a, b string) int {
	ida, errA := ParseCoded(a)
	idb, errB := ParseCoded(b)
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return ida.Compare(idb)
}
