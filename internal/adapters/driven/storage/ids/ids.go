// Package ids generates record identifiers for the storage adapters.
//
// Document states, conflicts and exports get random UUIDs. Versions and
// events get ULIDs, which sort in creation order and break ties between
// rows written within the same clock tick.
package ids

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// New returns a random identifier.
func New() string {
	return uuid.New().String()
}

// Ordered returns an identifier that sorts after every identifier
// previously returned by Ordered in this process for the same or an
// earlier time.
func Ordered(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}
