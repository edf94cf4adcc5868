// Package nodeid implements 160-bit DHT identifiers and the XOR metric.
package nodeid

import (
	"crypto/rand"
	"crypto/sha1" // nolint: gosec
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/gofrs/uuid"
)

// Length of an identifier in bytes.
const Length = 20

// Bits is the size of the identifier space.
const Bits = Length * 8

// ErrMalformed is returned when a byte string cannot be used as an identifier.
var ErrMalformed = errors.New("identifier must be 20 bytes")

// ID is a node id or an info hash.
type ID [Length]byte

// Max is the exclusive upper bound of the distance space, 2^160.
var Max = new(big.Int).Lsh(big.NewInt(1), Bits)

// FromBytes returns the ID in b. Returns ErrMalformed if b is not exactly 20 bytes long.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != Length {
		return id, ErrMalformed
	}
	copy(id[:], b)
	return id, nil
}

// FromString is like FromBytes for binary strings.
func FromString(s string) (ID, error) {
	return FromBytes([]byte(s))
}

// FromHex parses 40 hex characters.
func FromHex(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, err
	}
	return FromBytes(b)
}

// Random returns a new random ID.
func Random() (ID, error) {
	var id ID
	_, err := rand.Read(id[:])
	return id, err
}

// FromSeed derives a stable ID from a name.
// The name is turned into a name based UUID and the ID is the SHA-1 of its URN.
func FromSeed(name string) ID {
	u := uuid.NewV3(uuid.NamespaceDNS, name)
	return sha1.Sum([]byte("urn:uuid:" + u.String())) // nolint: gosec
}

// String returns the hex encoding of the ID.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the ID as a binary string, the form used on the wire and as task keys.
func (id ID) Bytes() string {
	return string(id[:])
}

// Xor returns the bitwise XOR of two IDs.
func (id ID) Xor(other ID) ID {
	var d ID
	for i := range id {
		d[i] = id[i] ^ other[i]
	}
	return d
}

// Int interprets the ID as a big-endian unsigned integer.
func (id ID) Int() *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// Distance returns the XOR distance between two IDs as an integer in [0, 2^160).
func Distance(a, b ID) *big.Int {
	return a.Xor(b).Int()
}

// Neighbor returns an ID that shares its first half with target and its second half with local.
// Remote nodes consider such an ID close to themselves and keep it in their tables.
func Neighbor(target, local ID) ID {
	var id ID
	copy(id[:Length/2], target[:Length/2])
	copy(id[Length/2:], local[Length/2:])
	return id
}
