package dist

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode encodes canonically so equal snapshots hash equally.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// envelope carries an encoded snapshot with the SHA-256 of its body.
type envelope struct {
	Hash [32]byte `cbor:"1,keyasint"`
	Body []byte   `cbor:"2,keyasint"`
}

// Marshal encodes a snapshot for transport.
func Marshal(s *Snapshot) ([]byte, error) {
	body, err := cborEncMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("dist: marshal snapshot: %w", err)
	}
	return cborEncMode.Marshal(&envelope{Hash: sha256.Sum256(body), Body: body})
}

// Unmarshal decodes a snapshot and verifies its content hash.
func Unmarshal(data []byte) (*Snapshot, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("dist: unmarshal envelope: %w", err)
	}
	if computed := sha256.Sum256(env.Body); computed != env.Hash {
		return nil, fmt.Errorf("dist: hash mismatch: declared %x, computed %x", env.Hash, computed)
	}
	var s Snapshot
	if err := cbor.Unmarshal(env.Body, &s); err != nil {
		return nil, fmt.Errorf("dist: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// Hash returns the content hash Marshal records for s.
func Hash(s *Snapshot) ([32]byte, error) {
	body, err := cborEncMode.Marshal(s)
	if err != nil {
		return [32]byte{}, fmt.Errorf("dist: marshal snapshot: %w", err)
	}
	return sha256.Sum256(body), nil
}
