package bytecode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Magic bytes for program files: "KBC1" (Kestrel ByteCode, format 1)
var Magic = []byte{'K', 'B', 'C', '1'}

// ErrBadMagic is returned when decoding data that is not a program file.
var ErrBadMagic = errors.New("bytecode: bad magic")

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR encoder: %v", err))
	}
}

// Marshal encodes a program as the magic header followed by canonical CBOR.
// Identical programs always produce identical bytes.
func Marshal(p *Program) ([]byte, error) {
	body, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal: %w", err)
	}
	out := make([]byte, 0, len(Magic)+len(body))
	out = append(out, Magic...)
	return append(out, body...), nil
}

// Unmarshal decodes and validates a program.
func Unmarshal(data []byte) (*Program, error) {
	if !bytes.HasPrefix(data, Magic) {
		return nil, ErrBadMagic
	}
	var p Program
	if err := cbor.Unmarshal(data[len(Magic):], &p); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// WriteTo writes the encoded program to w.
func (p *Program) WriteTo(w io.Writer) (int64, error) {
	data, err := Marshal(p)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ReadFile loads and validates a program file.
func ReadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// WriteFile encodes the program to path.
func WriteFile(path string, p *Program) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
