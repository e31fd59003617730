package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// MarshalProgram serializes a Program to CBOR bytes.
func MarshalProgram(p *Program) ([]byte, error) {
	return imageEncMode.Marshal(p)
}

// UnmarshalProgram deserializes a Program from CBOR bytes.
func UnmarshalProgram(data []byte) (*Program, error) {
	var p Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("vm: unmarshal program: %w", err)
	}
	if p.Version != ProgramVersion {
		return nil, fmt.Errorf("vm: unsupported program version %d (want %d)", p.Version, ProgramVersion)
	}
	return &p, nil
}
