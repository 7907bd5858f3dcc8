package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/strataoptions/sdk-go/core/types"
)

// SchemaVersion is stamped on every stored payload. Bump it whenever a
// persisted shape changes incompatibly.
const SchemaVersion uint32 = 1

// Key builds the namespaced store key for one entity of one scope:
// {schemaVersion}:{chainId}:{poolAddress}:{entityKind}:{scopeId}.
func Key(scope types.Scope, kind string) string {
	return fmt.Sprintf("%d:%d:%s:%s:%s",
		SchemaVersion, scope.ChainID, scope.Pool.Hex(), kind, scope.ID())
}

// Marshal wraps v in the versioned envelope: a little-endian uint32
// schema version followed by the JSON body.
func Marshal(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling payload")
	}
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out[:4], SchemaVersion)
	copy(out[4:], body)
	return out, nil
}

// Unmarshal opens the envelope into v. A version mismatch returns
// ErrSchemaVersion wrapped with both versions; the payload is never
// migrated in place.
func Unmarshal(data []byte, v any) error {
	if len(data) < 4 {
		return errors.Wrapf(types.ErrSchemaVersion, "envelope too short (%d bytes)", len(data))
	}
	got := binary.LittleEndian.Uint32(data[:4])
	if got != SchemaVersion {
		return errors.Wrapf(types.ErrSchemaVersion, "stored version %d, expected %d", got, SchemaVersion)
	}
	if err := json.Unmarshal(data[4:], v); err != nil {
		return errors.Wrap(err, "unmarshaling payload")
	}
	return nil
}
