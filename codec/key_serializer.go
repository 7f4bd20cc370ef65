package codec

import (
	"encoding/binary"

	"lastree/common"
)

// KeySerializer turns a common.Key into a fixed number of bytes and
// back. Restricted to fixed-size keys so leaf headers and internal node
// slots can reserve a constant Size() bytes per key without a length
// prefix.
type KeySerializer interface {
	Serialize(dest []byte, key common.Key)
	Deserialize(src []byte) common.Key
	Size() int
}

// Int64KeySerializer serializes common.Int64Key as a big-endian int64.
type Int64KeySerializer struct{}

func (Int64KeySerializer) Size() int { return 8 }

func (Int64KeySerializer) Serialize(dest []byte, key common.Key) {
	binary.BigEndian.PutUint64(dest, uint64(key.(common.Int64Key)))
}

func (Int64KeySerializer) Deserialize(src []byte) common.Key {
	return common.Int64Key(binary.BigEndian.Uint64(src))
}

var _ KeySerializer = Int64KeySerializer{}
