// Package codec defines the two external interfaces the tree consumes
// at its boundary: the tuple codec supplied by a caller's schema, and a
// key serializer needed to persist separator and cached min/max keys
// independently of any one tuple.
package codec

import "lastree/common"

// TupleCodec is opaque to the tree except through these four operations.
// The tree never inspects a tuple's fields beyond the key field it is
// told to extract.
type TupleCodec interface {
	// Length returns tuple's serialized byte length.
	Length(tuple any) int

	// Serialize writes tuple into dest, which is exactly Length(tuple)
	// bytes.
	Serialize(dest []byte, tuple any)

	// Deserialize reconstructs a tuple from a byte slice previously
	// produced by Serialize.
	Deserialize(src []byte) any

	// Field extracts the ordered key at the given field index.
	Field(tuple any, index int) common.Key
}
