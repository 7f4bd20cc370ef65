package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lastree/common"
)

func TestInt64KeySerializerRoundTrip(t *testing.T) {
	ser := Int64KeySerializer{}
	require.Equal(t, 8, ser.Size())

	buf := make([]byte, ser.Size())
	ser.Serialize(buf, common.Int64Key(-42))

	got := ser.Deserialize(buf)
	require.Equal(t, common.Int64Key(-42), got)
}

func TestInt64KeySerializerPreservesOrder(t *testing.T) {
	ser := Int64KeySerializer{}
	a := make([]byte, ser.Size())
	b := make([]byte, ser.Size())
	ser.Serialize(a, common.Int64Key(5))
	ser.Serialize(b, common.Int64Key(10))

	require.True(t, string(a) < string(b), "byte order must match key order for big-endian fixed-width keys")
}
