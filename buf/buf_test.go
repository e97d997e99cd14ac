package buf_test

import (
	"testing"

	"github.com/go-libre/libre/buf"
	"github.com/stretchr/testify/require"
)

func TestReadWriteRoundTrip(t *testing.T) {
	b := buf.New(0)
	b.WriteU8(0x01)
	b.WriteU16(0x0203)
	b.WriteU24(0x040506)
	b.WriteU32(0x0708090a)

	require.Equal(t, 10, b.End())

	r := buf.Wrap(b.Bytes())
	u8, err := r.ReadU8()
	require.NoError(t, err)
	require.EqualValues(t, 0x01, u8)

	u16, err := r.ReadU16()
	require.NoError(t, err)
	require.EqualValues(t, 0x0203, u16)

	u24, err := r.ReadU24()
	require.NoError(t, err)
	require.EqualValues(t, 0x040506, u24)

	u32, err := r.ReadU32()
	require.NoError(t, err)
	require.EqualValues(t, 0x0708090a, u32)

	require.Equal(t, 0, r.Left())
}

func TestReadPastEndNeedsMoreData(t *testing.T) {
	r := buf.Wrap([]byte{0x01})
	_, err := r.ReadU16()
	require.Error(t, err)
}

func TestResetReusesBackingArray(t *testing.T) {
	b := buf.New(16)
	b.WriteBytes([]byte{1, 2, 3})
	require.Equal(t, 3, b.End())

	b.Reset()
	require.Equal(t, 0, b.End())
	require.Equal(t, 0, b.Pos())
}
