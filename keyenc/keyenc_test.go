package keyenc

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []Value{
		Int(0), Int(-1), Int(1), Int(math.MinInt64), Int(math.MaxInt64),
		Dbl(0), Dbl(-0.0), Dbl(3.14), Dbl(-3.14), Dbl(math.Inf(1)), Dbl(math.Inf(-1)),
		Str(""), Str("hello"), Str("\x00embedded"),
		Byt(nil), Byt([]byte{}), Byt([]byte{0xbe, 0xef}), Byt([]byte{0x00, 0x00, 0xff}),
	}
	for _, v := range cases {
		enc := Encode(v)
		dec, n, err := Decode(enc)
		require.NoError(t, err)
		require.Equal(t, len(enc), n)
		require.Equal(t, v.Type, dec.Type)
		switch v.Type {
		case Int64:
			require.Equal(t, v.Int64, dec.Int64)
		case Double:
			if math.IsInf(v.Double, 0) {
				require.Equal(t, v.Double, dec.Double)
			} else {
				require.InDelta(t, v.Double, dec.Double, 0)
			}
		case String:
			require.Equal(t, v.String, dec.String)
		case Bytes:
			require.True(t, bytes.Equal(v.Bytes, dec.Bytes))
		}
	}
}

func TestOrderPreservingInt64(t *testing.T) {
	values := []int64{math.MinInt64, -1000, -1, 0, 1, 1000, math.MaxInt64}
	shuffled := append([]int64(nil), values...)
	sort.Slice(shuffled, func(i, j int) bool { return bytes.Compare(Encode(Int(shuffled[i])), Encode(Int(shuffled[j]))) < 0 })
	require.Equal(t, values, shuffled)
}

func TestOrderPreservingDouble(t *testing.T) {
	values := []float64{math.Inf(-1), -100.5, -1, 0, 1, 100.5, math.Inf(1)}
	encoded := make([][]byte, len(values))
	for i, v := range values {
		encoded[i] = Encode(Dbl(v))
	}
	for i := 0; i < len(encoded)-1; i++ {
		require.Truef(t, bytes.Compare(encoded[i], encoded[i+1]) < 0, "%v should sort before %v", values[i], values[i+1])
	}
}

func TestOrderPreservingString(t *testing.T) {
	values := []string{"", "a", "aa", "ab", "b"}
	for i := 0; i < len(values)-1; i++ {
		a, b := Encode(Str(values[i])), Encode(Str(values[i+1]))
		require.True(t, bytes.Compare(a, b) < 0)
	}
}

func TestOrderPreservingBytes(t *testing.T) {
	values := [][]byte{{}, {0x00}, {0x01}, {0x01, 0x00}, {0x02}}
	for i := 0; i < len(values)-1; i++ {
		a, b := Encode(Byt(values[i])), Encode(Byt(values[i+1]))
		require.Truef(t, bytes.Compare(a, b) < 0, "%v should sort before %v", values[i], values[i+1])
	}
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode(nil)
	require.Error(t, err)
	_, _, err = Decode([]byte{0xaa})
	require.Error(t, err)
	_, _, err = Decode([]byte{tagString, 'a', 'b'})
	require.Error(t, err)
	_, _, err = Decode([]byte{tagInt64, 0, 0, 0})
	require.Error(t, err)
}
