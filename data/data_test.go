package data

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func vec(vals ...float64) *mat.VecDense {
	return mat.NewVecDense(len(vals), vals)
}

func TestAppendKeepsSorted(t *testing.T) {
	s := New()
	// Out-of-order inserts across two outputs.
	inputs := []Datum{
		{P: 1, X: vec(0.5), Y: 1},
		{P: 0, X: vec(2.0), Y: 2},
		{P: 0, X: vec(-1.0), Y: 3},
		{P: 1, X: vec(-0.5), Y: 4},
		{P: 0, X: vec(0.0), Y: 5},
	}
	for _, d := range inputs {
		require.NoError(t, s.Append(d))
	}

	require.Equal(t, 5, s.Len())
	for i := 1; i < s.Len(); i++ {
		prev, cur := s.Get(i-1), s.Get(i)
		assert.LessOrEqual(t, Compare(prev, cur), 0,
			"records %d and %d out of order", i-1, i)
	}
}

func TestFind(t *testing.T) {
	s := New()
	for _, x := range []float64{-1, 0, 1, 2} {
		require.NoError(t, s.Append(Datum{X: vec(x), Y: x * x}))
	}

	for i := 0; i < s.Len(); i++ {
		d := s.Get(i)
		assert.Equal(t, i+1, s.Find(d), "record %d not found", i)
	}

	assert.Zero(t, s.Find(&Datum{X: vec(0.5)}))
	assert.Zero(t, s.Find(&Datum{P: 1, X: vec(0)}))
	assert.Zero(t, s.Find(nil))
	assert.Zero(t, s.Find(&Datum{X: vec(0, 0)}))
}

func TestAppendRejectsMismatch(t *testing.T) {
	s := New()
	require.NoError(t, s.Append(Datum{X: vec(1, 2), Y: 0}))

	assert.Error(t, s.Append(Datum{X: vec(1), Y: 0}))
	assert.Error(t, s.Append(Datum{X: nil, Y: 0}))
	assert.Error(t, s.Append(Datum{P: -1, X: vec(1, 2)}))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s.Dims())
}

func TestInner(t *testing.T) {
	s := New()
	require.NoError(t, s.Append(Datum{X: vec(0), Y: 1}))
	require.NoError(t, s.Append(Datum{X: vec(1), Y: -2}))
	require.NoError(t, s.Append(Datum{X: vec(2), Y: 3}))
	assert.InDelta(t, 14.0, s.Inner(), 1e-12)
}

func TestAppendGrid(t *testing.T) {
	s := New()
	g := mat.NewDense(1, 3, []float64{0, 0.5, 1})
	require.NoError(t, s.AppendGrid(2, g))

	require.Equal(t, 3, s.Len())
	for i := 0; i < s.Len(); i++ {
		d := s.Get(i)
		assert.Equal(t, 2, d.P)
		assert.Zero(t, d.Y)
	}
	assert.Equal(t, 0.0, s.Get(0).X.AtVec(0))
	assert.Equal(t, 0.5, s.Get(1).X.AtVec(0))
	assert.Equal(t, 1.0, s.Get(2).X.AtVec(0))

	assert.Error(t, s.AppendGrid(0, mat.NewDense(1, 3, []float64{0, -1, 1})))
}

func TestSetRestoresOrder(t *testing.T) {
	s := New()
	for _, x := range []float64{0, 1, 2} {
		require.NoError(t, s.Append(Datum{X: vec(x), Y: x}))
	}

	// Move the first record past the others.
	require.NoError(t, s.Set(0, Datum{X: vec(5), Y: 9}))
	assert.Equal(t, 5.0, s.Get(2).X.AtVec(0))
	assert.Equal(t, 1.0, s.Get(0).X.AtVec(0))
}

func TestCloneIsolation(t *testing.T) {
	s := New()
	x := vec(1)
	require.NoError(t, s.Append(Datum{X: x, Y: 0}))

	// Mutating the caller's vector must not reach the stored record.
	x.SetVec(0, 99)
	assert.Equal(t, 1.0, s.Get(0).X.AtVec(0))
}

func TestReadWriteRoundTrip(t *testing.T) {
	s := New()
	require.NoError(t, s.Append(Datum{P: 0, X: vec(0.5, -1.25), Y: 2}))
	require.NoError(t, s.Append(Datum{P: 1, X: vec(0.25, 3), Y: -0.5}))

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))

	out := New()
	require.NoError(t, out.Read(&buf))

	require.Equal(t, s.Len(), out.Len())
	require.Equal(t, s.Dims(), out.Dims())
	for i := 0; i < s.Len(); i++ {
		a, b := s.Get(i), out.Get(i)
		assert.Equal(t, a.P, b.P)
		assert.Equal(t, a.Y, b.Y)
		for d := 0; d < s.Dims(); d++ {
			assert.Equal(t, a.X.AtVec(d), b.X.AtVec(d))
		}
	}
}

func TestReadRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"missing header": "0 1.0 2.0\n",
		"bad field count": "# 1 2\n0 1.0 2.0\n",
		"bad output index": "# 1 1\n-1 1.0 2.0\n",
		"bad value": "# 1 1\n0 1.0 zzz\n",
	}
	for name, text := range cases {
		s := New()
		err := s.Read(bytes.NewBufferString(text))
		assert.Error(t, err, name)
		assert.Zero(t, s.Len(), name)
	}
}

func TestReadSkipsComments(t *testing.T) {
	text := "# 2 1\n# a comment\n0 1.0 2.0\n\n0 2.0 4.0\n"
	s := New()
	require.NoError(t, s.Read(bytes.NewBufferString(text)))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.Dims())
}
