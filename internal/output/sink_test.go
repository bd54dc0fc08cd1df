package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorderCapturesWrites(t *testing.T) {
	r := NewRecorder()

	assert.NoError(t, r.Enable())
	assert.True(t, r.Enabled())

	for _, v := range []uint8{0, 127, 255} {
		assert.NoError(t, r.Write(v))
	}
	assert.NoError(t, r.Silence())
	assert.NoError(t, r.Close())

	assert.Equal(t, []uint8{0, 127, 255}, r.Levels())
	assert.Equal(t, uint8(255), r.MaxLevel())
	assert.Equal(t, 1, r.Silences())
	assert.True(t, r.Closed())
}

func TestRecorderInjectedErrors(t *testing.T) {
	r := NewRecorder()
	r.EnableErr = assert.AnError
	assert.Error(t, r.Enable())

	r = NewRecorder()
	r.WriteErr = assert.AnError
	assert.Error(t, r.Write(1))
	assert.Empty(t, r.Levels())
}

func TestNullSinkSwallowsEverything(t *testing.T) {
	n := NewNull()
	assert.NoError(t, n.Enable())
	assert.NoError(t, n.Write(200))
	assert.NoError(t, n.Silence())
	assert.NoError(t, n.Close())
}

func TestPCMToFloat(t *testing.T) {
	assert.Equal(t, float32(0), pcmToFloat(128))
	assert.Equal(t, float32(-1), pcmToFloat(0))
	assert.InDelta(t, 0.992, pcmToFloat(255), 0.001)
}
