package evaluate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveConfusionPNGWritesImage(t *testing.T) {
	cm := Confusion(
		[]string{"target_price", "none", "range"},
		[]string{"target_price", "none", "none"},
	)

	path := filepath.Join(t.TempDir(), "nested", "16.png")
	require.NoError(t, SaveConfusionPNG(cm, path, "batch_size=16"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])
}

func TestSaveConfusionPNGRejectsEmptyMatrix(t *testing.T) {
	err := SaveConfusionPNG(ConfusionMatrix{}, filepath.Join(t.TempDir(), "x.png"), "")
	assert.Error(t, err)
}
