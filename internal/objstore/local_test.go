package objstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBackend_WriteReadRoundTrip(t *testing.T) {
	w, err := New(Config{Backend: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	defer w.Close()

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, "cam1/unified.json", []byte(`{"ok":true}`)))

	data, err := w.Read(ctx, "cam1/unified.json")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	names, err := w.List(ctx, "cam1/")
	require.NoError(t, err)
	assert.Contains(t, names, "cam1/unified.json")
}
