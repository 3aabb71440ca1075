package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasherDigestsPageBodies(t *testing.T) {
	t.Parallel()

	h := New()
	page := []byte(`<html><body><div class="job_listing"><h2>Data Entry Specialist</h2></div></body></html>`)

	first, err := h.Hash(page)
	require.NoError(t, err)
	require.Regexp(t, `^[0-9a-f]{64}$`, first)

	again, err := h.Hash(append([]byte(nil), page...))
	require.NoError(t, err)
	require.Equal(t, first, again)

	changed, err := h.Hash(append(page, '\n'))
	require.NoError(t, err)
	require.NotEqual(t, first, changed)
}

func TestHasherEmptyBody(t *testing.T) {
	t.Parallel()

	got, err := New().Hash(nil)
	require.NoError(t, err)
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", got)
}
