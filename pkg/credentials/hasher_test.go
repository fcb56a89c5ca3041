package credentials

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap parameters keep the suite fast
func testHasher() *Argon2Hasher {
	return NewArgon2HasherWithParams(Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32})
}

func TestHashFormat(t *testing.T) {
	h := testHasher()

	digest, err := h.Hash("hunter2")
	require.NoError(t, err)

	parts := strings.Split(digest, ":")
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], saltLength*2)
	assert.Len(t, parts[1], 64)
}

func TestHashUsesRandomSalt(t *testing.T) {
	h := testHasher()

	first, err := h.Hash("same-secret")
	require.NoError(t, err)
	second, err := h.Hash("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify("same-secret", first))
	assert.True(t, h.Verify("same-secret", second))
}

func TestVerify(t *testing.T) {
	h := testHasher()
	digest, err := h.Hash("correct horse")
	require.NoError(t, err)

	emptyDigest, err := h.Hash("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		digest string
		want   bool
	}{
		{name: "matching secret", secret: "correct horse", digest: digest, want: true},
		{name: "wrong secret", secret: "battery staple", digest: digest, want: false},
		{name: "empty secret against non-empty digest", secret: "", digest: digest, want: false},
		{name: "empty secret round trip", secret: "", digest: emptyDigest, want: true},
		{name: "empty digest", secret: "correct horse", digest: "", want: false},
		{name: "no separator", secret: "correct horse", digest: "deadbeef", want: false},
		{name: "three components", secret: "correct horse", digest: "aa:bb:cc", want: false},
		{name: "empty salt", secret: "correct horse", digest: ":" + strings.Split(digest, ":")[1], want: false},
		{name: "empty hash", secret: "correct horse", digest: strings.Split(digest, ":")[0] + ":", want: false},
		{name: "non-hex salt", secret: "correct horse", digest: "zz:" + strings.Split(digest, ":")[1], want: false},
		{name: "non-hex hash", secret: "correct horse", digest: strings.Split(digest, ":")[0] + ":xyz", want: false},
		{name: "truncated hash", secret: "correct horse", digest: digest[:len(digest)-2], want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, h.Verify(tt.secret, tt.digest))
			})
		})
	}
}

func TestPackageLevelHelpers(t *testing.T) {
	digest, err := Hash("s3cret")
	require.NoError(t, err)
	assert.True(t, Verify("s3cret", digest))
	assert.False(t, Verify("S3cret", digest))
}
