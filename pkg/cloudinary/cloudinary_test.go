package cloudinary

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublicID(t *testing.T) {
	require.Equal(t, "3f2a-rubric.json", PublicID("3f2a-rubric.json"))
	require.Equal(t, "eval-1-complexity.json", PublicID("../tmp/eval 1-complexity.json"))
	require.Equal(t, "report.json", PublicID("///"))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
}
