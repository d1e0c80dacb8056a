package utils_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-token-custodian/internal/utils"
)

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, utils.SplitList(" a, b ,,c "))
	require.Equal(t, []string{"offline_access", "Mail.Send"}, utils.SplitList("offline_access Mail.Send"))
	require.Empty(t, utils.SplitList(""))
}

func TestEnvKey(t *testing.T) {
	require.Equal(t, "KROGER", utils.EnvKey("kroger"))
	require.Equal(t, "MY_PROVIDER_2", utils.EnvKey("my-provider.2"))
}
