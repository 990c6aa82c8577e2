package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRootCommand 测试子命令注册
func TestRootCommand(t *testing.T) {
	root := GetRootCmd()
	assert.Equal(t, "shipchange", root.Use)

	for _, name := range []string{"server", "migrate", "retention"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestServerCommandFlags(t *testing.T) {
	assert.NotNil(t, serverCmd.Flags().Lookup("host"))
	assert.NotNil(t, serverCmd.Flags().Lookup("port"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}
