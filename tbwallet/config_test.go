package main

import (
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/iotaledger/iota.go/consts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/topocare/iota-pay-on-production/lib/config"
	"github.com/topocare/iota-pay-on-production/wallet"
)

func readExampleConfig(t *testing.T) {
	data, err := os.ReadFile("tbwallet.yml.example")
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(path.Join(dir, CONFIG_FILE), data, 0644))
	t.Setenv(config.DataDirEnv, dir)

	Config = ConfigStructYAML{}
	_, siteDataDir, ok := config.ReadYAML(CONFIG_FILE, nil, &Config)
	require.True(t, ok)
	require.Equal(t, dir, siteDataDir)
}

func TestExampleConfig(t *testing.T) {
	readExampleConfig(t)

	params, layout, err := walletParams()
	require.NoError(t, err)
	assert.Equal(t, consts.SecurityLevelMedium, params.Security)
	assert.EqualValues(t, 1000000, params.UnitSize)
	assert.Equal(t, 5, params.LowerBorder)
	assert.Equal(t, 20, params.UpperBorder)
	assert.Equal(t, 5*time.Minute, params.PromoteOrReattachAfter)
	assert.Equal(t, 24*time.Hour, params.MaxConfirmWait)
	assert.Equal(t, 20*time.Second, params.MaintenanceInterval)
	assert.True(t, layout.Scan)
	assert.EqualValues(t, 10, layout.SearchFirst)
	assert.EqualValues(t, 2000, layout.SearchLast)
	assert.EqualValues(t, 9, layout.ReceivingLast)
	assert.Empty(t, layout.PaymentAddress)

	clientParams, err := iotaClientParams(nil)
	require.NoError(t, err)
	assert.Len(t, clientParams.Nodes, 2)
	assert.Equal(t, 20, clientParams.MaxCallsPerSec)
}

func TestShortTagsPadded(t *testing.T) {
	readExampleConfig(t)
	require.Less(t, len(Config.Wallet.TxTag), 27)
	params, _, err := walletParams()
	require.NoError(t, err)
	assert.Len(t, params.Tag, 27)
	assert.True(t, strings.HasPrefix(string(params.Tag), Config.Wallet.TxTag))

	Config.IOTA.TxTagPromote = "PROMOTE"
	clientParams, err := iotaClientParams(nil)
	require.NoError(t, err)
	assert.EqualValues(t, "PROMOTE99999999999999999999", clientParams.PromoteTag)

	Config.IOTA.TxTagPromote = strings.Repeat("A", 28)
	_, err = iotaClientParams(nil)
	require.Error(t, err)
}

func TestWalletParamsDefaults(t *testing.T) {
	readExampleConfig(t)
	Config.Wallet = walletYAML{
		Seed:                 strings.Repeat("A", 81),
		ProductionUnitSize:   10,
		ReceivingAddressLast: 4,
		InitialKeyIndex:      100,
	}
	params, layout, err := walletParams()
	require.NoError(t, err)
	assert.EqualValues(t, wallet.DefaultDepth, params.Depth)
	assert.Equal(t, wallet.DefaultMaxPromoteRounds, params.MaxPromoteRounds)
	assert.Equal(t, wallet.DefaultMaxConfirmWait, params.MaxConfirmWait)
	assert.False(t, layout.Scan)
	assert.EqualValues(t, 100, layout.InitialKeyIndex)
}

func TestWalletParamsWrong(t *testing.T) {
	readExampleConfig(t)
	Config.Wallet.OutputAddress = "NOT9AN9ADDRESS"
	_, _, err := walletParams()
	require.Error(t, err)

	readExampleConfig(t)
	Config.Wallet.Seed = "lowercase"
	_, _, err = walletParams()
	require.Error(t, err)

	readExampleConfig(t)
	Config.IOTA.Nodes = nil
	_, err = iotaClientParams(nil)
	require.Error(t, err)
}
