package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/config"
)

const accountsYAML = `
normal:
  - site: hdu
    username: bot1
    password: pw1
  - site: hdu
    username: bot2
    password: pw2
  - site: scu
    username: bot3
    password: pw3
contest:
  - site: hdu
    username: cbot
    password: cpw
    contests: [7, 42]
`

func TestParseAccounts(t *testing.T) {
	a, err := config.ParseAccounts([]byte(accountsYAML))
	require.NoError(t, err)

	bySite := a.NormalBySite()
	require.Len(t, bySite["hdu"], 2)
	require.Len(t, bySite["scu"], 1)
	assert.Equal(t, "bot1", bySite["hdu"][0].Username)
	assert.Equal(t, "pw3", bySite["scu"][0].Password)

	byContest := a.ContestByOJName()
	require.Len(t, byContest, 2)
	require.Len(t, byContest["hdu_ct_7"], 1)
	assert.Equal(t, "cbot", byContest["hdu_ct_42"][0].Username)
}

func TestParseAccountsUnknownKeyFails(t *testing.T) {
	raw := []byte(`
normal:
  - site: hdu
    username: bot1
    passwort: oops
`)
	_, err := config.ParseAccounts(raw)
	require.Error(t, err)
}

func TestParseAccountsMissingFields(t *testing.T) {
	_, err := config.ParseAccounts([]byte("normal:\n  - site: hdu\n"))
	require.Error(t, err)

	_, err = config.ParseAccounts([]byte("contest:\n  - site: hdu\n    username: x\n    password: y\n"))
	require.Error(t, err)
}
