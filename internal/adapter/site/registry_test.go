package site_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/site"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/config"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

func testAccounts() config.Accounts {
	return config.Accounts{
		Normal: []config.Account{
			{Site: "hdu", Username: "bot1", Password: "pw1"},
			{Site: "hdu", Username: "bot2", Password: "pw2"},
		},
		Contest: []config.ContestAccount{
			{Account: config.Account{Site: "hdu", Username: "cbot", Password: "cpw"}, Contests: []int64{7}},
		},
	}
}

func TestRegistrySupports(t *testing.T) {
	r := site.NewRegistry(testAccounts())
	assert.True(t, r.Supports("hdu"))
	assert.True(t, r.Supports("hdu_ct_7"))
	assert.False(t, r.Supports("scu"))
	assert.False(t, r.Supports("hdu_ct_8"))
}

func TestRegistryAccountsContestPrecedence(t *testing.T) {
	r := site.NewRegistry(testAccounts())

	creds := r.Accounts("hdu")
	require.Len(t, creds, 2)

	creds = r.Accounts("hdu_ct_7")
	require.Len(t, creds, 1)
	assert.Equal(t, "cbot", creds[0].Username)
}

func TestRegistryNewClientDispatch(t *testing.T) {
	r := site.NewRegistry(testAccounts())
	r.RegisterPractice("hdu", func(_ context.Context, cred config.Credential) (domain.SiteClient, error) {
		return nil, errors.New("practice:" + cred.Username)
	})
	r.RegisterContest("hdu", func(_ context.Context, cred config.Credential, contestID string) (domain.SiteClient, error) {
		return nil, errors.New("contest:" + cred.Username + ":" + contestID)
	})

	_, err := r.NewClient(context.Background(), "hdu", config.Credential{Username: "bot1"})
	require.EqualError(t, err, "practice:bot1")

	_, err = r.NewClient(context.Background(), "hdu_ct_7", config.Credential{Username: "cbot"})
	require.EqualError(t, err, "contest:cbot:7")

	_, err = r.NewClient(context.Background(), "poj", config.Credential{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInternal))
}
