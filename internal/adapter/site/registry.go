package site

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/config"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

// PracticeFactory constructs and logs in a practice client for one site.
type PracticeFactory func(ctx context.Context, cred config.Credential) (domain.SiteClient, error)

// ContestFactory constructs and logs in a contest client bound to contestID.
type ContestFactory func(ctx context.Context, cred config.Credential, contestID string) (domain.SiteClient, error)

// Registry holds the loaded bot accounts and per-site client constructors.
// Client construction performs the login; credential failures propagate so
// the pool supervisor can log and continue with the remaining accounts.
type Registry struct {
	normalAccounts  map[string][]config.Credential
	contestAccounts map[string][]config.Credential

	practice map[string]PracticeFactory
	contest  map[string]ContestFactory
}

// NewRegistry builds a registry from the parsed accounts table.
func NewRegistry(accounts config.Accounts) *Registry {
	return &Registry{
		normalAccounts:  accounts.NormalBySite(),
		contestAccounts: accounts.ContestByOJName(),
		practice:        map[string]PracticeFactory{},
		contest:         map[string]ContestFactory{},
	}
}

// RegisterPractice installs the constructor for a practice site.
func (r *Registry) RegisterPractice(site string, f PracticeFactory) { r.practice[site] = f }

// RegisterContest installs the constructor for a contest-capable site.
func (r *Registry) RegisterContest(site string, f ContestFactory) { r.contest[site] = f }

// Supports reports whether ojName has at least one loaded account.
func (r *Registry) Supports(ojName string) bool {
	if _, ok := r.normalAccounts[ojName]; ok {
		return true
	}
	_, ok := r.contestAccounts[ojName]
	return ok
}

// Accounts returns the credentials registered for ojName. Contest-scoped
// accounts take precedence, matching the original account tables.
func (r *Registry) Accounts(ojName string) []config.Credential {
	if creds, ok := r.contestAccounts[ojName]; ok {
		return creds
	}
	return r.normalAccounts[ojName]
}

// NewClient dispatches on the oj name: clone names ("<site>_ct_<id>") build
// contest clients, anything else a practice client.
func (r *Registry) NewClient(ctx context.Context, ojName string, cred config.Credential) (domain.SiteClient, error) {
	if siteName, contestID, ok := domain.ParseCloneName(ojName); ok {
		f, found := r.contest[siteName]
		if !found {
			return nil, fmt.Errorf("op=site.NewClient: contest site %q is not supported: %w", siteName, domain.ErrInternal)
		}
		return f(ctx, cred, contestID)
	}
	f, found := r.practice[ojName]
	if !found {
		return nil, fmt.Errorf("op=site.NewClient: site %q is not supported: %w", ojName, domain.ErrInternal)
	}
	return f(ctx, cred)
}
