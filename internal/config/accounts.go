package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Account is one bot credential for a site.
type Account struct {
	Site     string `yaml:"site"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ContestAccount is a bot credential authorized for specific contests.
type ContestAccount struct {
	Account  `yaml:",inline"`
	Contests []int64 `yaml:"contests"`
}

// Accounts is the parsed bot-accounts table.
type Accounts struct {
	Normal  []Account        `yaml:"normal"`
	Contest []ContestAccount `yaml:"contest"`
}

// Credential is a (username, password) pair handed to client construction.
type Credential struct {
	Username string
	Password string
}

// LoadAccounts reads and strictly decodes the accounts YAML file. Unknown
// keys fail startup so that typos in credentials are caught early.
func LoadAccounts(path string) (Accounts, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Accounts{}, fmt.Errorf("op=config.LoadAccounts: %w", err)
	}
	return ParseAccounts(raw)
}

// ParseAccounts decodes the accounts table from YAML bytes.
func ParseAccounts(raw []byte) (Accounts, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var a Accounts
	if err := dec.Decode(&a); err != nil {
		return Accounts{}, fmt.Errorf("op=config.ParseAccounts: %w", err)
	}
	for i, acc := range a.Normal {
		if acc.Site == "" || acc.Username == "" {
			return Accounts{}, fmt.Errorf("op=config.ParseAccounts: normal[%d] missing site or username", i)
		}
	}
	for i, acc := range a.Contest {
		if acc.Site == "" || acc.Username == "" {
			return Accounts{}, fmt.Errorf("op=config.ParseAccounts: contest[%d] missing site or username", i)
		}
		if len(acc.Contests) == 0 {
			return Accounts{}, fmt.Errorf("op=config.ParseAccounts: contest[%d] has no authorized contests", i)
		}
	}
	return a, nil
}

// NormalBySite groups practice credentials by site name.
func (a Accounts) NormalBySite() map[string][]Credential {
	out := make(map[string][]Credential, len(a.Normal))
	for _, acc := range a.Normal {
		out[acc.Site] = append(out[acc.Site], Credential{acc.Username, acc.Password})
	}
	return out
}

// ContestByOJName groups contest credentials by clone name "<site>_ct_<id>".
func (a Accounts) ContestByOJName() map[string][]Credential {
	out := make(map[string][]Credential)
	for _, acc := range a.Contest {
		for _, cid := range acc.Contests {
			key := acc.Site + "_ct_" + strconv.FormatInt(cid, 10)
			out[key] = append(out[key], Credential{acc.Username, acc.Password})
		}
	}
	return out
}
