package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

func TestParseCloneName(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		site      string
		contestID string
		ok        bool
	}{
		{"hdu contest", "hdu_ct_7", "hdu", "7", true},
		{"multi digit", "hdu_ct_1024", "hdu", "1024", true},
		{"site with underscore", "my_site_ct_3", "my_site", "3", true},
		{"practice site", "hdu", "", "", false},
		{"missing id", "hdu_ct_", "", "", false},
		{"non numeric id", "hdu_ct_abc", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site, cid, ok := domain.ParseCloneName(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.site, site)
			assert.Equal(t, tt.contestID, cid)
		})
	}
}

func TestCloneNameRoundTrip(t *testing.T) {
	name := domain.CloneName("hdu", "42")
	assert.Equal(t, "hdu_ct_42", name)
	site, cid, ok := domain.ParseCloneName(name)
	assert.True(t, ok)
	assert.Equal(t, "hdu", site)
	assert.Equal(t, "42", cid)
}

func TestIsNonTerminalVerdict(t *testing.T) {
	assert.True(t, domain.IsNonTerminalVerdict(domain.VerdictQueuing))
	assert.True(t, domain.IsNonTerminalVerdict(domain.VerdictBeingJudged))
	assert.True(t, domain.IsNonTerminalVerdict(domain.VerdictCompiling))
	assert.True(t, domain.IsNonTerminalVerdict(domain.VerdictRunning))
	assert.True(t, domain.IsNonTerminalVerdict(""))

	assert.False(t, domain.IsNonTerminalVerdict("Accepted"))
	assert.False(t, domain.IsNonTerminalVerdict("Wrong Answer"))
	assert.False(t, domain.IsNonTerminalVerdict(domain.VerdictSubmitFail))
	assert.False(t, domain.IsNonTerminalVerdict(domain.VerdictJudgeFail))
}
