package scu

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

const volumeIndex = `<html><body>
<table>
<tr><td>Problem Set</td></tr>
<tr><td><a href="problems.action?volume=1">[1]</a> <a href="problems.action?volume=2">[2]</a></td></tr>
</table>
</body></html>`

func TestParseVolumes(t *testing.T) {
	assert.Equal(t, []string{"1", "2"}, parseVolumes(volumeIndex))
	assert.Nil(t, parseVolumes("<html><body>no tables</body></html>"))
}

const volumePage = `<html><body>
<table>
<tr><td>nav</td></tr>
<tr><td>pager</td></tr>
<tr><td>ID</td><td>Problem</td></tr>
<tr><td>x</td><td>1000</td><td>A+B</td></tr>
<tr><td>x</td><td>1001</td><td>Sum</td></tr>
<tr><td>x</td><td>not-a-number</td><td>skip</td></tr>
</table>
</body></html>`

func TestParseProblemIDs(t *testing.T) {
	assert.Equal(t, []string{"1000", "1001"}, parseProblemIDs(volumePage))
}

const solutionsPage = `<html><body>
<table><tr><td>nav</td></tr></table>
<table>
<tr><td>Run ID</td><td>User</td><td>Problem</td><td>Submit Time</td><td>Language</td><td>Status</td><td>Time</td><td>Memory</td></tr>
<tr><td>555</td><td>bot3</td><td>1000</td><td>2024-03-01</td><td>g++</td><td>Accepted</td><td>15</td><td>1024</td></tr>
</table>
</body></html>`

func TestFirstStatusRow(t *testing.T) {
	cells := firstStatusRow(solutionsPage)
	require.Len(t, cells, 8)
	assert.Equal(t, "555", cells[0])
	assert.Equal(t, "Accepted", cells[5])
}

func TestFirstStatusRowMissingTable(t *testing.T) {
	assert.Nil(t, firstStatusRow("<html><body><table></table></body></html>"))
}

func TestHashSolver(t *testing.T) {
	// md5("x") = 9dd4e461268c8034f5c8564e155c67a6
	solver := HashSolver{"9dd4e461268c8034f5c8564e155c67a6": "1234"}

	code, err := solver.Solve(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "1234", code)

	_, err = solver.Solve(context.Background(), []byte("unknown image"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSubmit))
}
