package hdu

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const problemPage = `<html><body>
<h1 style='color:#1A5CC8'>A + B Problem</h1>
<span>Time Limit: 2000/1000 MS (Java/Others)&nbsp;&nbsp;&nbsp;&nbsp;Memory Limit: 65536/32768 K (Java/Others)</span>
<div class="panel_title" align="left">Problem Description</div>
<div class="panel_content">Calculate a + b.</div>
<div class="panel_title" align="left">Input</div>
<div class="panel_content">Two integers a and b.</div>
<div class="panel_title" align="left">Output</div>
<div class="panel_content">Output a + b.</div>
<div class="panel_title" align="left">Sample Input</div>
<div class="panel_content"><pre>1 2</pre></div>
<div class="panel_title" align="left">Sample Output</div>
<div class="panel_content"><pre>3</pre></div>
</body></html>`

func TestParseProblem(t *testing.T) {
	rec := parseProblem(problemPage)
	require.NotNil(t, rec)
	assert.Equal(t, "A + B Problem", rec.Title)
	assert.Equal(t, 1000, rec.TimeLimitMS)
	assert.Equal(t, 32768, rec.MemLimitKB)
	assert.Equal(t, "Calculate a + b.", rec.Description)
	assert.Equal(t, "Two integers a and b.", rec.Input)
	assert.Equal(t, "Output a + b.", rec.Output)
	assert.Equal(t, "<pre>1 2</pre>", rec.SampleInput)
	assert.Equal(t, "<pre>3</pre>", rec.SampleOutput)
}

func TestParseProblemSystemMessage(t *testing.T) {
	page := `<html><body><h1>System Message</h1><div>No such problem</div></body></html>`
	assert.Nil(t, parseProblem(page))
}

const statusPage = `<html><body>
<table><tr><td>nav</td></tr></table>
<table>
<tr><td>Run ID</td><td>Submit Time</td><td>Judge Status</td><td>Pro.ID</td><td>Exe.Time</td><td>Exe.Memory</td><td>Code Len.</td><td>Language</td><td>Author</td></tr>
<tr align="center"><td>10001</td><td>2024-03-01 12:00:01</td><td>Accepted</td><td>1000</td><td>15MS</td><td>1024K</td><td>80 B</td><td>C++</td><td>bot1</td></tr>
<tr align="center"><td>9999</td><td>2024-03-01 11:59:00</td><td>Runtime Error<br>(ACCESS_VIOLATION)</td><td>1001</td><td>0MS</td><td>0K</td><td>90 B</td><td>C++</td><td>bot1</td></tr>
</table>
</body></html>`

func TestFindVerdict(t *testing.T) {
	st := findVerdict(statusPage, "10001")
	require.NotNil(t, st)
	assert.Equal(t, "Accepted", st.Verdict)
	assert.Equal(t, 15, st.ExeTime)
	assert.Equal(t, 1024, st.ExeMem)
}

func TestFindVerdictCollapsesRuntimeError(t *testing.T) {
	st := findVerdict(statusPage, "9999")
	require.NotNil(t, st)
	assert.Equal(t, "Runtime Error", st.Verdict)
}

func TestFindVerdictNotVisible(t *testing.T) {
	assert.Nil(t, findVerdict(statusPage, "12345"))
}

func TestParseFreshRunID(t *testing.T) {
	assert.Equal(t, "10001", parseFreshRunID(statusPage))
	assert.Equal(t, "", parseFreshRunID("<html><body>empty</body></html>"))
}

func TestEncodeSource(t *testing.T) {
	// Mirrors the upstream form encoding: base64 over a percent-quoted body
	// with '/' left unescaped.
	assert.Equal(t, "aW50JTIwbWFpbiUyOCUyOSU3QiU3RA==", encodeSource("int main(){}"))
	assert.Equal(t, "YSUyMC8lMjBi", encodeSource("a / b"))
}

func TestPyQuote(t *testing.T) {
	assert.Equal(t, "abc_0-9.~/", pyQuote("abc_0-9.~/"))
	assert.Equal(t, "a%20b%0Ac", pyQuote("a b\nc"))
	assert.Equal(t, "%E4%B8%AD", pyQuote("中"))
}

const contestPage = `<html><body>
<h1>Test Round 7</h1>
<div>Start Time : 2024-03-01 12:00:00    End Time : 2024-03-01 17:00:00
Contest Type : Public    Contest Status : Running
Current Server Time : 2024-03-01 13:00:00</div>
<table>
<tr><td>Solved</td><td>Title</td><td>Ratio</td></tr>
<tr align="center"><td>12</td><td>1001</td><td>50%</td></tr>
<tr align="center"><td>3</td><td>1002</td><td>10%</td></tr>
</table>
</body></html>`

func TestParseContestProblemIDs(t *testing.T) {
	assert.Equal(t, []string{"1001", "1002"}, parseContestProblemIDs(contestPage))
}

func TestContestMetaRegex(t *testing.T) {
	doc := parseHTML(contestPage)
	divs := findAll(doc, isTag("div"))
	require.NotEmpty(t, divs)
	text := nodeText(divs[len(divs)-1])
	require.True(t, contestInfoRe.MatchString(text))

	m := contestMetaRe.FindStringSubmatch(text)
	require.NotNil(t, m)
	assert.Equal(t, "2024", m[1])
	assert.Equal(t, "Public", strings.TrimSpace(m[13]))
	assert.Equal(t, "Running", strings.TrimSpace(m[14]))
}

func TestToUnix(t *testing.T) {
	// 2024-03-01 12:00:00 UTC+8 == 04:00:00 UTC.
	got := toUnix([]string{"2024", "03", "01", "12", "00", "00"})
	assert.Equal(t, int64(1709265600), got)
}

func TestProblemListRegexes(t *testing.T) {
	index := `<a href="listproblem.php?vol=1">1</a> <a href="listproblem.php?vol=2">2</a>`
	vols := problemVolRe.FindAllStringSubmatch(index, -1)
	require.Len(t, vols, 2)
	assert.Equal(t, "1", vols[0][1])

	page := `p(10,1000,0,"A+B",45000,22000);p(10,1001,1,"Sum",30000,11000);`
	rows := problemRowRe.FindAllStringSubmatch(page, -1)
	require.Len(t, rows, 2)
	assert.Equal(t, "1000", rows[0][1])
	assert.Equal(t, "1001", rows[1][1])
}
