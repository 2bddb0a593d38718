package mi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResultRecord(t *testing.T) {
	rec, ok := Parse(`42^done,threads=[{id="1",state="stopped"}]`)
	require.True(t, ok)
	assert.Equal(t, 42, rec.Token)
	assert.True(t, rec.HasToken)
	assert.Equal(t, Result, rec.Type)
	assert.Equal(t, "done", rec.Class)

	threads, ok := rec.Results["threads"].([]interface{})
	require.True(t, ok)
	require.Len(t, threads, 1)
	thread, ok := threads[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1", thread["id"])
	assert.Equal(t, "stopped", thread["state"])
}

func TestParseStreamRecord(t *testing.T) {
	rec, ok := Parse(`~"text\n"`)
	require.True(t, ok)
	assert.Equal(t, Console, rec.Type)
	assert.Equal(t, "text\n", rec.Output)
}

func TestParseEscapes(t *testing.T) {
	rec, ok := Parse(`^done,msg="a\nb\tc\"d\\e"`)
	require.True(t, ok)
	assert.Equal(t, "a\nb\tc\"d\\e", rec.Results["msg"])
}

func TestParseNoToken(t *testing.T) {
	rec, ok := Parse(`^done`)
	require.True(t, ok)
	assert.False(t, rec.HasToken)
	assert.Equal(t, "done", rec.Class)
}

func TestParseMalformedLinesDiscarded(t *testing.T) {
	for _, line := range []string{"", "(gdb)", "garbage text", "^done,broken=[", "^done,k="} {
		_, ok := Parse(line)
		assert.False(t, ok, "expected %q to be discarded", line)
	}
}

func TestIsStoppedBothFormsCount(t *testing.T) {
	starAsync, ok := Parse(`*stopped,reason="breakpoint-hit",bkptno="1"`)
	require.True(t, ok)
	assert.True(t, starAsync.IsStopped())

	notifyAsync, ok := Parse(`=stopped,reason="breakpoint-hit",bkptno="1"`)
	require.True(t, ok)
	assert.True(t, notifyAsync.IsStopped())

	notRunning, ok := Parse(`*running,thread-id="all"`)
	require.True(t, ok)
	assert.False(t, notRunning.IsStopped())
}

func TestStopReasonMapping(t *testing.T) {
	cases := map[string]string{
		"breakpoint-hit":      "breakpoint",
		"end-stepping-range":  "step",
		"signal-received":     "signal",
		"exited-normally":     "exited",
		"something-else-odd":  "pause",
	}
	for raw, want := range cases {
		assert.Equal(t, want, StopReason(raw), raw)
	}
}

func TestParseNestedTuplesAndLists(t *testing.T) {
	rec, ok := Parse(`^done,bkpt={number="1",addr="0x1000",locations=[{pc="0x1000"},{pc="0x1010"}]}`)
	require.True(t, ok)
	bkpt, ok := rec.Results["bkpt"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1", bkpt["number"])

	locs, ok := bkpt["locations"].([]interface{})
	require.True(t, ok)
	require.Len(t, locs, 2)
	first, ok := locs[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0x1000", first["pc"])
}

func TestParseListOfBareKeyValuePairsBecomesSingletonTuples(t *testing.T) {
	rec, ok := Parse(`^done,register-names=[name="r0",name="r1"]`)
	require.True(t, ok)
	names, ok := rec.Results["register-names"].([]interface{})
	require.True(t, ok)
	require.Len(t, names, 2)
	first, ok := names[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "r0", first["name"])
}
