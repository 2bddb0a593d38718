package mi

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRunningStateErrorPhrases(t *testing.T) {
	truthy := []string{
		"Selected thread is running.",
		"THREAD IS RUNNING",
		"Running thread is required for this command",
		"Cannot execute this command while the selected thread is running.",
	}
	for _, msg := range truthy {
		assert.True(t, IsRunningStateError(msg), msg)
	}

	falsy := []string{"No symbol table is loaded.", "No registers.", "", "null"}
	for _, msg := range falsy {
		assert.False(t, IsRunningStateError(msg), msg)
	}
}

func TestPipelineSendResolvesOnMatchingToken(t *testing.T) {
	var out bytes.Buffer
	p := NewPipeline(&out, nil)

	done := make(chan struct{})
	var results map[string]interface{}
	var sendErr error
	go func() {
		results, sendErr = p.Send(context.Background(), "-thread-info", time.Second)
		close(done)
	}()

	// Wait until the command has actually been written, then reply.
	require.Eventually(t, func() bool { return out.Len() > 0 }, time.Second, time.Millisecond)
	written := out.String()
	require.True(t, strings.HasPrefix(written, "1-thread-info\n"))

	p.Feed(`1^done,threads=[]`)
	<-done

	require.NoError(t, sendErr)
	assert.NotNil(t, results["threads"])
}

func TestPipelineSendDeadlineAbandonsSlot(t *testing.T) {
	var out bytes.Buffer
	p := NewPipeline(&out, nil)

	_, err := p.Send(context.Background(), "-exec-continue", 10*time.Millisecond)
	require.Error(t, err)
	var deadlineErr *DeadlineError
	require.ErrorAs(t, err, &deadlineErr)
	assert.Equal(t, 0, p.PendingCount())

	// A late reply for the abandoned token must be silently dropped, not panic.
	p.Feed(`1^done`)
}

func TestPipelineErrorClassifiesRunningState(t *testing.T) {
	var out bytes.Buffer
	p := NewPipeline(&out, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Send(context.Background(), "-data-evaluate-expression x", time.Second)
		done <- err
	}()
	require.Eventually(t, func() bool { return out.Len() > 0 }, time.Second, time.Millisecond)
	p.Feed(`1^error,msg="Selected thread is running."`)

	err := <-done
	require.Error(t, err)
	var rse *RunningStateError
	require.ErrorAs(t, err, &rse)
}

func TestPipelineAsyncRoutedToHandler(t *testing.T) {
	var out bytes.Buffer
	var got *Record
	done := make(chan struct{})
	p := NewPipeline(&out, func(rec *Record) {
		got = rec
		close(done)
	})

	p.Feed(`*stopped,reason="breakpoint-hit",bkptno="1"`)
	<-done
	require.NotNil(t, got)
	assert.True(t, got.IsStopped())
}

func TestPipelineCloseRejectsPending(t *testing.T) {
	var out bytes.Buffer
	p := NewPipeline(&out, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Send(context.Background(), "-exec-continue", time.Second)
		done <- err
	}()
	require.Eventually(t, func() bool { return out.Len() > 0 }, time.Second, time.Millisecond)

	p.Close()
	err := <-done
	assert.ErrorIs(t, err, ExitedError)
}
