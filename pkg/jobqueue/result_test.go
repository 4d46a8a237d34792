package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResult_Variants(t *testing.T) {
	ok := Ok()
	assert.True(t, ok.IsOk())

	e := Err(assertErr)
	_, isErr := e.IsErr()
	assert.True(t, isErr)
	errVal, _ := e.IsErr()
	assert.Equal(t, assertErr, errVal)

	c := Cancel("no longer needed")
	reason, isCancel := c.IsCancel()
	assert.True(t, isCancel)
	assert.Equal(t, "no longer needed", reason)

	s := Snooze(5 * time.Minute)
	after, isSnooze := s.IsSnooze()
	assert.True(t, isSnooze)
	assert.Equal(t, 5*time.Minute, after)
}

func TestNormalize_NilResultAndErrIsOk(t *testing.T) {
	r := Normalize(Result{}, nil)
	assert.True(t, r.IsOk())
}

func TestNormalize_RaisedErrorOverridesResult(t *testing.T) {
	r := Normalize(Cancel("ignored"), assertErr)
	errVal, isErr := r.IsErr()
	assert.True(t, isErr)
	assert.Equal(t, assertErr, errVal)
}

func TestNormalize_PassesThroughNonOkResult(t *testing.T) {
	r := Normalize(Snooze(time.Second), nil)
	after, isSnooze := r.IsSnooze()
	assert.True(t, isSnooze)
	assert.Equal(t, time.Second, after)
}
