package process

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerExecRunsProcess(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	result, err := m.Exec(context.Background(), Spec{
		Label:   "echo",
		Program: "echo",
		Args:    []string{"hi"},
		Stdout:  &bytes.Buffer{},
		Stderr:  &bytes.Buffer{},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
}

func TestManagerExecAfterCloseFails(t *testing.T) {
	m := NewManager(nil)
	m.Close()

	_, err := m.Exec(context.Background(), Spec{
		Label:   "echo",
		Program: "echo",
		Stdout:  &bytes.Buffer{},
		Stderr:  &bytes.Buffer{},
	})

	assert.ErrorIs(t, err, ErrClosing)
}

func TestManagerCloseCancelsInFlight(t *testing.T) {
	m := NewManager(nil)

	done := make(chan Result, 1)
	go func() {
		result, _ := m.Exec(context.Background(), Spec{
			Label:     "sleep",
			Program:   "sleep",
			Args:      []string{"5"},
			KillGrace: 50 * time.Millisecond,
			Stdout:    &bytes.Buffer{},
			Stderr:    &bytes.Buffer{},
		})
		done <- result
	}()

	time.Sleep(20 * time.Millisecond)
	m.Close()

	select {
	case result := <-done:
		assert.Error(t, result.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected in-flight process to be canceled")
	}
}
