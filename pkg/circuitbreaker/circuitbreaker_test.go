package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")
var errDeclined = errors.New("declined")

func TestExecute_TripsAfterConsecutiveFailures(t *testing.T) {
	b := New[string](Settings{Name: "test", ConsecutiveFailures: 2, OpenTimeout: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		_, err := b.Execute(func() (string, error) { return "", errBoom })
		require.ErrorIs(t, err, errBoom)
	}

	called := false
	_, err := b.Execute(func() (string, error) {
		called = true
		return "ok", nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.Equal(t, "open", b.State())
}

func TestExecute_PassesThroughSuccess(t *testing.T) {
	b := New[int](Settings{Name: "test"}, nil)
	v, err := b.Execute(func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, "closed", b.State())
}

func TestExecute_IgnoredErrorsDoNotTrip(t *testing.T) {
	b := New[int](Settings{
		Name:                "test",
		ConsecutiveFailures: 1,
		Ignore:              func(err error) bool { return errors.Is(err, errDeclined) },
	}, nil)

	for i := 0; i < 3; i++ {
		_, err := b.Execute(func() (int, error) { return 0, errDeclined })
		assert.ErrorIs(t, err, errDeclined)
	}
	assert.Equal(t, "closed", b.State())
}
