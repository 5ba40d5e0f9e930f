package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"app", false},
		{"_internal", false},
		{"app.web-v2", false},
		{"", true},
		{"1app", true},
		{"app/web", true},
		{"app web", true},
	}

	for _, tc := range cases {
		got, err := New(tc.in)
		if tc.wantErr {
			assert.Error(t, err)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tc.in, got.String())
	}
}

func TestMustNewPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustNew("")
	})
}
