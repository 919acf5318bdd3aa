package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableConflict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pq.Error{Code: codeSerializationFailure}, true},
		{"deadlock", &pq.Error{Code: codeDeadlockDetected}, true},
		{"wrapped", fmt.Errorf("commit update: %w", &pq.Error{Code: codeSerializationFailure}), true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isRetryableConflict(tt.err))
		})
	}
}

func TestDiscriminatorOf(t *testing.T) {
	assert.Equal(t, []byte{}, discriminatorOf([]byte{1, 2}))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, discriminatorOf([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}))
}
