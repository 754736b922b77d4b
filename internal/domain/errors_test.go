package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchError_Wrapping(t *testing.T) {
	cause := errors.New("401 Unauthorized")
	err := fmt.Errorf("cycle: %w", NewFetchError(FetchUnauthorized, "kite.holdings", cause))

	assert.True(t, IsUnauthorized(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "fetch kite.holdings: unauthorized")

	var fe *FetchError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, FetchUnauthorized, fe.Kind)
}

func TestIsUnauthorized_OtherKinds(t *testing.T) {
	assert.False(t, IsUnauthorized(NewFetchError(FetchUnavailable, "op", nil)))
	assert.False(t, IsUnauthorized(errors.New("plain")))
	assert.False(t, IsUnauthorized(nil))
}

func TestIsThrottled(t *testing.T) {
	assert.True(t, IsThrottled(NewGenerationError(GenerationThrottled, "gate", nil)))
	assert.False(t, IsThrottled(NewGenerationError(GenerationMalformed, "gate", nil)))
}

func TestErrorKind(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"fetch", NewFetchError(FetchMalformed, "op", nil), "malformed"},
		{"generation", fmt.Errorf("wrap: %w", NewGenerationError(GenerationThrottled, "op", nil)), "throttled"},
		{"store", NewStoreError(StoreConflict, "op", nil), "conflict"},
		{"cancelled", fmt.Errorf("stage: %w", context.Canceled), "cancelled"},
		{"timeout", context.DeadlineExceeded, "timeout"},
		{"unknown", errors.New("boom"), "internal"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ErrorKind(tc.err))
		})
	}
}

func TestStoreError_Message(t *testing.T) {
	err := NewStoreError(StoreCorrupt, "snapshots.decode", errors.New("checksum mismatch"))
	assert.Equal(t, "store snapshots.decode: corrupt: checksum mismatch", err.Error())
	assert.Equal(t, "store snapshots.decode: corrupt", NewStoreError(StoreCorrupt, "snapshots.decode", nil).Error())
}
