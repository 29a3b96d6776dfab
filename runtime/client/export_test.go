package client

import (
	"context"
	"testing"
)

// SetBeforeUpsertCreate installs f between the lookup and the insert of a multi-statement
// upsert until the test ends.
func SetBeforeUpsertCreate(t testing.TB, f func(ctx context.Context, tx *Client)) {
	beforeUpsertCreate = f
	t.Cleanup(func() { beforeUpsertCreate = nil })
}
