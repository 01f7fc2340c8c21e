package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/segregate/internal/policy"
)

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	want := Identity{UserID: 42, Email: "a@x.com", Role: policy.RoleVolunteer}
	got, ok := FromContext(NewContext(context.Background(), want))
	assert.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, "42", got.IDString())
}

func TestForeignValueIsIgnored(t *testing.T) {
	type otherKey struct{}
	ctx := context.WithValue(context.Background(), otherKey{}, Identity{UserID: 1})
	_, ok := FromContext(ctx)
	assert.False(t, ok)
}
