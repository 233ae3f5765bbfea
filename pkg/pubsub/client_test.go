package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestClientOptionsPrecedence(t *testing.T) {
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/key.json"}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/key.json"}), 1)
	assert.Empty(t, clientOptions(config.GCPConfig{ProjectID: "p"}))
}

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "shop-prod"}
	assert.Equal(t, "projects/shop-prod/topics/domain", c.resourceName(kindTopic, "domain"))
	assert.Equal(t, "projects/other/topics/x", c.resourceName(kindTopic, "projects/other/topics/x"))
	assert.Equal(t, "projects/shop-prod/subscriptions/emails", c.resourceName(kindSubscription, "emails"))
	assert.Empty(t, c.resourceName(kindSubscription, "  "))
}

func TestLookupErrorDistinguishesMissingResources(t *testing.T) {
	missing := lookupError(kindTopic, "projects/p/topics/domain", status.Error(codes.NotFound, "gone"))
	assert.EqualError(t, missing, `topic "projects/p/topics/domain" does not exist`)

	denied := status.Error(codes.PermissionDenied, "nope")
	wrapped := lookupError(kindSubscription, "projects/p/subscriptions/emails", denied)
	assert.ErrorIs(t, wrapped, denied)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("domain"))
	assert.Nil(t, c.Subscription("emails"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}
