package stripe

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/angelmondragon/credits-backend/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84/webhook"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, config.StripeConfig{Env: "test"}, nil)
	require.ErrorIs(t, err, errSecretRequired)

	_, err = NewClient(ctx, config.StripeConfig{Secret: "whsec_x", Env: "staging"}, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(ctx, config.StripeConfig{Secret: " whsec_x ", Env: "LIVE"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "live", client.Environment())
	assert.Equal(t, "whsec_x", client.SigningSecret())
}

func TestConstructEventVerifiesSignature(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{Secret: "whsec_test"}, nil)
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"type":        "customer.subscription.deleted",
		"api_version": "2020-08-27",
		"data":        map[string]any{"object": map[string]any{"id": "sub_1"}},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_test"})
	event, err := client.ConstructEvent(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)

	_, err = client.ConstructEvent(payload, "t=1,v1=bad")
	assert.Error(t, err)

	var nilClient *Client
	_, err = nilClient.ConstructEvent(payload, signed.Header)
	assert.ErrorIs(t, err, errSecretRequired)
}
