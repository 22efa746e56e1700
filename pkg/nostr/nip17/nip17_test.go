package nip17_test

import (
	"testing"

	"github.com/nircnet/nirc/pkg/nostr/event"
	"github.com/nircnet/nirc/pkg/nostr/keys"
	"github.com/nircnet/nirc/pkg/nostr/kind"
	"github.com/nircnet/nirc/pkg/nostr/nip17"
	"github.com/nircnet/nirc/pkg/nostr/timestamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPair(t *testing.T) (senderSec, senderPub, recipientSec,
	recipientPub string) {

	senderSec = keys.GeneratePrivateKey()
	recipientSec = keys.GeneratePrivateKey()
	var err error
	senderPub, err = keys.GetPublicKey(senderSec)
	require.NoError(t, err)
	recipientPub, err = keys.GetPublicKey(recipientSec)
	require.NoError(t, err)
	return
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	senderSec, senderPub, recipientSec, recipientPub := testPair(t)

	gift, err := nip17.Wrap(senderSec, recipientPub, "hello")
	require.NoError(t, err)

	// the outer event must not leak the sender.
	assert.Equal(t, kind.GiftWrap, gift.Kind)
	assert.NotEqual(t, senderPub, gift.PubKey)
	assert.True(t, gift.Tags.ContainsAny("p", recipientPub))
	valid, err := gift.CheckSignature()
	require.NoError(t, err)
	assert.True(t, valid)

	dm := nip17.Unwrap(recipientSec, gift)
	require.NotNil(t, dm)
	assert.Equal(t, senderPub, dm.FromPubKey)
	assert.Equal(t, "hello", dm.Content)
	assert.InDelta(t, timestamp.Now().I64(), dm.CreatedAt.I64(), 5)
}

func TestWrapTimestampsBackdated(t *testing.T) {
	senderSec, _, _, recipientPub := testPair(t)
	gift, err := nip17.Wrap(senderSec, recipientPub, "m")
	require.NoError(t, err)
	assert.LessOrEqual(t, gift.CreatedAt.I64(), timestamp.Now().I64())
}

func TestUnwrapWrongRecipient(t *testing.T) {
	senderSec, _, _, recipientPub := testPair(t)
	gift, err := nip17.Wrap(senderSec, recipientPub, "not for you")
	require.NoError(t, err)

	eavesdropperSec := keys.GeneratePrivateKey()
	assert.Nil(t, nip17.Unwrap(eavesdropperSec, gift))
}

func TestUnwrapGarbage(t *testing.T) {
	_, _, recipientSec, _ := testPair(t)

	assert.Nil(t, nip17.Unwrap(recipientSec, nil))
	assert.Nil(t, nip17.Unwrap(recipientSec, &event.T{Kind: kind.TextNote}))
	assert.Nil(t, nip17.Unwrap(recipientSec, &event.T{
		Kind:    kind.GiftWrap,
		PubKey:  "zz not hex",
		Content: "junk",
	}))

	senderSec := keys.GeneratePrivateKey()
	recipientPub, err := keys.GetPublicKey(recipientSec)
	require.NoError(t, err)
	gift, err := nip17.Wrap(senderSec, recipientPub, "x")
	require.NoError(t, err)

	// tampered ciphertext must drop, not error.
	gift.Content = gift.Content[:len(gift.Content)-8] + "AAAAAAA="
	assert.Nil(t, nip17.Unwrap(recipientSec, gift))
}

func TestUnwrapBadSecret(t *testing.T) {
	senderSec, _, recipientSec, recipientPub := testPair(t)
	gift, err := nip17.Wrap(senderSec, recipientPub, "x")
	require.NoError(t, err)
	assert.Nil(t, nip17.Unwrap("feed", gift))
	require.NotNil(t, nip17.Unwrap(recipientSec, gift))
}
