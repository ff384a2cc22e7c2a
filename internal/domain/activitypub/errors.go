package activitypub

import "errors"

var (
	// ErrMalformedSignatureHeader means the Signature header was missing,
	// unparseable, or lacked a required field. Verification fails closed.
	ErrMalformedSignatureHeader = errors.New("malformed signature header")

	// ErrActorUnreachable means the signer's key document could not be
	// fetched from the remote server.
	ErrActorUnreachable = errors.New("remote actor unreachable")

	// ErrNoPublicKey means the remote actor document carried no usable
	// publicKeyPem.
	ErrNoPublicKey = errors.New("remote actor has no public key")

	// ErrSignatureInvalid means the reconstructed signing string did not
	// verify against the declared signature.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrUnknownLocalActor means an activity targeted an actor this server
	// does not host.
	ErrUnknownLocalActor = errors.New("unknown local actor")

	// ErrDeliveryFailed records a single destination failing during
	// broadcast. It never aborts the batch.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrDuplicateMessageID means an append to the message log collided
	// with an existing id. The log is append-only; collisions are errors,
	// never overwrites.
	ErrDuplicateMessageID = errors.New("duplicate message id")

	// ErrFederationDisabled is returned by entry points when the
	// deployment runs with federation turned off.
	ErrFederationDisabled = errors.New("federation disabled")
)
