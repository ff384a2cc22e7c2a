package activitypub

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// signatureParams is a parsed draft-cavage Signature header.
type signatureParams struct {
	keyID     string
	algorithm string
	headers   []string
	signature []byte
}

// Verification identifies the remote actor whose signature checked out.
type Verification struct {
	KeyID    string
	ActorURL string
}

// Verifier checks inbound HTTP signatures against keys fetched from the
// signing server. Any failure along the way rejects the request; an
// unverifiable activity is never processed.
type Verifier struct {
	remote *RemoteClient
}

func NewVerifier(remote *RemoteClient) *Verifier {
	return &Verifier{remote: remote}
}

// Verify reconstructs the signing string from the declared header list and
// checks it against the key named by keyId. method and path describe the
// request being verified; the path must match what the sender signed under
// (request-target).
func (v *Verifier) Verify(ctx context.Context, hdr http.Header, method, path string) (Verification, error) {
	params, err := parseSignatureHeader(hdr.Get("Signature"))
	if err != nil {
		return Verification{}, err
	}

	signingString, err := buildSigningString(params.headers, hdr, method, path)
	if err != nil {
		return Verification{}, err
	}

	keyPEM, err := v.remote.FetchPublicKey(ctx, params.keyID)
	if err != nil {
		return Verification{}, err
	}
	key, err := ParsePublicKey(keyPEM)
	if err != nil {
		return Verification{}, err
	}

	digest := sha256.Sum256([]byte(signingString))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], params.signature); err != nil {
		zerolog.Ctx(ctx).Debug().Str("key_id", params.keyID).Msg("signature verification failed")
		return Verification{}, ErrSignatureInvalid
	}

	return Verification{
		KeyID:    params.keyID,
		ActorURL: strings.SplitN(params.keyID, "#", 2)[0],
	}, nil
}

// parseSignatureHeader splits a Signature header into its k="v" pairs.
// keyId and signature are required; headers defaults to "date" per the
// draft when absent.
func parseSignatureHeader(value string) (signatureParams, error) {
	if strings.TrimSpace(value) == "" {
		return signatureParams{}, fmt.Errorf("%w: header missing", ErrMalformedSignatureHeader)
	}

	params := signatureParams{headers: []string{"date"}}
	for _, part := range strings.Split(value, ",") {
		key, val, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return signatureParams{}, fmt.Errorf("%w: %q", ErrMalformedSignatureHeader, part)
		}
		val = strings.Trim(val, `"`)
		switch key {
		case "keyId":
			params.keyID = val
		case "algorithm":
			params.algorithm = val
		case "headers":
			params.headers = strings.Fields(strings.ToLower(val))
		case "signature":
			sig, err := base64.StdEncoding.DecodeString(val)
			if err != nil {
				return signatureParams{}, fmt.Errorf("%w: bad signature encoding", ErrMalformedSignatureHeader)
			}
			params.signature = sig
		}
	}

	if params.keyID == "" || len(params.signature) == 0 {
		return signatureParams{}, fmt.Errorf("%w: keyId and signature required", ErrMalformedSignatureHeader)
	}
	return params, nil
}

// buildSigningString reproduces the exact byte string the sender signed:
// one "name: value" line per declared header, in declared order, joined by
// newlines, with (request-target) expanded from the request line.
func buildSigningString(names []string, hdr http.Header, method, path string) (string, error) {
	lines := make([]string, 0, len(names))
	for _, name := range names {
		if name == "(request-target)" {
			lines = append(lines, fmt.Sprintf("(request-target): %s %s", strings.ToLower(method), path))
			continue
		}
		value := hdr.Get(name)
		if value == "" {
			return "", fmt.Errorf("%w: signed header %q absent from request", ErrMalformedSignatureHeader, name)
		}
		lines = append(lines, fmt.Sprintf("%s: %s", name, value))
	}
	return strings.Join(lines, "\n"), nil
}

// SignRequest computes the Date, Digest, Host, and Signature headers for
// delivering body to inbox on behalf of the actor holding privatePEM.
// Signed headers are (request-target), host, date, and digest, which is
// what mainstream fediverse servers require.
func SignRequest(privatePEM, keyID, inbox string, body []byte, now time.Time) (map[string]string, error) {
	key, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}

	target, err := url.Parse(inbox)
	if err != nil {
		return nil, fmt.Errorf("parse inbox url: %w", err)
	}
	path := target.Path
	if path == "" {
		path = "/"
	}

	date := now.UTC().Format(http.TimeFormat)
	bodyDigest := sha256.Sum256(body)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(bodyDigest[:])

	signingString := strings.Join([]string{
		fmt.Sprintf("(request-target): post %s", path),
		fmt.Sprintf("host: %s", target.Host),
		fmt.Sprintf("date: %s", date),
		fmt.Sprintf("digest: %s", digest),
	}, "\n")

	hashed := sha256.Sum256([]byte(signingString))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	signature := fmt.Sprintf(
		`keyId="%s",algorithm="rsa-sha256",headers="(request-target) host date digest",signature="%s"`,
		keyID, base64.StdEncoding.EncodeToString(sig),
	)

	return map[string]string{
		"Host":      target.Host,
		"Date":      date,
		"Digest":    digest,
		"Signature": signature,
	}, nil
}
