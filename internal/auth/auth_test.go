package auth

import (
	"testing"
	"time"

	"github.com/danielloader/imgresize/internal/errs"
	"github.com/danielloader/imgresize/internal/types"
)

type fakeSecrets map[string]string

func (f fakeSecrets) LookupSecret(ref string) (string, bool) {
	v, ok := f[ref]
	return v, ok
}

func TestResolveNoneIsPassThrough(t *testing.T) {
	origin := types.Origin{AuthKind: types.AuthNone}
	res, err := Resolve(origin, "https://img.example.com/cat.jpg", fakeSecrets{}, types.SecurityStrict, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Headers != nil || res.URL != "" {
		t.Fatalf("expected empty result for none auth, got %+v", res)
	}
}

func TestResolveCustomHeaderCopiesVerbatim(t *testing.T) {
	origin := types.Origin{
		AuthKind:   types.AuthCustomHeader,
		AuthParams: types.AuthParams{Headers: map[string]string{"X-Api-Key": "abc123"}},
	}
	res, err := Resolve(origin, "https://img.example.com/cat.jpg", fakeSecrets{}, types.SecurityStrict, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Headers["X-Api-Key"] != "abc123" {
		t.Fatalf("expected header passed through verbatim, got %+v", res.Headers)
	}
}

func TestResolveBearerProducesAuthorizationHeader(t *testing.T) {
	origin := types.Origin{AuthKind: types.AuthBearer, AuthParams: types.AuthParams{SecretRef: "secret1"}}
	secrets := fakeSecrets{"secret1": "shh"}
	res, err := Resolve(origin, "https://img.example.com/cat.jpg", secrets, types.SecurityStrict, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	header := res.Headers["Authorization"]
	if len(header) < len("Bearer ") || header[:7] != "Bearer " {
		t.Fatalf("expected a Bearer header, got %q", header)
	}
}

func TestResolveSignedQueryAddsSignatureAndExpiry(t *testing.T) {
	origin := types.Origin{
		AuthKind:   types.AuthSignedQuery,
		AuthParams: types.AuthParams{SecretRef: "s", TokenParam: "sig", ExpiresWindowS: 60},
	}
	secrets := fakeSecrets{"s": "shh"}
	res, err := Resolve(origin, "https://img.example.com/cat.jpg?width=100", secrets, types.SecurityStrict, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.URL == "" {
		t.Fatal("expected a rewritten signed URL")
	}
	if !contains(res.URL, "sig=") || !contains(res.URL, "expires=") {
		t.Fatalf("expected sig and expires params in %q", res.URL)
	}
}

// TestResolveMissingSecretStrictFails covers the auth-mode contract:
// strict mode with a missing secret must deterministically
// fail with auth-failure.
func TestResolveMissingSecretStrictFails(t *testing.T) {
	origin := types.Origin{AuthKind: types.AuthBearer, AuthParams: types.AuthParams{SecretRef: "missing"}}
	_, err := Resolve(origin, "https://img.example.com/cat.jpg", fakeSecrets{}, types.SecurityStrict, time.Now())
	if err == nil {
		t.Fatal("expected an error in strict mode with a missing secret")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindAuthFailure {
		t.Fatalf("expected KindAuthFailure, got %v", err)
	}
}

// TestResolveMissingSecretPermissiveWarns covers the other half of the same
// contract: permissive mode proceeds unauthenticated with a warning and no
// auth-failure kind.
func TestResolveMissingSecretPermissiveWarns(t *testing.T) {
	origin := types.Origin{AuthKind: types.AuthBearer, AuthParams: types.AuthParams{SecretRef: "missing"}}
	res, err := Resolve(origin, "https://img.example.com/cat.jpg", fakeSecrets{}, types.SecurityPermissive, time.Now())
	if err != nil {
		t.Fatalf("permissive mode must not return an error, got %v", err)
	}
	if res.Warning == "" {
		t.Fatal("expected a warning when a secret is missing in permissive mode")
	}
	if res.Headers != nil {
		t.Fatalf("expected no auth headers applied, got %+v", res.Headers)
	}
}

func TestResolveS3SigMissingCredentials(t *testing.T) {
	origin := types.Origin{
		AuthKind:   types.AuthS3Sig,
		ID:         "o2",
		AuthParams: types.AuthParams{AccessKeyRef: "ak", SecretKeyRef: "sk", Region: "us-east-1", Service: "s3"},
	}
	_, err := Resolve(origin, "https://bucket.s3.amazonaws.com/private/x.png", fakeSecrets{}, types.SecurityStrict, time.Now())
	if err == nil {
		t.Fatal("expected error when S3 credentials are missing in strict mode")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindAuthFailure {
		t.Fatalf("expected KindAuthFailure, got %v", err)
	}
}

func TestOriginMatchesExactThenWildcard(t *testing.T) {
	exact := types.Origin{DomainPattern: "img.example.com"}
	wildcard := types.Origin{DomainPattern: "*.example.com"}

	if !exact.Matches("img.example.com") {
		t.Fatal("expected exact match")
	}
	if exact.Matches("other.example.com") {
		t.Fatal("exact pattern must not match a different host")
	}
	if !wildcard.Matches("cdn.example.com") {
		t.Fatal("expected wildcard to match a subdomain")
	}
	if wildcard.Matches("example.com") {
		t.Fatal("wildcard must not match the bare apex domain")
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
