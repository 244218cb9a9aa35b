package types

// AuthKind selects how a request to an Origin is authenticated.
type AuthKind string

const (
	AuthNone         AuthKind = "none"
	AuthBearer       AuthKind = "bearer"
	AuthCustomHeader AuthKind = "custom-header"
	AuthSignedQuery  AuthKind = "signed-query"
	AuthS3Sig        AuthKind = "s3-sig"
)

// SecurityLevel controls behavior when auth cannot be performed (e.g. a
// missing secret).
type SecurityLevel string

const (
	SecurityStrict     SecurityLevel = "strict"
	SecurityPermissive SecurityLevel = "permissive"
)

// AuthParams holds every field any auth kind might need. Unused fields for
// a given Kind are simply left zero; this is a closed struct rather than a
// map because auth.Resolve's cases are fixed and known, unlike
// TransformOptions.Extras.
type AuthParams struct {
	// bearer / signed-query: name of a secret looked up in the
	// environment map, e.g. "AUTH_TOKEN_SECRET_<ORIGIN>".
	SecretRef string

	// custom-header: headers to attach verbatim.
	Headers map[string]string

	// signed-query: name of the signature query parameter, and the
	// validity window for the "expires" parameter.
	TokenParam      string
	ExpiresWindowS  int

	// s3-sig
	Region    string
	Service   string
	AccessKeyRef string
	SecretKeyRef string
}

// Origin is one addressable source of image bytes.
type Origin struct {
	ID            string
	DomainPattern string // literal host, or "*.example.com"
	Enabled       bool
	AuthKind      AuthKind
	AuthParams    AuthParams

	// PathTransform rewrites the incoming path before it is sent upstream,
	// e.g. stripping or adding a prefix. Nil means pass the path through.
	PathTransform func(path string) string
}

// Matches reports whether host matches this origin's declared domain
// pattern: exact match first, then wildcard ("*.example.com" matches any
// subdomain of example.com, not example.com itself).
func (o Origin) Matches(host string) bool {
	if o.DomainPattern == host {
		return true
	}
	if len(o.DomainPattern) > 2 && o.DomainPattern[:2] == "*." {
		suffix := o.DomainPattern[1:] // ".example.com"
		if len(host) > len(suffix) && host[len(host)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

// StorageSourceTag classifies where a StorageResult's bytes came from.
type StorageSourceTag string

const (
	SourceObjectStore StorageSourceTag = "object-store"
	SourceRemote      StorageSourceTag = "remote"
	SourceFallback    StorageSourceTag = "fallback"
	SourceError       StorageSourceTag = "error"
)

// StorageResult is what the storage fetcher returns for one request. Body
// is left as raw bytes rather than a stream: the transform primitive
// needs the whole image in memory regardless, and keeping StorageResult
// non-generic avoids threading an io.ReadCloser through code that has no
// use for partial reads.
type StorageResult struct {
	Body        []byte
	SourceTag   StorageSourceTag
	ContentType string
	Size        int64
	Path        string
	Width       int
	Height      int
	TTLHint     int
	OriginalURL string
}
