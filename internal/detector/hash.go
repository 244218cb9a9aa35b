package detector

import (
	"hash/fnv"
	"net/http"
)

// relevantHeaders lists every header that feeds Detect, in a fixed order,
// so the cache key hash is deterministic for identical header sets
// regardless of the wire order the client sent them in.
var relevantHeaders = []string{
	"User-Agent",
	"Accept",
	"Sec-CH-UA",
	"Sec-CH-UA-Mobile",
	"Sec-CH-UA-Platform",
	"Viewport-Width",
	"Sec-CH-Viewport-Width",
	"DPR",
	"Sec-CH-DPR",
	"Save-Data",
	"ECT",
	"RTT",
	"Downlink",
	"Device-Memory",
	"Hardware-Concurrency",
}

// HashHeaders computes the cache key for a request's detector-relevant
// headers: an FNV-1a hash over the fixed header list, value-separated so
// two different header combinations can never collide on a shared prefix.
func HashHeaders(h http.Header) uint64 {
	hasher := fnv.New64a()
	for _, name := range relevantHeaders {
		hasher.Write([]byte(name))
		hasher.Write([]byte{0})
		hasher.Write([]byte(h.Get(name)))
		hasher.Write([]byte{0})
	}
	return hasher.Sum64()
}
