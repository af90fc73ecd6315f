package domain

import (
	"crypto/rand"
	"encoding/hex"
	"net/url"
)

// Metadata is the flat page summary produced by an extractor.
// Pointer fields distinguish "not present" from "empty".
type Metadata struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	ImageURL     *string `json:"image_url,omitempty"`
	SiteName     *string `json:"site_name,omitempty"`
	CanonicalURL *string `json:"canonical_url,omitempty"`
}

// ApplyTo overwrites the link's title, description and image URL with the
// metadata values, nil included. A relative image URL is resolved against
// the link URL.
func (m Metadata) ApplyTo(link *Link) {
	link.Title = m.Title
	link.Description = m.Description
	link.ImageURL = resolveAgainst(link.URL, m.ImageURL)
}

func resolveAgainst(base string, ref *string) *string {
	if ref == nil {
		return nil
	}
	refURL, err := url.Parse(*ref)
	if err != nil || refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	resolved := baseURL.ResolveReference(refURL).String()
	return &resolved
}

// RandomColorTag returns 6 lowercase hex digits.
func RandomColorTag() string {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "808080"
	}
	return hex.EncodeToString(b[:])
}
