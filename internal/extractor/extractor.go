// Package extractor turns raw page bytes into link metadata.
package extractor

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"linkstash/internal/domain"
)

// HTML extracts Open Graph, Twitter card and plain HTML head metadata.
type HTML struct{}

// Extract implements the pipeline's extractor contract.
func (HTML) Extract(raw []byte) *domain.Metadata {
	return Extract(raw)
}

// candidates collects every source for a field in priority order.
type candidates struct {
	ogTitle, twitterTitle, title             string
	ogDescription, twitterDescription, descr string
	ogImage, twitterImage, imageSrc          string
	siteName, canonical, ogURL               string
}

// Extract reads the <head> section of raw. It returns nil when no head
// section is found, which is also the case for non-HTML payloads.
func Extract(raw []byte) *domain.Metadata {
	z := html.NewTokenizer(bytes.NewReader(raw))

	var (
		c       candidates
		inHead  bool
		sawHead bool
		inTitle bool
	)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or malformed input; use what was collected.
			return c.metadata(sawHead)

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Head:
				inHead, sawHead = true, true
			case atom.Body:
				return c.metadata(sawHead)
			case atom.Title:
				if inHead && tt == html.StartTagToken {
					inTitle = true
				}
			case atom.Meta:
				if inHead {
					c.meta(tok)
				}
			case atom.Link:
				if inHead {
					c.link(tok)
				}
			}

		case html.EndTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Head:
				return c.metadata(sawHead)
			case atom.Title:
				inTitle = false
			}

		case html.TextToken:
			if inTitle && c.title == "" {
				c.title = strings.TrimSpace(string(z.Text()))
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func (c *candidates) meta(tok html.Token) {
	content := attr(tok, "content")
	if content == "" {
		return
	}
	key := strings.ToLower(attr(tok, "property"))
	if key == "" {
		key = strings.ToLower(attr(tok, "name"))
	}

	setOnce := func(dst *string) {
		if *dst == "" {
			*dst = content
		}
	}

	switch key {
	case "og:title":
		setOnce(&c.ogTitle)
	case "twitter:title":
		setOnce(&c.twitterTitle)
	case "og:description":
		setOnce(&c.ogDescription)
	case "twitter:description":
		setOnce(&c.twitterDescription)
	case "description":
		setOnce(&c.descr)
	case "og:image", "og:image:url", "og:image:secure_url":
		setOnce(&c.ogImage)
	case "twitter:image", "twitter:image:src":
		setOnce(&c.twitterImage)
	case "og:site_name":
		setOnce(&c.siteName)
	case "og:url":
		setOnce(&c.ogURL)
	}
}

func (c *candidates) link(tok html.Token) {
	href := attr(tok, "href")
	if href == "" {
		return
	}
	for _, rel := range strings.Fields(strings.ToLower(attr(tok, "rel"))) {
		switch rel {
		case "canonical":
			if c.canonical == "" {
				c.canonical = href
			}
		case "image_src":
			if c.imageSrc == "" {
				c.imageSrc = href
			}
		}
	}
}

func (c *candidates) metadata(sawHead bool) *domain.Metadata {
	if !sawHead {
		return nil
	}
	return &domain.Metadata{
		Title:        first(c.ogTitle, c.twitterTitle, c.title),
		Description:  first(c.ogDescription, c.twitterDescription, c.descr),
		ImageURL:     first(c.ogImage, c.twitterImage, c.imageSrc),
		SiteName:     first(c.siteName),
		CanonicalURL: first(c.canonical, c.ogURL),
	}
}

func first(values ...string) *string {
	for _, v := range values {
		if v != "" {
			return &v
		}
	}
	return nil
}
