package fetch

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// imageMetaKeys are the meta properties that name a page's preview image,
// in order of preference.
var imageMetaKeys = []string{
	"og:image:secure_url",
	"og:image:url",
	"og:image",
	"twitter:image",
	"twitter:image:src",
}

// extractImageURL scans the head of an HTML page for a preview image and
// resolves it against base. Only http and https results are returned.
func extractImageURL(page []byte, base *url.URL) (*url.URL, bool) {
	if len(page) > maxPageBytes {
		page = page[:maxPageBytes]
	}

	found := make(map[string]string)
	z := html.NewTokenizer(bytes.NewReader(page))

scan:
	for {
		switch z.Next() {
		case html.ErrorToken:
			break scan
		case html.EndTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Head {
				break scan
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch atom.Lookup(name) {
			case atom.Body:
				break scan
			case atom.Meta:
				if !hasAttr {
					continue
				}
				key, content := metaAttrs(z)
				if key != "" && content != "" {
					if _, ok := found[key]; !ok {
						found[key] = content
					}
				}
			}
		}
	}

	for _, key := range imageMetaKeys {
		raw, ok := found[key]
		if !ok {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		u := base.ResolveReference(ref)
		if u.Scheme == "http" || u.Scheme == "https" {
			return u, true
		}
	}
	return nil, false
}

// metaAttrs returns the lower-cased property (or name) and content of a meta tag.
func metaAttrs(z *html.Tokenizer) (key, content string) {
	for {
		k, v, more := z.TagAttr()
		switch string(k) {
		case "property", "name":
			if key == "" {
				key = strings.ToLower(string(v))
			}
		case "content":
			content = string(v)
		}
		if !more {
			return key, content
		}
	}
}
