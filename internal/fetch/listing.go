package fetch

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Link is one anchor found on a listing page.
type Link struct {
	// Href is the anchor target as written in the page, trimmed.
	Href string
	// URL is Href resolved against the page URL, without fragment.
	URL string
	// IsDir reports whether Href names a directory (trailing slash).
	IsDir bool
}

// ParseLinks extracts <a href> targets from an HTML document and resolves
// them against pageURL. Fragment-only and non-http(s) targets are dropped.
func ParseLinks(pageURL string, r io.Reader) ([]Link, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var links []Link

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if link, ok := resolveLink(base, attr.Val); ok {
					links = append(links, link)
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}

func resolveLink(base *url.URL, raw string) (Link, bool) {
	href := strings.TrimSpace(raw)
	if href == "" || strings.HasPrefix(href, "#") {
		return Link{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return Link{}, false
	}

	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return Link{}, false
	}
	abs.Fragment = ""
	abs.RawFragment = ""

	return Link{
		Href:  href,
		URL:   abs.String(),
		IsDir: strings.HasSuffix(href, "/"),
	}, true
}

// NormalizeURL resolves rawURL to its canonical absolute form, the same
// form used for Link.URL.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}
