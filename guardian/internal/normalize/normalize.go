// Package normalize reduces raw page HTML to the comparable payload the
// engine fingerprints: boilerplate-free text, page title, and meta
// description.
package normalize

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/deadlineshield/guardian/guardian/internal/store"
)

// MaxContentLength bounds normalized text to cap storage and hashing cost.
const MaxContentLength = 50_000

// MaxSampleLength bounds the content sample stored on the source record.
const MaxSampleLength = 2_000

// Result is the normalized form of one fetched page.
type Result struct {
	Text            string // boilerplate-free text, whitespace-collapsed, capped
	Title           string
	MetaDescription string
	BodyHTML        string // sanitized body markup, for markdown rendering
}

// Payload returns the string the fingerprint hasher runs over for the given
// watch mode.
func (r *Result) Payload(mode store.WatchMode) string {
	if mode == store.WatchMetadataOnly {
		return collapseWhitespace(r.Title + " " + r.MetaDescription)
	}
	return r.Text
}

// Hash collapses a normalized payload into a SHA-256 hex digest. Used purely
// for change detection, not for authentication.
func Hash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("%x", sum)
}

var sanitizer = bluemonday.UGCPolicy()

// strippedElements are removed wholesale before text collection: scripts,
// styles, embedded frames, and chrome that changes without the content
// meaning anything (header nav, footers).
var strippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Nav:      true,
}

// bannerMarkers identify transient overlay regions by class/id substring.
var bannerMarkers = []string{"cookie", "banner", "popup", "announcement-bar"}

// Normalize parses raw HTML and produces the comparable page form.
func Normalize(raw []byte) (*Result, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	res := &Result{
		Title:           findTitle(doc),
		MetaDescription: findMetaDescription(doc),
	}

	var sb strings.Builder
	collectText(doc, &sb)
	text := collapseWhitespace(sb.String())
	if len(text) > MaxContentLength {
		text = truncate(text, MaxContentLength)
	}
	res.Text = text

	if body := findElement(doc, atom.Body); body != nil {
		var buf bytes.Buffer
		if err := html.Render(&buf, body); err == nil {
			res.BodyHTML = sanitizer.Sanitize(buf.String())
		}
	}

	return res, nil
}

// Sample bounds text for storage on the source record.
func Sample(text string) string {
	if len(text) <= MaxSampleLength {
		return text
	}
	return truncate(text, MaxSampleLength)
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		if strippedElements[n.DataAtom] {
			return
		}
		if isBannerRegion(n) {
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

func isBannerRegion(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key != "class" && a.Key != "id" {
			continue
		}
		val := strings.ToLower(a.Val)
		for _, marker := range bannerMarkers {
			if strings.Contains(val, marker) {
				return true
			}
		}
	}
	return false
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		if n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findMetaDescription(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
		var name, content string
		for _, a := range n.Attr {
			switch a.Key {
			case "name":
				name = strings.ToLower(a.Val)
			case "content":
				content = a.Val
			}
		}
		if name == "description" {
			return strings.TrimSpace(content)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if d := findMetaDescription(c); d != "" {
			return d
		}
	}
	return ""
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && (s[max]&0xC0) == 0x80 {
		max--
	}
	return s[:max]
}
