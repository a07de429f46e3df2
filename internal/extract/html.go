// Package extract pulls readable text, titles, and outbound links from HTML.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Boilerplate elements removed before text extraction. Navigation and footer
// chrome would otherwise dominate the extracted text of marketing sites.
const strippedSelectors = "script, style, noscript, svg, iframe, nav, footer, header, aside, form"

// PageContent is the readable view of an HTML document.
type PageContent struct {
	Title string
	Text  string
	Links []string
}

// HTML parses the document body and returns its readable content plus up to
// maxLinks absolute outbound links resolved against baseURL.
func HTML(body []byte, baseURL string, maxLinks int) (PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return PageContent{}, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return PageContent{}, fmt.Errorf("parse base url: %w", err)
	}

	doc.Find(strippedSelectors).Remove()

	content := PageContent{
		Title: title(doc),
		Text:  normalizeWhitespace(doc.Find("body").Text()),
	}
	if content.Text == "" {
		content.Text = normalizeWhitespace(doc.Text())
	}
	content.Links = links(doc, base, maxLinks)
	return content, nil
}

func title(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func links(doc *goquery.Document, base *url.URL, maxLinks int) []string {
	if maxLinks <= 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		resolved := resolveLink(base, href)
		if resolved == "" {
			return true
		}
		if _, dup := seen[resolved]; dup {
			return true
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
		return len(out) < maxLinks
	})
	return out
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
