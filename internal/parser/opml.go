package parser

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

// Feed is one subscription listed in an OPML file.
type Feed struct {
	Name string
	URL  string
}

type opmlOutline struct {
	Type     string        `xml:"type,attr"`
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

type opmlDocument struct {
	Outlines []opmlOutline `xml:"body>outline"`
}

// LoadOPML reads the rss and atom subscriptions of an OPML file, at any
// nesting depth, in document order.
func LoadOPML(path string) ([]Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open OPML file: %w", err)
	}
	defer f.Close()
	return ParseOPML(f)
}

// ParseOPML decodes OPML from r.
func ParseOPML(r io.Reader) ([]Feed, error) {
	var doc opmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	var feeds []Feed
	var walk func([]opmlOutline)
	walk = func(outlines []opmlOutline) {
		for _, o := range outlines {
			if o.Type == "rss" || o.Type == "atom" {
				name := o.Title
				if name == "" {
					name = o.Text
				}
				feeds = append(feeds, Feed{Name: name, URL: o.XMLURL})
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Outlines)
	return feeds, nil
}

// FeedParams renders feeds as the "feeds" parameter list of feed_collection tasks.
func FeedParams(feeds []Feed) []any {
	out := make([]any, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, map[string]any{"name": f.Name, "url": f.URL})
	}
	return out
}
