package news

import (
	"encoding/xml"
	"errors"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// rssFeed is the XML structure for RSS 2.0 feeds.
type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
}

// atomFeed is the XML structure for Atom feeds.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string     `xml:"id"`
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// parsedFeed is a feed normalized to articles, before the source name
// is applied.
type parsedFeed struct {
	Title    string
	Articles []Article
}

// parseFeed parses data as either Atom or RSS 2.0.
func parseFeed(data []byte) (*parsedFeed, error) {
	var atom atomFeed
	if err := xml.Unmarshal(data, &atom); err == nil && atom.XMLName.Local == "feed" {
		return atomToFeed(&atom), nil
	}

	var rss rssFeed
	if err := xml.Unmarshal(data, &rss); err == nil && rss.XMLName.Local == "rss" {
		return rssToFeed(&rss), nil
	}

	return nil, errors.New("unrecognized feed format (expected RSS 2.0 or Atom)")
}

func atomToFeed(af *atomFeed) *parsedFeed {
	f := &parsedFeed{Title: strings.TrimSpace(af.Title)}
	for _, e := range af.Entries {
		pub, _ := time.Parse(time.RFC3339, strings.TrimSpace(e.Published))
		if pub.IsZero() {
			pub, _ = time.Parse(time.RFC3339, strings.TrimSpace(e.Updated))
		}
		link := atomBestLink(e.Links)
		id := e.ID
		if id == "" {
			id = link
		}
		desc := e.Summary
		if desc == "" {
			desc = e.Content
		}
		f.Articles = append(f.Articles, Article{
			ID:          id,
			Title:       stripHTML(e.Title),
			Link:        link,
			PubDate:     pub,
			Description: stripHTML(desc),
		})
	}
	return f
}

// atomBestLink prefers rel="alternate" (or no rel) and falls back to
// the first link.
func atomBestLink(links []atomLink) string {
	if len(links) == 0 {
		return ""
	}
	for _, l := range links {
		if l.Rel == "alternate" || l.Rel == "" {
			return l.Href
		}
	}
	return links[0].Href
}

var rssDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
}

func parseRSSDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range rssDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func rssToFeed(rf *rssFeed) *parsedFeed {
	f := &parsedFeed{Title: strings.TrimSpace(rf.Channel.Title)}
	for _, item := range rf.Channel.Items {
		id := strings.TrimSpace(item.GUID)
		if id == "" {
			id = strings.TrimSpace(item.Link)
		}
		f.Articles = append(f.Articles, Article{
			ID:          id,
			Title:       stripHTML(item.Title),
			Link:        strings.TrimSpace(item.Link),
			PubDate:     parseRSSDate(item.PubDate),
			Description: stripHTML(item.Description),
		})
	}
	return f
}

// stripHTML reduces markup (and entity-escaped markup, which many feeds
// put in <description>) to collapsed plain text.
func stripHTML(s string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.WriteString(string(tokenizer.Text()))
			b.WriteString(" ")
		}
	}
}
