package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rssFeed is the subset of RSS 2.0 the news sources emit.
type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// Headlines that are never about a listed company; matching items are
// skipped before sentiment scoring.
var skipKeywords = []string{"horoscope", "weather", "cricket", "ipl", "match"}

// fetchBusinessFeed pulls the market-wide business RSS feed and keeps items
// mentioning the company or ticker.
func (s *Stage) fetchBusinessFeed(ctx context.Context, company, ticker string) ([]Item, error) {
	items, err := s.fetchRSS(ctx, s.cfg.BusinessFeedURL, "business-feed")
	if err != nil {
		return nil, err
	}
	return filterRelevant(items, company, ticker), nil
}

// fetchHeadlines queries the headline RSS search endpoint for the company.
func (s *Stage) fetchHeadlines(ctx context.Context, company, ticker string) ([]Item, error) {
	query := company
	if query == "" {
		query = ticker
	}
	feedURL := fmt.Sprintf("%s?q=%s+stock", s.cfg.HeadlinesURL, url.QueryEscape(query))
	return s.fetchRSS(ctx, feedURL, "headlines")
}

// fetchRSS downloads and parses one RSS feed.
func (s *Stage) fetchRSS(ctx context.Context, feedURL, source string) ([]Item, error) {
	resp, err := s.client.Get(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", source, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", source, err)
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse %s feed: %w", source, err)
	}

	items := make([]Item, 0, len(feed.Channel.Items))
	for _, it := range feed.Channel.Items {
		title := strings.TrimSpace(it.Title)
		if title == "" || skip(title) {
			continue
		}
		items = append(items, Item{
			Title:       title,
			Summary:     strings.TrimSpace(stripTags(it.Description)),
			URL:         strings.TrimSpace(it.Link),
			Source:      source,
			PublishedAt: strings.TrimSpace(it.PubDate),
		})
	}
	return items, nil
}

// fetchMarketPage scrapes headlines from the market news HTML page and
// keeps those mentioning the company. HTML parsing stays inside this
// collaborator; the pipeline core never touches markup.
func (s *Stage) fetchMarketPage(ctx context.Context, company, ticker string) ([]Item, error) {
	resp, err := s.client.Get(ctx, s.cfg.MarketPageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch market page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse market page: %w", err)
	}

	var items []Item
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Text())
		if len(title) < 20 || skip(title) {
			return
		}
		href, _ := sel.Attr("href")
		items = append(items, Item{
			Title:  title,
			URL:    href,
			Source: "market-page",
		})
	})

	return filterRelevant(items, company, ticker), nil
}

// filterRelevant keeps items that mention the company name or ticker.
func filterRelevant(items []Item, company, ticker string) []Item {
	companyLower := strings.ToLower(company)
	tickerLower := strings.ToLower(ticker)

	out := make([]Item, 0, len(items))
	for _, it := range items {
		text := strings.ToLower(it.Title + " " + it.Summary)
		if (companyLower != "" && strings.Contains(text, companyLower)) ||
			(tickerLower != "" && strings.Contains(text, tickerLower)) {
			out = append(out, it)
		}
	}
	return out
}

func skip(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range skipKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// stripTags removes markup that some feeds embed in descriptions.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
