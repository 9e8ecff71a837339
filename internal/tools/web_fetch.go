package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"automa/internal/logging"

	"golang.org/x/net/html"
)

var (
	collapseNewlines = regexp.MustCompile(`\n{3,}`)
	collapseSpaces   = regexp.MustCompile(`[ \t]{2,}`)
)

const (
	fetchBodyLimit = 2 << 20
	fetchTimeout   = 60 * time.Second
)

// WebFetchTool returns a tool for fetching web pages and converting to
// markdown. Its output is outside-authored text; the loop sanitizes it
// before the model sees it.
func WebFetchTool() *Tool {
	return &Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page and convert its content to markdown format",
		Category:    CategorySystem,
		Risk:        RiskCaution,
		External:    true,
		Priority:    70,
		Execute:     executeWebFetch,
		Schema: ToolSchema{
			Required: []string{"url"},
			Properties: map[string]Property{
				"url": {
					Type:        "string",
					Description: "The URL to fetch",
				},
				"max_length": {
					Type:        "integer",
					Description: "Maximum content length in characters (default: 50000)",
					Default:     50000,
				},
				"include_links": {
					Type:        "boolean",
					Description: "Whether to include links in the output (default: true)",
					Default:     true,
				},
			},
		},
	}
}

func executeWebFetch(ctx context.Context, args map[string]any) (string, error) {
	url, err := requiredString(args, "url")
	if err != nil {
		return "", err
	}

	maxLength := intArg(args, "max_length", 50000)
	if maxLength <= 0 {
		maxLength = 50000
	}
	includeLinks := boolArg(args, "include_links", true)

	logging.ToolsDebug("Web fetch: url=%s, max_length=%d", url, maxLength)

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; automa/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	// Plain text and markdown pass through untouched.
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/plain") || strings.Contains(contentType, "text/markdown") {
		return clip(string(body), maxLength), nil
	}

	markdown, err := htmlToMarkdown(string(body), includeLinks)
	if err != nil {
		return "", fmt.Errorf("failed to convert to markdown: %w", err)
	}
	markdown = clip(markdown, maxLength)

	logging.Tools("Web fetch completed: %s (%d chars)", url, len(markdown))
	return markdown, nil
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n\n[...truncated...]"
}

// htmlToMarkdown converts HTML to a simplified markdown format.
func htmlToMarkdown(htmlContent string, includeLinks bool) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	walk(doc, &sb, includeLinks, 0)

	return cleanMarkdown(sb.String()), nil
}

// markers holds the markdown emitted before and after an element's children.
var markers = map[string][2]string{
	"title":  {"# ", "\n\n"},
	"h1":     {"\n\n# ", "\n\n"},
	"h2":     {"\n\n## ", "\n\n"},
	"h3":     {"\n\n### ", "\n\n"},
	"h4":     {"\n\n#### ", "\n\n"},
	"h5":     {"\n\n##### ", "\n\n"},
	"h6":     {"\n\n###### ", "\n\n"},
	"p":      {"\n\n", ""},
	"div":    {"\n\n", ""},
	"br":     {"\n", ""},
	"li":     {"\n- ", ""},
	"code":   {"`", "`"},
	"pre":    {"\n\n```\n", "\n```\n\n"},
	"strong": {"**", "**"},
	"b":      {"**", "**"},
	"em":     {"*", "*"},
	"i":      {"*", "*"},
}

// skipped subtrees contribute nothing to the markdown.
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
	"svg": true, "nav": true, "footer": true, "header": true,
}

// walk renders one node and its subtree. The depth cap guards against
// pathological nesting.
func walk(n *html.Node, sb *strings.Builder, includeLinks bool, depth int) {
	if depth > 50 {
		return
	}

	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	}

	var before, after string
	if n.Type == html.ElementNode {
		if skipped[n.Data] {
			return
		}
		switch n.Data {
		case "img":
			if alt := getAttr(n, "alt"); alt != "" {
				fmt.Fprintf(sb, "[Image: %s]", alt)
			}
			return
		case "a":
			if includeLinks {
				if href := getAttr(n, "href"); href != "" && !strings.HasPrefix(href, "#") {
					before, after = "[", fmt.Sprintf("](%s)", href)
				}
			}
		default:
			m := markers[n.Data]
			before, after = m[0], m[1]
		}
	}

	sb.WriteString(before)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, sb, includeLinks, depth+1)
	}
	sb.WriteString(after)
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// cleanMarkdown collapses runs of whitespace left behind by the tree walk.
func cleanMarkdown(s string) string {
	s = collapseNewlines.ReplaceAllString(s, "\n\n")
	s = collapseSpaces.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
