package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

const maxURLFetchSize = 5 << 20 // 5MB

// contentError carries an HTTP status alongside a content-resolution
// failure so the ingest handler can report it precisely.
type contentError struct {
	status  int
	errType string
	message string
}

func (e *contentError) Error() string { return e.message }

func badContent(format string, args ...any) *contentError {
	return &contentError{status: http.StatusBadRequest, errType: "invalid_request_error", message: fmt.Sprintf(format, args...)}
}

func upstreamContent(format string, args ...any) *contentError {
	return &contentError{status: http.StatusBadGateway, errType: "api_error", message: fmt.Sprintf(format, args...)}
}

// resolveContent turns an ingest request into plain text ready for
// extraction. URL ingests are fetched and HTML-stripped; PDF ingests are
// base64-decoded and their text extracted.
func resolveContent(ctx context.Context, client *http.Client, req IngestRequest) (text, title string, err error) {
	switch {
	case req.Type == "url" && req.URL != "":
		body, err := fetchURL(ctx, client, req.URL)
		if err != nil {
			return "", "", err
		}
		title = req.Title
		if title == "" {
			title = req.URL
		}
		return htmlToText(body), title, nil

	case req.Type == "pdf" && req.Content != "":
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			return "", "", badContent("invalid base64 content")
		}
		text, err := pdfToText(decoded)
		if err != nil {
			return "", "", badContent("extracting pdf text: %v", err)
		}
		return text, req.Title, nil

	default:
		return req.Content, req.Title, nil
	}
}

func fetchURL(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, badContent("invalid url: %v", err)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, upstreamContent("failed to fetch url: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamContent("url returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxURLFetchSize))
	if err != nil {
		return nil, upstreamContent("failed to read url response: %v", err)
	}
	return body, nil
}

// htmlToText extracts visible text from an HTML document, skipping
// script and style contents. Non-HTML input falls through unchanged.
func htmlToText(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(sb.String())
}

// pdfToText extracts the plain text of every page of a PDF document.
func pdfToText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}
	textReader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	text, err := io.ReadAll(textReader)
	if err != nil {
		return "", fmt.Errorf("reading extracted text: %w", err)
	}
	return strings.TrimSpace(string(text)), nil
}
