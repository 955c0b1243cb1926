package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ResolveURL returns the hub's websocket URL. A non-empty override wins
// (http/https schemes are mapped to ws/wss); otherwise the URL is built from
// pageHost at fallbackPort.
func ResolveURL(override, pageHost string, fallbackPort int) (string, error) {
	if override != "" {
		u, err := url.Parse(override)
		if err != nil {
			return "", fmt.Errorf("parse overlay url: %w", err)
		}
		switch u.Scheme {
		case "ws", "wss":
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		default:
			return "", fmt.Errorf("overlay url %q: unsupported scheme %q", override, u.Scheme)
		}
		if u.Host == "" {
			return "", fmt.Errorf("overlay url %q: missing host", override)
		}
		if u.Path == "" || u.Path == "/" {
			u.Path = "/ws"
		}
		return u.String(), nil
	}

	host := pageHost
	if h, _, err := net.SplitHostPort(pageHost); err == nil {
		host = h
	}
	if host == "" {
		host = "localhost"
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(fallbackPort)), Path: "/ws"}
	return u.String(), nil
}

// HTTPBase maps a websocket URL onto the http(s) origin serving it.
func HTTPBase(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path, u.RawQuery, u.Fragment = "", "", ""
	return strings.TrimSuffix(u.String(), "/"), nil
}

// Reset asks the server to restore the default document.
func Reset(ctx context.Context, hc *http.Client, wsURL string) (string, error) {
	base, err := HTTPBase(wsURL)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/reset", nil)
	if err != nil {
		return "", err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("reset request: %w", err)
	}
	defer resp.Body.Close()
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("reset response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reset failed: %s: %s", resp.Status, body.Message)
	}
	return body.Message, nil
}

// Upload posts a file into one of the server's logo slots and returns the
// stored reference path.
func Upload(ctx context.Context, hc *http.Client, wsURL, field, team, filename string, file io.Reader) (string, error) {
	base, err := HTTPBase(wsURL)
	if err != nil {
		return "", err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("field", field); err != nil {
		return "", err
	}
	if team != "" {
		if err := mw.WriteField("team", team); err != nil {
			return "", err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()
	var out struct {
		Message  string `json:"message"`
		FilePath string `json:"filePath"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload failed: %s: %s", resp.Status, out.Message)
	}
	return out.FilePath, nil
}
