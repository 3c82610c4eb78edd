// Package discovery looks up the document editor's URLs from the server's
// /hosting/discovery catalog.
package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Endpoints are the editor entry points extracted from discovery.xml.
type Endpoints struct {
	Editor   string `json:"url"`
	Settings string `json:"settings"`
}

// Client fetches and parses the discovery catalog of one document server.
type Client struct {
	serverURL string
	http      *http.Client
}

// New creates a discovery client for the document server at serverURL.
func New(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

type discoveryDoc struct {
	XMLName  xml.Name  `xml:"wopi-discovery"`
	NetZones []netZone `xml:"net-zone"`
}

type netZone struct {
	Apps []appEntry `xml:"app"`
}

type appEntry struct {
	Name    string   `xml:"name,attr"`
	Actions []action `xml:"action"`
}

type action struct {
	URLSrc string `xml:"urlsrc,attr"`
}

// Lookup fetches discovery.xml and returns the urlsrc of the text editor
// action and of the Settings app.
func (c *Client) Lookup(ctx context.Context) (*Endpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/hosting/discovery", nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch discovery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch discovery: unexpected status %d", resp.StatusCode)
	}

	var doc discoveryDoc
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse discovery.xml: %w", err)
	}

	eps := &Endpoints{}
	for _, zone := range doc.NetZones {
		for _, app := range zone.Apps {
			switch app.Name {
			case "text/plain":
				if eps.Editor == "" && len(app.Actions) > 0 {
					eps.Editor = app.Actions[0].URLSrc
				}
			case "Settings":
				if eps.Settings == "" && len(app.Actions) > 0 {
					eps.Settings = app.Actions[0].URLSrc
				}
			}
		}
	}
	if eps.Editor == "" {
		return nil, fmt.Errorf("discovery.xml has no action for the text mime type")
	}
	return eps, nil
}
