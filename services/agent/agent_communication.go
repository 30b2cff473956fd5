package agent

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type AgentCommunication struct {
	Endpoint string
	Type     string // tcp or unix

	SocketPath string
	HostPort   string
	BaseURL    string

	Token string // bearer token, optional

	client *http.Client
}

// NewAgentCommunication parses an endpoint like:
//
//	unix:///var/run/agent.sock
//	tcp://example.com:8080
func NewAgentCommunication(endpoint, token string) (*AgentCommunication, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("invalid AGENT_ENDPOINT %q: %w", endpoint, err)
	}

	ac := &AgentCommunication{Endpoint: endpoint, Token: strings.TrimSpace(token)}

	switch strings.ToLower(u.Scheme) {
	case "unix":
		// url.Parse treats unix:///path as Path="/path"
		if u.Path == "" {
			return nil, fmt.Errorf("unix endpoint missing socket path: %q", endpoint)
		}
		ac.Type = "unix"
		ac.SocketPath = u.Path

		// The transport ignores the host for unix sockets, but net/http needs a valid URL.
		ac.BaseURL = "http://agent"

	case "tcp":
		if u.Host == "" {
			return nil, fmt.Errorf("tcp endpoint missing host:port: %q", endpoint)
		}
		ac.Type = "tcp"
		ac.HostPort = u.Host
		ac.BaseURL = "http://" + u.Host

	default:
		return nil, fmt.Errorf("unsupported AGENT_ENDPOINT scheme %q (use unix:// or tcp://)", u.Scheme)
	}

	return ac, nil
}

// Client returns an *http.Client configured to talk to the agent over tcp or unix,
// plus the BaseURL to use for requests.
func (a *AgentCommunication) Client() (*http.Client, string, error) {
	if a.client != nil {
		return a.client, a.BaseURL, nil
	}

	switch a.Type {
	case "tcp":
		a.client = &http.Client{Timeout: 10 * time.Second}

	case "unix":
		dialer := &net.Dialer{Timeout: 5 * time.Second}
		tr := &http.Transport{
			// always dial the socket path, whatever host the URL names
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.DialContext(ctx, "unix", a.SocketPath)
			},
		}
		a.client = &http.Client{Transport: tr, Timeout: 10 * time.Second}

	default:
		return nil, "", fmt.Errorf("invalid agent communication type %q", a.Type)
	}

	return a.client, a.BaseURL, nil
}

func (a *AgentCommunication) NewRequest(
	ctx context.Context,
	method string,
	path string,
	body io.Reader,
) (*http.Request, error) {

	req, err := http.NewRequestWithContext(
		ctx,
		method,
		a.BaseURL+path,
		body,
	)
	if err != nil {
		return nil, err
	}

	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}
