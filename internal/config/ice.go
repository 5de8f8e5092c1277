package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "BEAMDROP_ICE_SERVERS_JSON"

	envStunURLs       = "BEAMDROP_STUN_URLS"
	envTurnURLs       = "BEAMDROP_TURN_URLS"
	envTurnUsername   = "BEAMDROP_TURN_USERNAME"
	envTurnCredential = "BEAMDROP_TURN_CREDENTIAL"
)

// parseICEServersFromValues resolves the server list handed out by
// GET /webrtc/ice. A full JSON array wins; otherwise the STUN/TURN
// convenience values are assembled into one.
func parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(iceServersJSON); raw != "" {
		servers, err := ParseICEServersJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}

	var servers []webrtc.ICEServer
	if urls := splitCommaSeparated(stunURLs); len(urls) > 0 {
		server := webrtc.ICEServer{URLs: urls}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, server)
	}
	if urls := splitCommaSeparated(turnURLs); len(urls) > 0 {
		server := webrtc.ICEServer{
			URLs:       urls,
			Username:   strings.TrimSpace(turnUsername),
			Credential: strings.TrimSpace(turnCredential),
		}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

// ParseICEServersJSON parses a browser-style iceServers array, where
// "urls" may be a single string or a list.
func ParseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	var entries []struct {
		URLs       urlList `json:"urls"`
		Username   string  `json:"username"`
		Credential string  `json:"credential"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	servers := make([]webrtc.ICEServer, 0, len(entries))
	for i, e := range entries {
		server := webrtc.ICEServer{
			URLs:     e.URLs,
			Username: strings.TrimSpace(e.Username),
		}
		if cred := strings.TrimSpace(e.Credential); cred != "" {
			server.Credential = cred
		}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

type urlList []string

func (l *urlList) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var single string
		if err := json.Unmarshal(b, &single); err != nil {
			return err
		}
		*l = urlList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

func splitCommaSeparated(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func validateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	needsCreds := false
	for _, u := range server.URLs {
		scheme, rest, ok := strings.Cut(strings.TrimSpace(u), ":")
		if !ok || rest == "" {
			return fmt.Errorf("malformed url %q", u)
		}
		switch scheme {
		case "stun", "stuns":
		case "turn", "turns":
			needsCreds = true
		default:
			return fmt.Errorf("unsupported url scheme %q", u)
		}
	}

	if needsCreds {
		cred, _ := server.Credential.(string)
		if server.Username == "" || strings.TrimSpace(cred) == "" {
			return errors.New("turn urls require username and credential")
		}
	}
	return nil
}
