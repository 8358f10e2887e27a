package realtime

import (
	"fmt"
	"net/url"
)

// ResolveEndpoint turns the endpoint a consumer hands us into the URL the
// transport actually dials. Absolute ws/wss URLs pass through unchanged;
// http/https schemes are upgraded to ws/wss for socket transports.
// Origin-relative paths (e.g. "/ws/rfid") are resolved against origin,
// inheriting its host and scheme: a page at https://shop.example resolves
// to wss://shop.example for sockets.
func ResolveEndpoint(origin, endpoint string, socket bool) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("realtime: invalid endpoint %q: %w", endpoint, err)
	}

	if u.Scheme == "" || u.Host == "" {
		if origin == "" {
			return "", fmt.Errorf("realtime: relative endpoint %q needs an origin", endpoint)
		}
		base, err := url.Parse(origin)
		if err != nil {
			return "", fmt.Errorf("realtime: invalid origin %q: %w", origin, err)
		}
		if base.Scheme == "" || base.Host == "" {
			return "", fmt.Errorf("realtime: origin %q is not absolute", origin)
		}
		u = base.ResolveReference(u)
	}

	switch u.Scheme {
	case "ws", "wss":
		if !socket {
			return "", fmt.Errorf("realtime: scheme %q requires the websocket transport", u.Scheme)
		}
	case "http":
		if socket {
			u.Scheme = "ws"
		}
	case "https":
		if socket {
			u.Scheme = "wss"
		}
	default:
		return "", fmt.Errorf("realtime: unsupported scheme %q in %q", u.Scheme, endpoint)
	}

	return u.String(), nil
}
