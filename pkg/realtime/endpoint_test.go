package realtime

import "testing"

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		origin   string
		endpoint string
		socket   bool
		want     string
		wantErr  bool
	}{
		{
			name:     "relative path on https page",
			origin:   "https://shop.example/dashboard",
			endpoint: "/ws/rfid",
			socket:   true,
			want:     "wss://shop.example/ws/rfid",
		},
		{
			name:     "relative path on localhost dev server",
			origin:   "http://localhost:5173/",
			endpoint: "/ws/rfid",
			socket:   true,
			want:     "ws://localhost:5173/ws/rfid",
		},
		{
			name:     "absolute ws unchanged",
			endpoint: "ws://reader.local:9000/stream",
			socket:   true,
			want:     "ws://reader.local:9000/stream",
		},
		{
			name:     "absolute wss unchanged",
			endpoint: "wss://shop.example/ws/events",
			socket:   true,
			want:     "wss://shop.example/ws/events",
		},
		{
			name:     "absolute https upgraded for socket",
			endpoint: "https://shop.example/ws/events",
			socket:   true,
			want:     "wss://shop.example/ws/events",
		},
		{
			name:     "absolute http upgraded for socket",
			endpoint: "http://shop.example/ws/events",
			socket:   true,
			want:     "ws://shop.example/ws/events",
		},
		{
			name:     "sse keeps https",
			endpoint: "https://shop.example/events",
			socket:   false,
			want:     "https://shop.example/events",
		},
		{
			name:     "sse relative keeps http",
			origin:   "http://localhost:5173",
			endpoint: "/events",
			socket:   false,
			want:     "http://localhost:5173/events",
		},
		{
			name:     "relative without origin fails",
			endpoint: "/ws/rfid",
			socket:   true,
			wantErr:  true,
		},
		{
			name:     "ws scheme on sse transport fails",
			endpoint: "ws://shop.example/ws",
			socket:   false,
			wantErr:  true,
		},
		{
			name:     "unsupported scheme fails",
			endpoint: "ftp://shop.example/events",
			socket:   true,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEndpoint(tt.origin, tt.endpoint, tt.socket)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveEndpoint(%q, %q) = %q, want error", tt.origin, tt.endpoint, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveEndpoint: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveEndpoint(%q, %q) = %q, want %q", tt.origin, tt.endpoint, got, tt.want)
			}
		})
	}
}
