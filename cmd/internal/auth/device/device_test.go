package device

import "testing"

func TestLabel(t *testing.T) {
	cases := []struct {
		name string
		ua   string
		want string
	}{
		{
			name: "chrome on macos",
			ua:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			want: "Chrome on macOS",
		},
		{
			name: "firefox on windows",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
			want: "Firefox on Windows",
		},
		{
			name: "edge not misread as chrome",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
			want: "Edge on Windows",
		},
		{
			name: "safari on ios",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
			want: "Safari on iOS",
		},
		{
			name: "chrome on android",
			ua:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
			want: "Chrome on Android",
		},
		{
			name: "curl",
			ua:   "curl/8.6.0",
			want: "curl",
		},
		{
			name: "os only",
			ua:   "SomeBot (Linux)",
			want: "Linux",
		},
		{
			name: "empty",
			ua:   "",
			want: "Unknown device",
		},
		{
			name: "whitespace",
			ua:   "   ",
			want: "Unknown device",
		},
		{
			name: "unrecognized",
			ua:   "TotallyCustomClient/1.0",
			want: "Unknown device",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Label(tc.ua); got != tc.want {
				t.Fatalf("Label(%q) = %q, want %q", tc.ua, got, tc.want)
			}
		})
	}
}
