package normalize

import "testing"

func TestURL(t *testing.T) {
	for in, want := range map[string]string{
		"":                      "",
		"   ":                   "",
		"wss://x.com/y":         "wss://x.com/y",
		"wss://x.com/y/":        "wss://x.com/y",
		"http://x.com/y":        "ws://x.com/y",
		"HTTPS://X.com":         "wss://x.com",
		"wss://x.com/":          "wss://x.com",
		"x.com":                 "wss://x.com",
		"x.com////":             "wss://x.com",
		"x.com/?x=23":           "wss://x.com?x=23",
		"ws://localhost:7777":   "ws://localhost:7777",
		"ws://127.0.0.1:1/Path": "ws://127.0.0.1:1/Path",
	} {
		if got := URL(in); got != want {
			t.Errorf("URL(%q) = %q, want %q", in, got, want)
		}
	}
	if got := URL(URL(URL("http://x.com/y/"))); got != "ws://x.com/y" {
		t.Errorf("URL is not idempotent: %q", got)
	}
}
