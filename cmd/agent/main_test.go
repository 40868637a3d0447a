package main

import (
	"testing"

	"github.com/omochice/toy-screen-stream/internal/agent"
)

func TestDialable(t *testing.T) {
	tests := []struct {
		name   string
		target agent.Target
		ws     bool
		want   string
		wantOK bool
	}{
		{"raw passes through", agent.Static("10.0.0.2:12120"), false, "10.0.0.2:12120", true},
		{"websocket adds scheme", agent.Static("10.0.0.2:12120"), true, "ws://10.0.0.2:12120", true},
		{"scheme kept", agent.Static("ws://h:1"), true, "ws://h:1", true},
		{"unknown stays unknown", func() (string, bool) { return "", false }, true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := dialable(tt.target, tt.ws)()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("dialable() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
