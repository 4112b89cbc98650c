package capture

import (
	"testing"

	"github.com/discord-insight-lab/internal/session"
)

func TestPCMToBytes(t *testing.T) {
	got := pcmToBytes([]int16{0x0102, -2})
	want := []byte{0x02, 0x01, 0xFE, 0xFF}
	if len(got) != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, got[i], want[i])
		}
	}
}

func TestPCMToBytesEmpty(t *testing.T) {
	if got := pcmToBytes(nil); len(got) != 0 {
		t.Fatalf("expected empty output, got %d bytes", len(got))
	}
}

func TestNoopResolver(t *testing.T) {
	if (NoopResolver{}).UserName("123") != "" {
		t.Fatal("noop resolver must never resolve")
	}
}

func TestJoinRequiresVoiceChannel(t *testing.T) {
	// The session's channel id is the text channel reports go to; Join must
	// never fall back to it as a join target.
	sess := session.NewGuildSession("g1", "text-channel")
	if _, err := Join(nil, sess, "", NoopResolver{}); err == nil {
		t.Fatal("expected error when no voice channel id is given")
	}
}
