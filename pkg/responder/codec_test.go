package responder

import (
	"bytes"
	"testing"
)

func TestDataURLRoundTrip(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	url := EncodeDataURL("image/png", raw)
	data, mime, err := DecodeDataURL(url)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mime != "image/png" {
		t.Fatalf("expected image/png got %q", mime)
	}
	if !bytes.Equal(data, raw) {
		t.Fatalf("payload mangled: %v", data)
	}
}

func TestDecodeDataURLErrors(t *testing.T) {
	cases := []string{
		"http://example.com/cat.png",
		"data:image/png,notbase64",
		"data:image/png;base64,!!!",
		"",
	}
	for _, c := range cases {
		if _, _, err := DecodeDataURL(c); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}
