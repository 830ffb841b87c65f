package responder

import (
	"testing"

	"backchannel/pkg/models"

	"google.golang.org/genai"
)

func TestLatestImageTurn(t *testing.T) {
	img := EncodeDataURL("image/png", []byte("png-bytes"))
	history := []models.Message{
		{Sender: models.SelfID, Type: models.MessageText, Content: "old chatter"},
		{Sender: models.SelfID, Type: models.MessageImage, Content: img},
		{Sender: "bot-vision", Type: models.MessageText, Content: "a cat"},
		{Sender: models.SelfID, Type: models.MessageText, Content: "make it a dog"},
	}
	data, mime, prompt, err := latestImageTurn(history)
	if err != nil {
		t.Fatalf("latest image turn: %v", err)
	}
	if string(data) != "png-bytes" || mime != "image/png" {
		t.Fatalf("unexpected image %q %q", data, mime)
	}
	if prompt != "make it a dog" {
		t.Fatalf("expected the text after the image, got %q", prompt)
	}
}

func TestLatestImageTurnPromptFromMeta(t *testing.T) {
	img := EncodeDataURL("image/png", []byte("x"))
	history := []models.Message{
		{Sender: models.SelfID, Type: models.MessageImage, Content: img, Meta: &models.MessageMeta{Prompt: "vintage look"}},
	}
	_, _, prompt, err := latestImageTurn(history)
	if err != nil {
		t.Fatalf("latest image turn: %v", err)
	}
	if prompt != "vintage look" {
		t.Fatalf("expected meta prompt, got %q", prompt)
	}
}

func TestLatestImageTurnNoImage(t *testing.T) {
	history := []models.Message{{Sender: models.SelfID, Type: models.MessageText, Content: "hi"}}
	if _, _, _, err := latestImageTurn(history); err == nil {
		t.Fatalf("expected error when no image present")
	}
}

func TestRoleFor(t *testing.T) {
	if got := roleFor(models.SelfID); got != genai.RoleUser {
		t.Fatalf("expected user role for self got %q", got)
	}
	if got := roleFor("bot-vision"); got != genai.RoleModel {
		t.Fatalf("expected model role for contact got %q", got)
	}
}

func TestCloseIdempotent(t *testing.T) {
	r := &Responder{}
	if err := r.Close(); err != nil {
		t.Fatalf("close without client: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
