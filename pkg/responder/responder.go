// Package responder produces bot replies through the Gemini API. Bots never
// touch the network; the outbound pipeline calls Respond with the full
// session history and appends whatever comes back.
package responder

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"backchannel/pkg/logger"
	"backchannel/pkg/models"

	"google.golang.org/genai"
)

const (
	defaultChatModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"
)

// Reply is one bot response part. ImageData is a base64 data URL, same
// encoding image messages use.
type Reply struct {
	Text      string
	ImageData string
}

type Responder struct {
	client     *genai.Client
	chatModel  string
	imageModel string
}

func New(ctx context.Context, apiKey, chatModel, imageModel string) (*Responder, error) {
	if apiKey == "" {
		return nil, errors.New("responder api key is required")
	}
	if chatModel == "" {
		chatModel = defaultChatModel
	}
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Responder{client: client, chatModel: chatModel, imageModel: imageModel}, nil
}

// Respond generates replies for one bot turn. The bot kind selects the
// behavior: "vision" answers about the most recent image in the session,
// "editor" returns an edited image, anything else chats from history under
// the contact's persona.
func (r *Responder) Respond(ctx context.Context, contact models.Contact, history []models.Message) ([]Reply, error) {
	switch contact.BotKind {
	case "vision":
		return r.describeImage(ctx, history)
	case "editor":
		return r.editImage(ctx, history)
	default:
		return r.chat(ctx, contact.Persona, history)
	}
}

func (r *Responder) chat(ctx context.Context, persona string, history []models.Message) ([]Reply, error) {
	var contents []*genai.Content
	for _, m := range history {
		if m.Type != models.MessageText || m.Content == "" {
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Content, roleFor(m.Sender)))
	}
	if len(contents) == 0 {
		return nil, errors.New("no text history for chat turn")
	}
	cfg := &genai.GenerateContentConfig{}
	if persona != "" {
		cfg.SystemInstruction = genai.NewContentFromText(persona, genai.RoleUser)
	}
	res, err := r.client.Models.GenerateContent(ctx, r.chatModel, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("chat generation failed: %w", err)
	}
	text := res.Text()
	if text == "" {
		return nil, errors.New("empty chat response")
	}
	return []Reply{{Text: text}}, nil
}

// describeImage answers the latest text prompt about the most recent image
// in the session.
func (r *Responder) describeImage(ctx context.Context, history []models.Message) ([]Reply, error) {
	data, mime, prompt, err := latestImageTurn(history)
	if err != nil {
		return nil, err
	}
	if prompt == "" {
		prompt = "Describe this image."
	}
	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(data, mime),
		genai.NewPartFromText(prompt),
	}, genai.RoleUser)
	res, err := r.client.Models.GenerateContent(ctx, r.chatModel, []*genai.Content{content}, nil)
	if err != nil {
		return nil, fmt.Errorf("vision generation failed: %w", err)
	}
	text := res.Text()
	if text == "" {
		return nil, errors.New("empty vision response")
	}
	return []Reply{{Text: text}}, nil
}

// editImage applies the latest text prompt to the most recent image and
// returns the edited image plus any accompanying text.
func (r *Responder) editImage(ctx context.Context, history []models.Message) ([]Reply, error) {
	data, mime, prompt, err := latestImageTurn(history)
	if err != nil {
		return nil, err
	}
	if prompt == "" {
		return nil, errors.New("no edit prompt in history")
	}
	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(data, mime),
		genai.NewPartFromText(prompt),
	}, genai.RoleUser)
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	res, err := r.client.Models.GenerateContent(ctx, r.imageModel, []*genai.Content{content}, cfg)
	if err != nil {
		return nil, fmt.Errorf("image edit failed: %w", err)
	}
	var out []Reply
	if len(res.Candidates) > 0 && res.Candidates[0].Content != nil {
		for _, p := range res.Candidates[0].Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				out = append(out, Reply{ImageData: EncodeDataURL(p.InlineData.MIMEType, p.InlineData.Data)})
			} else if p.Text != "" {
				out = append(out, Reply{Text: p.Text})
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("empty edit response")
	}
	return out, nil
}

// roleFor maps a message sender to the generation role: self speaks as the
// user, everything else is the model's side of the conversation.
func roleFor(sender string) genai.Role {
	if sender == models.SelfID {
		return genai.RoleUser
	}
	return genai.RoleModel
}

// latestImageTurn finds the most recent image in the session plus the most
// recent text after it, which serves as the prompt.
func latestImageTurn(history []models.Message) (data []byte, mime, prompt string, err error) {
	imgIdx := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Type == models.MessageImage && history[i].Sender == models.SelfID {
			imgIdx = i
			break
		}
	}
	if imgIdx < 0 {
		return nil, "", "", errors.New("no image in history")
	}
	for i := len(history) - 1; i > imgIdx; i-- {
		if history[i].Type == models.MessageText && history[i].Sender == models.SelfID {
			prompt = history[i].Content
			break
		}
	}
	if prompt == "" && history[imgIdx].Meta != nil {
		prompt = history[imgIdx].Meta.Prompt
	}
	data, mime, err = DecodeDataURL(history[imgIdx].Content)
	return data, mime, prompt, err
}

// DecodeDataURL splits a "data:<mime>;base64,<data>" payload, the encoding
// image and audio message content uses.
func DecodeDataURL(s string) ([]byte, string, error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, "", errors.New("not a data url")
	}
	rest := s[len("data:"):]
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return nil, "", errors.New("data url missing base64 payload")
	}
	mime := rest[:sep]
	b, err := base64.StdEncoding.DecodeString(rest[sep+len(";base64,"):])
	if err != nil {
		return nil, "", fmt.Errorf("decode data url: %w", err)
	}
	return b, mime, nil
}

// EncodeDataURL is the inverse of DecodeDataURL.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Close drops the client reference. The genai client holds no connection
// state of its own, so there is nothing to tear down.
func (r *Responder) Close() error {
	if r.client != nil {
		logger.Debug("responder_closed")
		r.client = nil
	}
	return nil
}
