package maintenance

import (
	"context"
	"testing"

	"backchannel/pkg/models"
	"backchannel/pkg/state"
)

func TestRunOnceReconcilesState(t *testing.T) {
	st := state.New()
	st.AddContact(models.Contact{ID: "user-1", Handle: "user-1", DisplayName: "user-1"})
	st.AppendMessage("user-1", models.Message{ID: "m1", Sender: "user-1", Content: "latest", Type: models.MessageText})
	if err := RunOnce(st); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	c, _ := st.Contact("user-1")
	if c.Preview != "latest" || c.Unread != 1 {
		t.Fatalf("sweep must leave a consistent contact untouched, got preview %q unread %d", c.Preview, c.Unread)
	}
}

func TestStartRejectsInvalidCron(t *testing.T) {
	if _, err := Start(context.Background(), state.New(), "not a cron"); err == nil {
		t.Fatalf("expected invalid cron to be rejected")
	}
}

func TestStartDefaultsCron(t *testing.T) {
	cancel, err := Start(context.Background(), state.New(), "")
	if err != nil {
		t.Fatalf("empty cron must default: %v", err)
	}
	cancel()
}
