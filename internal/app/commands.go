package app

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"talkwire/internal/auth/creds"
	"talkwire/internal/auth/session"
	"talkwire/internal/talk/api"
	"talkwire/internal/talk/wire"
)

// Login runs the OTP exchange for the configured account and persists
// the resulting session. The one-time code is read from in.
func (a *App) Login(ctx context.Context, in io.Reader, out io.Writer) error {
	dev, err := a.creds.LoadOrCreateDevice()
	if err != nil {
		return err
	}

	if err := a.api.RequestOTP(ctx, a.cfg.Account); err != nil {
		return fmt.Errorf("app: request otp: %w", err)
	}
	fmt.Fprintf(out, "One-time code sent to %s. Code: ", a.cfg.Account)

	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		return errors.New("app: no code entered")
	}
	code := strings.TrimSpace(sc.Text())
	if code == "" {
		return errors.New("app: empty code")
	}

	payload, err := a.api.VerifyOTP(ctx, a.cfg.Account, code, dev)
	if err != nil {
		return fmt.Errorf("app: verify otp: %w", err)
	}

	sess := creds.Session{
		UserID:          payload.UserID,
		AccessToken:     payload.AccessToken,
		ChatAccessToken: payload.ChatAccessToken,
		RefreshToken:    payload.RefreshToken,
	}
	if err := a.creds.SaveSession(sess); err != nil {
		return err
	}
	if a.cfg.DisplayName != "" {
		if err := a.creds.SaveProfile(creds.Profile{DisplayName: a.cfg.DisplayName}); err != nil {
			a.log.Warn("app.profile.save.fail", "err", err)
		}
	}

	a.log.Info("app.login.ok", "user_id", sess.UserID)
	fmt.Fprintf(out, "Logged in as %s\n", sess.UserID)
	return nil
}

// Logout invalidates the session server-side (best effort) and deletes
// the local record.
func (a *App) Logout(ctx context.Context) error {
	sess, err := a.creds.LoadSession()
	switch {
	case err == nil:
		if err := a.api.Logout(ctx, sess.AccessToken); err != nil {
			a.log.Warn("app.logout.remote.fail", "err", err)
		}
	case errors.Is(err, creds.ErrNoSession):
		// Nothing persisted; deleting below is a no-op.
	default:
		return err
	}
	return a.creds.DeleteSession()
}

// PairApprove approves a pending pairing request by its code.
func (a *App) PairApprove(ctx context.Context, code string, out io.Writer) error {
	channel := a.policies.Get().Channel
	sender, err := a.pairing.Approve(ctx, channel, code)
	if err != nil {
		return err
	}
	a.log.Info("app.pair.approved", "channel", channel, "sender", sender)
	fmt.Fprintf(out, "Approved %s on channel %s\n", sender, channel)
	return nil
}

// Send resolves target through the directory and sends one text message
// over a short-lived connection. Unresolved targets are treated as raw
// direct-message identifiers.
func (a *App) Send(ctx context.Context, target, text string) error {
	sess, err := a.sessions.GetValidSession(ctx)
	if err != nil {
		return err
	}
	dev, err := a.creds.LoadOrCreateDevice()
	if err != nil {
		return err
	}

	addr, ok := a.resolver.Resolve(ctx, target)
	if !ok {
		addr = wire.DirectAddress(target)
	}

	stream := a.newStream(sess, dev)
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	defer stream.Disconnect()

	id, err := stream.SendText(ctx, addr, text, a.displayName())
	if err != nil {
		return err
	}
	a.log.Info("app.send.ok", "to", addr, "id", id)
	return nil
}

// SendFile uploads a local file and sends it as a media message: issue
// an upload destination, PUT the bytes, then send the media stanza
// referencing the stored blob.
func (a *App) SendFile(ctx context.Context, target, path, caption string) error {
	sess, err := a.sessions.GetValidSession(ctx)
	if err != nil {
		return err
	}
	dev, err := a.creds.LoadOrCreateDevice()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("app: read media file: %w", err)
	}
	name := filepath.Base(path)
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	tgt, err := session.WithAutoRefresh(ctx, a.sessions,
		func(ctx context.Context, s creds.Session) (api.UploadTarget, error) {
			return a.api.MediaUploadURL(ctx, s.AccessToken, name, mimeType, int64(len(data)))
		})
	if err != nil {
		return err
	}
	if err := uploadBlob(ctx, tgt.URL, mimeType, data); err != nil {
		return err
	}

	addr, ok := a.resolver.Resolve(ctx, target)
	if !ok {
		addr = wire.DirectAddress(target)
	}

	stream := a.newStream(sess, dev)
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	defer stream.Disconnect()

	media := wire.Media{
		Type:     "file",
		URL:      tgt.URL,
		ID:       tgt.MediaID,
		Name:     name,
		Size:     int64(len(data)),
		MimeType: mimeType,
	}
	id, err := stream.SendMedia(ctx, addr, media, caption, a.displayName())
	if err != nil {
		return err
	}
	a.log.Info("app.sendfile.ok", "to", addr, "id", id, "name", name)
	return nil
}

func uploadBlob(ctx context.Context, url, mimeType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("app: build upload: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("app: upload media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("app: upload media: status %d", resp.StatusCode)
	}
	return nil
}

// History prints the most recent archived messages for a target channel.
func (a *App) History(ctx context.Context, target string, limit int, out io.Writer) error {
	addr, ok := a.resolver.Resolve(ctx, target)
	if !ok {
		addr = wire.DirectAddress(target)
	}
	channelID := wire.LocalPart(addr)

	items, err := session.WithAutoRefresh(ctx, a.sessions,
		func(ctx context.Context, s creds.Session) ([]api.HistoryItem, error) {
			return a.api.History(ctx, s.AccessToken, channelID, limit)
		})
	if err != nil {
		return err
	}

	for _, it := range items {
		fmt.Fprintf(out, "%s %s: %s\n", it.SentAt.Format(time.RFC3339), it.Sender, it.Body)
	}
	return nil
}
