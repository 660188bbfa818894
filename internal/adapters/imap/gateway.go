// Package imap implements the mail collaborator over IMAP.
package imap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/core"
)

// Gateway implements core.MailGateway over go-imap v2. Each operation
// dials a fresh connection; the pipeline's batch cadence makes
// connection reuse not worth the state tracking.
type Gateway struct {
	host     string
	port     string
	username string
	password string
	tls      bool
	folder   string
	logger   *zap.Logger
}

// NewGateway creates a new IMAP mail gateway. folder is the mailbox
// operations select by default (usually INBOX).
func NewGateway(host, port, username, password string, tls bool, folder string, logger *zap.Logger) *Gateway {
	if folder == "" {
		folder = "INBOX"
	}
	return &Gateway{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
		folder:   folder,
		logger:   logger,
	}
}

// connect dials and authenticates. The caller must Logout the returned
// client.
func (g *Gateway) connect(_ context.Context) (*imapclient.Client, error) {
	addr := g.host + ":" + g.port

	var client *imapclient.Client
	var err error
	if g.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(g.username, g.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authentication failed for %s: %w", g.username, err)
	}

	return client, nil
}

// FetchEmails selects the folder, searches for matching messages, and
// returns them with parsed plain-text bodies.
func (g *Gateway) FetchEmails(ctx context.Context, folder string, filter core.MailFilter) ([]core.Email, error) {
	if folder == "" {
		folder = g.folder
	}

	client, err := g.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", folder, err)
	}

	criteria := &imap.SearchCriteria{}
	if !filter.Since.IsZero() {
		criteria.Since = filter.Since
	}
	if filter.UnreadOnly {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if filter.Limit > 0 && len(uids) > filter.Limit {
		uids = uids[len(uids)-filter.Limit:]
	}

	uidSet := imap.UIDSetNum(uids...)
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)

	var emails []core.Email
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			g.logger.Warn("Skipping uncollectable message", zap.Error(err))
			continue
		}

		email := g.emailFromBuffer(buf, folder)
		if raw := buf.FindBodySection(bodySection); raw != nil {
			email.Body = extractTextBody(raw)
		}
		emails = append(emails, email)
	}

	if err := fetchCmd.Close(); err != nil {
		return emails, fmt.Errorf("fetching messages: %w", err)
	}

	g.logger.Debug("Fetched emails",
		zap.String("folder", folder),
		zap.Int("count", len(emails)))
	return emails, nil
}

// MoveEmail moves a message out of the gateway's folder.
func (g *Gateway) MoveEmail(ctx context.Context, id string, targetFolder string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}

	client, err := g.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(g.folder, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", g.folder, err)
	}

	uidSet := imap.UIDSetNum(uid)
	if _, err := client.Move(uidSet, targetFolder).Wait(); err != nil {
		return fmt.Errorf("moving message %s to %s: %w", id, targetFolder, err)
	}
	return nil
}

// MarkRead adds the \Seen flag to a message.
func (g *Gateway) MarkRead(ctx context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}

	client, err := g.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(g.folder, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", g.folder, err)
	}

	uidSet := imap.UIDSetNum(uid)
	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	return storeCmd.Close()
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q: %w", id, err)
	}
	return imap.UID(n), nil
}

// emailFromBuffer maps envelope data onto the core Email. The message
// ID header doubles as the thread identifier; replies carrying the
// same conversation land on the same thread via the subject+sender
// merge path instead.
func (g *Gateway) emailFromBuffer(buf *imapclient.FetchMessageBuffer, folder string) core.Email {
	email := core.Email{
		ID:     strconv.FormatUint(uint64(buf.UID), 10),
		Folder: folder,
	}

	if buf.Envelope != nil {
		email.Subject = buf.Envelope.Subject
		email.ReceivedAt = buf.Envelope.Date
		email.ThreadID = buf.Envelope.MessageID
		if len(buf.Envelope.From) > 0 {
			email.From = buf.Envelope.From[0].Addr()
		}
	}
	return email
}

// extractTextBody parses a raw RFC 2822 message and returns its
// text/plain part, falling back to the raw bytes when MIME parsing
// fails.
func extractTextBody(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	defer mr.Close()

	var textBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		if !strings.HasPrefix(contentType, "text/plain") {
			continue
		}
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}
		textBody = string(body)
	}
	return textBody
}
