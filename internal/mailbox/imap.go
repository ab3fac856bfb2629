// internal/mailbox/imap.go
package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/observability"
)

// previewLimit caps the preview in runes.
const previewLimit = 200

// IMAP is a mailbox backed by an IMAP server. Message ids are UIDs in the
// configured folder. One connection is kept open and re-established after a
// failure.
type IMAP struct {
	cfg    config.IMAPConfig
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	client *imapclient.Client
}

var _ Mailbox = (*IMAP)(nil)

// NewIMAP creates the backend; it connects on first use.
func NewIMAP(cfg config.MailboxConfig) *IMAP {
	imapCfg := cfg.IMAP
	if imapCfg.Folder == "" {
		imapCfg.Folder = "INBOX"
	}
	if imapCfg.Username == "" {
		imapCfg.Username = cfg.Identity
	}
	return &IMAP{
		cfg:    imapCfg,
		logger: observability.GetLogger().Named("mailbox.imap"),
		now:    time.Now,
	}
}

// connect returns the open client, dialing and logging in when needed.
// The caller must hold m.mu.
func (m *IMAP) connect() (*imapclient.Client, error) {
	if m.client != nil {
		return m.client, nil
	}
	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)

	var client *imapclient.Client
	var err error
	if m.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, transportError("connecting to IMAP "+addr, err)
	}

	if err := client.Login(m.cfg.Username, m.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{
			Provider: "imap",
			Message:  fmt.Sprintf("authentication failed for %s", m.cfg.Username),
			Err:      err,
		}
	}
	if _, err := client.Select(m.cfg.Folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", m.cfg.Folder, err)
	}

	m.logger.Debug("IMAP session established.", zap.String("addr", addr), zap.String("folder", m.cfg.Folder))
	m.client = client
	return client, nil
}

// drop discards the cached connection after an error. The caller must hold m.mu.
func (m *IMAP) drop() {
	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}
}

// Close logs out of the server.
func (m *IMAP) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Logout().Wait()
	m.client = nil
	return err
}

// searchCriteria translates a Query. IMAP SINCE has day granularity, so the
// freshness cutoff is enforced again by the caller.
func searchCriteria(q Query, now time.Time) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}
	if q.UnreadOnly {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}
	if q.Sender != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "From", Value: q.Sender})
	}
	if q.Subject != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{Key: "Subject", Value: q.Subject})
	}
	if q.NewerThanMinutes > 0 {
		criteria.Since = now.Add(-time.Duration(q.NewerThanMinutes) * time.Minute)
	}
	return criteria
}

func (m *IMAP) Search(ctx context.Context, q Query) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	client, err := m.connect()
	if err != nil {
		return nil, err
	}
	data, err := client.UIDSearch(searchCriteria(q, m.now()), nil).Wait()
	if err != nil {
		m.drop()
		return nil, transportError("searching messages", err)
	}
	return newestUIDs(data.AllUIDs(), q.MaxResults), nil
}

// newestUIDs orders UIDs newest first (highest UID) and applies the limit.
func newestUIDs(uids []imap.UID, limit int64) []string {
	uids = slices.Clone(uids)
	slices.SortFunc(uids, func(a, b imap.UID) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})
	if limit > 0 && int64(len(uids)) > limit {
		uids = uids[:limit]
	}
	ids := make([]string, len(uids))
	for i, uid := range uids {
		ids[i] = strconv.FormatUint(uint64(uid), 10)
	}
	return ids
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid IMAP message id %q", id)
	}
	return imap.UID(n), nil
}

func (m *IMAP) Fetch(ctx context.Context, id string) (Message, error) {
	uid, err := parseUID(id)
	if err != nil {
		return Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	client, err := m.connect()
	if err != nil {
		return Message{}, err
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		Envelope:     true,
		InternalDate: true,
		UID:          true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	data := fetchCmd.Next()
	if data == nil {
		if err := fetchCmd.Close(); err != nil {
			m.drop()
			return Message{}, transportError("fetching message "+id, err)
		}
		return Message{}, fmt.Errorf("message %s not found", id)
	}
	buf, err := data.Collect()
	if err != nil {
		return Message{}, fmt.Errorf("collecting message %s: %w", id, err)
	}

	msg := Message{ID: id, Timestamp: buf.InternalDate}
	if buf.Envelope != nil {
		msg.Subject = buf.Envelope.Subject
		if len(buf.Envelope.From) > 0 {
			msg.From = buf.Envelope.From[0].Addr()
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = buf.Envelope.Date
		}
	}
	if raw := buf.FindBodySection(bodySection); raw != nil {
		msg.Snippet = preview(raw)
	}
	return msg, nil
}

func (m *IMAP) MarkConsumed(ctx context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	client, err := m.connect()
	if err != nil {
		return err
	}
	storeCmd := client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		m.drop()
		return transportError("marking message "+id, err)
	}
	return nil
}

// preview extracts a short single-line text excerpt from a raw RFC 5322
// message, preferring text/plain and falling back to the text of text/html.
func preview(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return collapse(string(raw))
	}
	defer mr.Close()

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain") && plain == "":
			plain = string(body)
		case strings.HasPrefix(contentType, "text/html") && html == "":
			html = string(body)
		}
	}

	if plain != "" {
		return collapse(plain)
	}
	if html != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err == nil {
			doc.Find("script, style").Remove()
			return collapse(doc.Text())
		}
		return collapse(html)
	}
	return ""
}

// collapse joins the words of s with single spaces, keeping at most
// previewLimit runes. It stops before the first word that would not fit, so a
// code is never cut into a shorter digit run.
func collapse(s string) string {
	var b strings.Builder
	n := 0
	for _, word := range strings.Fields(s) {
		w := utf8.RuneCountInString(word)
		if n == 0 && w > previewLimit {
			b.WriteString(string([]rune(word)[:previewLimit]))
			break
		}
		if n > 0 {
			w++
		}
		if n+w > previewLimit {
			break
		}
		if n > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
		n += w
	}
	return b.String()
}
