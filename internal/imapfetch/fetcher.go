package imapfetch

import (
	"context"
	"time"

	"github.com/emersion/go-imap/v2"
	"go.uber.org/zap"

	"github.com/DevNectorFoods/Email-Automation/internal/decode"
	"github.com/DevNectorFoods/Email-Automation/internal/model"
)

// Fetcher opens one session per call against a single account and turns the
// account's inbox into Email candidates. Sessions are never shared between
// accounts or reused across calls.
type Fetcher struct {
	ioTimeout time.Duration
	decoder   *decode.Decoder
	logger    *zap.Logger
}

func NewFetcher(ioTimeout time.Duration, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		ioTimeout: ioTimeout,
		decoder:   decode.NewDecoder(logger),
		logger:    logger,
	}
}

// Stream fetches the newest messages from the account's inbox, at most limit
// of them when limit > 0. Connect, login and select failures abort the whole
// run with a TransportError; a failure on a single message is logged and that
// message is skipped.
func (f *Fetcher) Stream(ctx context.Context, account model.MailAccount, limit int) ([]*model.Email, error) {
	sess := NewSession(account, f.ioTimeout, f.logger)
	defer sess.Close()

	if err := f.openInbox(ctx, sess); err != nil {
		return nil, err
	}

	uids, err := sess.SearchUIDs(limit)
	if err != nil {
		return nil, err
	}

	candidates := make([]*model.Email, 0, len(uids))
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}
		candidate, err := f.fetchOne(sess, account, uid)
		if err != nil {
			f.logger.Warn("跳过无法读取的邮件",
				zap.String("account", account.Email),
				zap.Uint32("uid", uint32(uid)),
				zap.Error(err))
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// TestConnection authenticates and selects the inbox without fetching any
// content. Used to validate credentials before an account is persisted.
func (f *Fetcher) TestConnection(ctx context.Context, account model.MailAccount) error {
	sess := NewSession(account, f.ioTimeout, f.logger)
	defer sess.Close()
	return f.openInbox(ctx, sess)
}

// ReadFlags re-reads the \Seen flag for a set of UIDs in one session, without
// fetching bodies. The result maps UID to the current read state; UIDs the
// server no longer reports are absent from the map.
func (f *Fetcher) ReadFlags(ctx context.Context, account model.MailAccount, uids []uint32) (map[uint32]bool, error) {
	sess := NewSession(account, f.ioTimeout, f.logger)
	defer sess.Close()

	if err := f.openInbox(ctx, sess); err != nil {
		return nil, err
	}

	seen := make(map[uint32]bool, len(uids))
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return seen, err
		}
		flags, err := sess.FetchFlags(imap.UID(uid))
		if err != nil {
			f.logger.Warn("读取已读标志失败，跳过",
				zap.String("account", account.Email),
				zap.Uint32("uid", uid),
				zap.Error(err))
			continue
		}
		seen[uid] = hasSeen(flags)
	}
	return seen, nil
}

func (f *Fetcher) openInbox(ctx context.Context, sess *Session) error {
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	if err := sess.Login(); err != nil {
		return err
	}
	return sess.SelectInbox()
}

// fetchOne reads flags first, then the raw body, and decodes the payload
// locally into a candidate. Headers come from the decoder, not the server
// envelope, so broken encodings degrade the same way everywhere.
func (f *Fetcher) fetchOne(sess *Session, account model.MailAccount, uid imap.UID) (*model.Email, error) {
	flags, err := sess.FetchFlags(uid)
	if err != nil {
		return nil, err
	}
	raw, err := sess.FetchRaw(uid)
	if err != nil {
		return nil, err
	}

	decoded := f.decoder.Parse(raw)

	e := model.NewEmail(account.Email)
	e.UID = uint32(uid)
	e.Subject = decoded.Subject
	e.Sender = decoded.Sender
	e.Date = decoded.Date
	e.Body = decoded.Body
	e.RawData = raw
	e.MessageID = decoded.MessageID
	e.IsRead = hasSeen(flags)
	for k, v := range decoded.Metadata {
		e.Metadata[k] = v
	}
	return e, nil
}

func hasSeen(flags []imap.Flag) bool {
	for _, fl := range flags {
		if fl == imap.FlagSeen {
			return true
		}
	}
	return false
}
