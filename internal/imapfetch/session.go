package imapfetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/DevNectorFoods/Email-Automation/internal/model"
)

// State 表示一次 IMAP 会话所处的生命周期阶段
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
	StateSelected
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateSelected:
		return "selected"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TransportError.Stage 的取值
const (
	StageDial   = "dial"
	StageLogin  = "login"
	StageSelect = "select"
	StageSearch = "search"
	StageFetch  = "fetch"
)

// ErrSessionState marks a session method called out of lifecycle order.
var ErrSessionState = errors.New("imap session state")

// TransportError is an account-level failure talking to the mail server.
// Stage tells the caller which step of the session broke.
type TransportError struct {
	Account string
	Stage   string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("imap %s failed for %s: %v", e.Stage, e.Account, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// deadlineConn 每次读写前都重置 deadline，任何一次 IMAP 往返都不会无限阻塞
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

// Session is one connection to one account's mailbox. Methods must be called
// in lifecycle order: Connect, Login, SelectInbox, then the fetch methods.
// Calling them out of order returns ErrSessionState.
type Session struct {
	account model.MailAccount
	timeout time.Duration
	logger  *zap.Logger

	client *imapclient.Client
	state  State
}

func NewSession(account model.MailAccount, ioTimeout time.Duration, logger *zap.Logger) *Session {
	return &Session{
		account: account,
		timeout: ioTimeout,
		logger:  logger,
		state:   StateDisconnected,
	}
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	return s.state
}

// Connect dials the account's IMAP endpoint, with TLS when the account asks
// for it. Every read and write on the connection carries an I/O deadline so
// a stalled server surfaces as a timeout instead of hanging the worker.
func (s *Session) Connect(ctx context.Context) error {
	if s.state != StateDisconnected {
		return fmt.Errorf("%w: connect while %s", ErrSessionState, s.state)
	}

	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.account.Addr())
	if err != nil {
		return &TransportError{Account: s.account.Email, Stage: StageDial, Err: err}
	}

	transport := net.Conn(&deadlineConn{Conn: conn, timeout: s.timeout})
	if s.account.SSL {
		transport = tls.Client(transport, &tls.Config{ServerName: s.account.IMAPServer})
	}

	s.client = imapclient.New(transport, nil)
	s.state = StateConnected
	return nil
}

// Login authenticates with the account's credentials.
func (s *Session) Login() error {
	if s.state != StateConnected {
		return fmt.Errorf("%w: login while %s", ErrSessionState, s.state)
	}
	if err := s.client.Login(s.account.Email, s.account.Password).Wait(); err != nil {
		return &TransportError{Account: s.account.Email, Stage: StageLogin, Err: err}
	}
	s.state = StateAuthenticated
	return nil
}

// SelectInbox opens INBOX for this session.
func (s *Session) SelectInbox() error {
	if s.state != StateAuthenticated {
		return fmt.Errorf("%w: select while %s", ErrSessionState, s.state)
	}
	if _, err := s.client.Select("INBOX", nil).Wait(); err != nil {
		return &TransportError{Account: s.account.Email, Stage: StageSelect, Err: err}
	}
	s.state = StateSelected
	return nil
}

// SearchUIDs lists every UID in the selected mailbox, oldest first. When
// limit > 0 only the most recent limit UIDs are kept.
func (s *Session) SearchUIDs(limit int) ([]imap.UID, error) {
	if s.state != StateSelected {
		return nil, fmt.Errorf("%w: search while %s", ErrSessionState, s.state)
	}
	data, err := s.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, &TransportError{Account: s.account.Email, Stage: StageSearch, Err: err}
	}
	uids := data.AllUIDs()
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}
	return uids, nil
}

// FetchFlags reads the flag set of one message without touching its body.
func (s *Session) FetchFlags(uid imap.UID) ([]imap.Flag, error) {
	if err := s.ensureStreaming(); err != nil {
		return nil, err
	}
	msgs, err := s.client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:   true,
		Flags: true,
	}).Collect()
	if err != nil {
		return nil, &TransportError{Account: s.account.Email, Stage: StageFetch, Err: err}
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("uid %d: no fetch response", uid)
	}
	return msgs[0].Flags, nil
}

// FetchRaw reads the complete RFC 5322 payload of one message. BODY.PEEK is
// used so the server never flips \Seen as a side effect of ingestion.
func (s *Session) FetchRaw(uid imap.UID) ([]byte, error) {
	if err := s.ensureStreaming(); err != nil {
		return nil, err
	}
	section := &imap.FetchItemBodySection{Peek: true}
	msgs, err := s.client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, &TransportError{Account: s.account.Email, Stage: StageFetch, Err: err}
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("uid %d: no fetch response", uid)
	}
	raw := msgs[0].FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("uid %d: server returned no body section", uid)
	}
	return raw, nil
}

func (s *Session) ensureStreaming() error {
	switch s.state {
	case StateSelected:
		s.state = StateStreaming
		return nil
	case StateStreaming:
		return nil
	default:
		return fmt.Errorf("%w: fetch while %s", ErrSessionState, s.state)
	}
}

// Close logs out and tears the connection down. Safe to call at any stage,
// including after a failed Connect.
func (s *Session) Close() {
	if s.client != nil {
		if err := s.client.Logout().Wait(); err != nil {
			_ = s.client.Close()
		}
		s.client = nil
	}
	s.state = StateClosed
}
