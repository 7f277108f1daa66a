package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/DevNectorFoods/Email-Automation/internal/categorize"
	"github.com/DevNectorFoods/Email-Automation/internal/identity"
	"github.com/DevNectorFoods/Email-Automation/internal/model"
	"github.com/DevNectorFoods/Email-Automation/internal/repository"
	"github.com/DevNectorFoods/Email-Automation/pkg/circuitbreaker"
	"github.com/DevNectorFoods/Email-Automation/pkg/secrets"
)

const (
	testSecretKey = "6368616e676520746869732070617373776f726420746f206120736563726574"
	testPlainPass = "imap-password"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeEmailStore struct {
	mu        sync.Mutex
	rows      map[string]*model.Email
	inserts   int
	updates   int
	findErr   error
	upsertErr error
}

func newFakeEmailStore() *fakeEmailStore {
	return &fakeEmailStore{rows: map[string]*model.Email{}}
}

func (f *fakeEmailStore) FindExisting(_ context.Context, accountEmail, messageID, contentHash string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return "", false, f.findErr
	}
	for id, e := range f.rows {
		if e.AccountEmail != accountEmail {
			continue
		}
		if messageID != "" && e.MessageID == messageID {
			return id, true, nil
		}
		if e.ContentHash == contentHash {
			return id, true, nil
		}
	}
	return "", false, nil
}

// Upsert mirrors the SQL upsert: insert or update is decided by id, and the
// update path only touches the refetch-refreshable columns.
func (f *fakeEmailStore) Upsert(_ context.Context, e *model.Email, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if stored, exists := f.rows[e.ID]; exists {
		stored.UID = e.UID
		stored.IsRead = e.IsRead
		stored.Category = e.Category
		stored.MainCategory = e.MainCategory
		stored.SubCategory = e.SubCategory
		stored.ContentHash = e.ContentHash
		stored.VerificationHash = e.VerificationHash
		stored.MessageID = e.MessageID
		f.updates++
		return nil
	}
	clone := *e
	f.rows[e.ID] = &clone
	f.inserts++
	return nil
}

func (f *fakeEmailStore) ListReadState(_ context.Context, accountEmail string) ([]repository.ReadState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	states := []repository.ReadState{}
	for id, e := range f.rows {
		if e.AccountEmail == accountEmail && e.UID != 0 {
			states = append(states, repository.ReadState{ID: id, UID: e.UID, IsRead: e.IsRead})
		}
	}
	return states, nil
}

func (f *fakeEmailStore) UpdateReadStatus(_ context.Context, id string, isRead bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rows[id]
	if !ok {
		return errors.New("email not found")
	}
	e.IsRead = isRead
	return nil
}

func (f *fakeEmailStore) single(t *testing.T) *model.Email {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rows) != 1 {
		t.Fatalf("expected exactly 1 stored email, got %d", len(f.rows))
	}
	for _, e := range f.rows {
		return e
	}
	return nil
}

type fakeFetcher struct {
	mu        sync.Mutex
	mail      map[string][]*model.Email
	streamErr map[string]error
	flags     map[string]map[uint32]bool
	flagsErr  map[string]error
	sawPlain  map[string]string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		mail:      map[string][]*model.Email{},
		streamErr: map[string]error{},
		flags:     map[string]map[uint32]bool{},
		flagsErr:  map[string]error{},
		sawPlain:  map[string]string{},
	}
}

// Stream hands out fresh copies so a refetch behaves like a real session
// rather than returning the previously mutated candidates.
func (f *fakeFetcher) Stream(_ context.Context, account model.MailAccount, limit int) ([]*model.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.streamErr[account.Email]; err != nil {
		return nil, err
	}
	f.sawPlain[account.Email] = account.Password

	src := f.mail[account.Email]
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]*model.Email, 0, len(src))
	for _, e := range src {
		clone := *e
		clone.Tags = append([]string{}, e.Tags...)
		clone.Metadata = map[string]string{}
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeFetcher) TestConnection(_ context.Context, account model.MailAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamErr[account.Email]
}

func (f *fakeFetcher) ReadFlags(_ context.Context, account model.MailAccount, uids []uint32) (map[uint32]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.flagsErr[account.Email]; err != nil {
		return nil, err
	}
	current := f.flags[account.Email]
	seen := map[uint32]bool{}
	for _, uid := range uids {
		if v, ok := current[uid]; ok {
			seen[uid] = v
		}
	}
	return seen, nil
}

// fakeGuard keeps SETNX semantics: first acquire wins, repeats are refused.
type fakeGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newFakeGuard() *fakeGuard { return &fakeGuard{keys: map[string]bool{}} }

func (g *fakeGuard) AcquireOnce(_ context.Context, accountEmail, verificationHash string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := accountEmail + ":" + verificationHash
	if g.keys[key] {
		return false
	}
	g.keys[key] = true
	return true
}

type fakeAccountStore struct {
	mu          sync.Mutex
	accounts    []model.MailAccount
	lastChecked map[string]time.Time
	markers     map[string]uint32
}

func newFakeAccountStore(accounts ...model.MailAccount) *fakeAccountStore {
	return &fakeAccountStore{
		accounts:    accounts,
		lastChecked: map[string]time.Time{},
		markers:     map[string]uint32{},
	}
}

func (f *fakeAccountStore) ListActive(_ context.Context) ([]model.MailAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.MailAccount{}
	for _, a := range f.accounts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccountStore) FindByEmail(_ context.Context, email string) (*model.MailAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == email {
			clone := a
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAccountStore) UpdateLastChecked(_ context.Context, email string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastChecked[email] = ts
	return nil
}

func (f *fakeAccountStore) UpdateFetchMarker(_ context.Context, email string, lastUID uint32, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markers[email] = lastUID
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) PublishWithContext(_ context.Context, routingKey string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.events...)
}

// ---------------------------------------------------------------------------
// fixture
// ---------------------------------------------------------------------------

type fixture struct {
	box       *secrets.Box
	store     *fakeEmailStore
	fetcher   *fakeFetcher
	guard     *fakeGuard
	accounts  *fakeAccountStore
	publisher *fakePublisher
	service   *Service
	scheduler *Scheduler
}

func newFixture(t *testing.T, emails ...string) *fixture {
	t.Helper()

	box, err := secrets.NewBox(testSecretKey)
	if err != nil {
		t.Fatal(err)
	}

	accounts := make([]model.MailAccount, 0, len(emails))
	for _, email := range emails {
		accounts = append(accounts, sealedAccount(t, box, email))
	}

	store := newFakeEmailStore()
	fetcher := newFakeFetcher()
	guard := newFakeGuard()
	accountStore := newFakeAccountStore(accounts...)
	publisher := &fakePublisher{}
	logger := zap.NewNop()

	service := NewService(
		fetcher,
		store,
		identity.NewResolver(store, logger),
		categorize.NewHierarchy(),
		guard,
		box,
		logger,
	)

	scheduler := NewScheduler(
		service,
		accountStore,
		circuitbreaker.NewBreakerSet(circuitbreaker.Config{FailureThreshold: 2, CoolDown: time.Hour}),
		publisher,
		SchedulerConfig{Interval: time.Minute, Workers: 2, FetchLimit: 50},
		logger,
	)

	return &fixture{
		box:       box,
		store:     store,
		fetcher:   fetcher,
		guard:     guard,
		accounts:  accountStore,
		publisher: publisher,
		service:   service,
		scheduler: scheduler,
	}
}

func sealedAccount(t *testing.T, box *secrets.Box, email string) model.MailAccount {
	t.Helper()
	sealed, err := box.Seal(testPlainPass)
	if err != nil {
		t.Fatal(err)
	}
	return model.MailAccount{
		Email:      email,
		Password:   sealed,
		IMAPServer: "imap.example.com",
		IMAPPort:   993,
		SSL:        true,
		IsActive:   true,
	}
}

func candidate(account string, uid uint32, messageID, subject, sender, body string) *model.Email {
	e := model.NewEmail(account)
	e.UID = uid
	e.MessageID = messageID
	e.Subject = subject
	e.Sender = sender
	e.Body = body
	e.Date = time.Date(2025, 8, 5, 10, 0, 0, 0, time.UTC)
	return e
}

// ---------------------------------------------------------------------------
// service tests
// ---------------------------------------------------------------------------

func TestIngestAccountPipeline(t *testing.T) {
	fx := newFixture(t, "a@example.com")
	fx.fetcher.mail["a@example.com"] = []*model.Email{
		candidate("a@example.com", 1, "m1@x", "Invoice #1234 due", "billing@vendor.com", "pay up"),
		candidate("a@example.com", 2, "m2@x", "Lunch?", "friend@people.example", "tomorrow?"),
	}

	account := sealedAccount(t, fx.box, "a@example.com")
	stats, err := fx.service.IngestAccount(context.Background(), account, 0)
	if err != nil {
		t.Fatalf("IngestAccount() error: %v", err)
	}

	if stats.Fetched != 2 || stats.New != 2 || stats.Updated != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.LastUID != 2 {
		t.Errorf("expected LastUID 2, got %d", stats.LastUID)
	}
	if fx.store.inserts != 2 {
		t.Errorf("expected 2 inserts, got %d", fx.store.inserts)
	}
	if got := fx.fetcher.sawPlain["a@example.com"]; got != testPlainPass {
		t.Errorf("fetcher must receive the opened credential, got %q", got)
	}

	for _, e := range fx.store.rows {
		if e.ID == "" || e.ContentHash == "" || e.VerificationHash == "" {
			t.Errorf("identity fields missing on %q", e.Subject)
		}
		if e.MainCategory == "" || e.SubCategory == "" {
			t.Errorf("category fields missing on %q", e.Subject)
		}
		if e.Category != e.MainCategory+"_"+e.SubCategory {
			t.Errorf("combined label mismatch: %q", e.Category)
		}
		if e.Subject == "Invoice #1234 due" && e.MainCategory != "billing" {
			t.Errorf("expected billing, got %q", e.MainCategory)
		}
	}
}

func TestIngestAccountBadSeal(t *testing.T) {
	fx := newFixture(t)
	account := model.MailAccount{Email: "a@example.com", Password: "not-a-sealed-token"}

	if _, err := fx.service.IngestAccount(context.Background(), account, 0); err == nil {
		t.Fatal("expected an error for an unopenable credential")
	}
}

func TestIngestAccountPersistenceErrorSkipsMessage(t *testing.T) {
	fx := newFixture(t, "a@example.com")
	fx.fetcher.mail["a@example.com"] = []*model.Email{
		candidate("a@example.com", 1, "m1@x", "hello", "x@y.example", "body"),
	}
	fx.store.upsertErr = errors.New("connection refused")

	account := sealedAccount(t, fx.box, "a@example.com")
	stats, err := fx.service.IngestAccount(context.Background(), account, 0)
	if err != nil {
		t.Fatalf("message-level failure must not fail the account: %v", err)
	}
	if stats.New != 0 || len(stats.Errors) != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if !strings.Contains(stats.Errors[0], "uid 1") {
		t.Errorf("error should name the message: %q", stats.Errors[0])
	}
}

func TestIngestAccountDedupFailsOpen(t *testing.T) {
	fx := newFixture(t, "a@example.com")
	fx.fetcher.mail["a@example.com"] = []*model.Email{
		candidate("a@example.com", 1, "m1@x", "hello", "x@y.example", "body"),
	}
	fx.store.findErr = errors.New("lookup unavailable")

	account := sealedAccount(t, fx.box, "a@example.com")
	stats, err := fx.service.IngestAccount(context.Background(), account, 0)
	if err != nil {
		t.Fatal(err)
	}
	if stats.New != 1 {
		t.Errorf("lookup failure must fail open as new, got %+v", stats)
	}
}

func TestGuardSuppressesConcurrentDuplicate(t *testing.T) {
	fx := newFixture(t, "a@example.com")
	fx.fetcher.mail["a@example.com"] = []*model.Email{
		candidate("a@example.com", 1, "m1@x", "hello", "x@y.example", "body"),
	}
	// 先占住闸，模拟另一轮已经在处理同一封
	fx.guard.AcquireOnce(context.Background(), "a@example.com",
		identity.VerificationHash(1,
			time.Date(2025, 8, 5, 10, 0, 0, 0, time.UTC),
			identity.ContentHash("hello", "x@y.example", time.Date(2025, 8, 5, 10, 0, 0, 0, time.UTC), 1)))

	account := sealedAccount(t, fx.box, "a@example.com")
	stats, err := fx.service.IngestAccount(context.Background(), account, 0)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Duplicates != 1 || stats.New != 0 {
		t.Errorf("expected the message to be suppressed as duplicate: %+v", stats)
	}
	if fx.store.inserts != 0 {
		t.Errorf("expected no insert, got %d", fx.store.inserts)
	}
}

func TestSyncReadStatusFlipsOnlyReadFlag(t *testing.T) {
	fx := newFixture(t, "a@example.com")
	fx.fetcher.mail["a@example.com"] = []*model.Email{
		candidate("a@example.com", 7, "m1@x", "hello", "x@y.example", "original body"),
	}

	account := sealedAccount(t, fx.box, "a@example.com")
	if _, err := fx.service.IngestAccount(context.Background(), account, 0); err != nil {
		t.Fatal(err)
	}

	stored := fx.store.single(t)
	if stored.IsRead {
		t.Fatal("precondition: stored message should be unread")
	}
	bodyBefore := stored.Body
	categoryBefore := stored.Category

	// 服务器端被用户读掉了
	fx.fetcher.flags["a@example.com"] = map[uint32]bool{7: true}

	flipped, err := fx.service.SyncReadStatus(context.Background(), account)
	if err != nil {
		t.Fatalf("SyncReadStatus() error: %v", err)
	}
	if flipped != 1 {
		t.Errorf("expected 1 flag flip, got %d", flipped)
	}

	stored = fx.store.single(t)
	if !stored.IsRead {
		t.Error("expected is_read to be true after sync")
	}
	if stored.Body != bodyBefore || stored.Category != categoryBefore {
		t.Error("sync must not touch body or category")
	}

	// 再跑一次应该没有任何变化
	flipped, err = fx.service.SyncReadStatus(context.Background(), account)
	if err != nil {
		t.Fatal(err)
	}
	if flipped != 0 {
		t.Errorf("second sync should be a no-op, flipped %d", flipped)
	}
}

func TestValidateAccountUsesTestConnection(t *testing.T) {
	fx := newFixture(t)
	account := model.MailAccount{Email: "probe@example.com", Password: "plain"}

	if err := fx.service.ValidateAccount(context.Background(), account); err != nil {
		t.Fatalf("ValidateAccount() error: %v", err)
	}

	fx.fetcher.streamErr["probe@example.com"] = errors.New("login refused")
	if err := fx.service.ValidateAccount(context.Background(), account); err == nil {
		t.Fatal("expected validation to fail")
	}
}
