package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/SubGate/app/models"
	"gorm.io/gorm"
)

// fakeStore is an in-memory Repository. LockPayment takes per-row locks on the
// payment and its subscription that are held until the transaction commits,
// the way FOR UPDATE serializes concurrent deliveries.
type fakeStore struct {
	mu     sync.Mutex
	rowsMu sync.Mutex
	rows   map[string]*sync.Mutex

	payments map[uint]models.Payment
	subs     map[uint]models.Subscription
	users    map[uint]models.User
	tariffs  map[uint]models.Tariff
	promos   map[uint]string

	logs       []models.PaymentLog
	deliveries []models.WebhookDelivery
	processed  map[uint]string
	flagWrites int

	findErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments:  map[uint]models.Payment{},
		subs:      map[uint]models.Subscription{},
		users:     map[uint]models.User{},
		tariffs:   map[uint]models.Tariff{},
		promos:    map[uint]string{},
		processed: map[uint]string{},
		rows:      map[string]*sync.Mutex{},
	}
}

func (f *fakeStore) row(key string) *sync.Mutex {
	f.rowsMu.Lock()
	defer f.rowsMu.Unlock()
	m, ok := f.rows[key]
	if !ok {
		m = &sync.Mutex{}
		f.rows[key] = m
	}
	return m
}

// graph returns a copy of the payment with its subscription, user and tariff.
// Callers hold mu.
func (f *fakeStore) graph(p models.Payment) *models.Payment {
	sub := f.subs[p.SubscriptionID]
	sub.User = f.users[sub.UserID]
	sub.Tariff = f.tariffs[sub.TariffID]
	p.Subscription = sub
	return &p
}

func (f *fakeStore) find(match func(p models.Payment) bool) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	ids := make([]int, 0, len(f.payments))
	for id := range f.payments {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		p := f.payments[uint(id)]
		if match(p) {
			return f.graph(p), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) FindByExternalOrInvoiceID(_ context.Context, ids []string) (*models.Payment, error) {
	return f.find(func(p models.Payment) bool {
		return contains(ids, p.ExternalID) || (p.ProviderData.InvoiceID != "" && contains(ids, p.ProviderData.InvoiceID))
	})
}

func (f *fakeStore) FindByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	return f.find(func(p models.Payment) bool { return p.ProviderData.OrderID == orderID })
}

func (f *fakeStore) FindByGatewayPaymentID(_ context.Context, id string) (*models.Payment, error) {
	return f.find(func(p models.Payment) bool { return p.ProviderData.PaymentID == id || p.ExternalID == id })
}

func (f *fakeStore) SaveProviderSnapshot(_ context.Context, paymentID uint, snap models.ProviderData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.ProviderData = p.ProviderData.Merge(snap)
	f.payments[paymentID] = p
	return nil
}

func (f *fakeStore) Transact(_ context.Context, fn func(tx TxRepository) error) error {
	tx := &fakeTx{store: f, payments: map[uint]models.Payment{}, subs: map[uint]models.Subscription{}}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range tx.payments {
		cur := f.payments[id]
		cur.Status, cur.PaidAt, cur.ErrorMessage = p.Status, p.PaidAt, p.ErrorMessage
		f.payments[id] = cur
	}
	for id, s := range tx.subs {
		cur := f.subs[id]
		cur.Status, cur.StartDate, cur.EndDate = s.Status, s.StartDate, s.EndDate
		f.subs[id] = cur
	}
	f.logs = append(f.logs, tx.logs...)
	return nil
}

func (f *fakeStore) UpdateAccessFlags(_ context.Context, subscriptionID uint, flags models.AccessFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.subs[subscriptionID]
	s.ApplyFlags(flags)
	f.subs[subscriptionID] = s
	f.flagWrites++
	return nil
}

func (f *fakeStore) AppendLog(_ context.Context, entry *models.PaymentLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeStore) RecordDelivery(_ context.Context, d *models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d.ID = uint(len(f.deliveries) + 1)
	f.deliveries = append(f.deliveries, *d)
	return nil
}

func (f *fakeStore) MarkDeliveryProcessed(_ context.Context, id uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[id] = processingError
	return nil
}

func (f *fakeStore) payment(id uint) models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.graph(f.payments[id])
}

func (f *fakeStore) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.logs))
	for _, l := range f.logs {
		out = append(out, l.Event)
	}
	return out
}

type fakeTx struct {
	store    *fakeStore
	payments map[uint]models.Payment
	subs     map[uint]models.Subscription
	logs     []models.PaymentLog
	held     []*sync.Mutex
}

func (t *fakeTx) lock(key string) {
	m := t.store.row(key)
	m.Lock()
	t.held = append(t.held, m)
}

func (t *fakeTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
}

func (t *fakeTx) LockPayment(id uint) (*models.Payment, error) {
	t.store.mu.Lock()
	p, ok := t.store.payments[id]
	t.store.mu.Unlock()
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	t.lock(fmt.Sprintf("payment:%d", id))
	t.lock(fmt.Sprintf("subscription:%d", p.SubscriptionID))

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.graph(t.store.payments[id]), nil
}

func (t *fakeTx) SavePayment(p *models.Payment) error {
	t.payments[p.ID] = *p
	return nil
}

func (t *fakeTx) SaveSubscription(s *models.Subscription) error {
	t.subs[s.ID] = *s
	return nil
}

func (t *fakeTx) PromoExtraDays(subscriptionID uint) (models.ExtraDays, error) {
	t.store.mu.Lock()
	raw, ok := t.store.promos[subscriptionID]
	t.store.mu.Unlock()
	if !ok {
		return models.ExtraDays{}, nil
	}
	return models.ParseExtraDays([]byte(raw))
}

func (t *fakeTx) AppendLog(entry *models.PaymentLog) error {
	t.logs = append(t.logs, *entry)
	return nil
}

type sentMessage struct {
	ChatID int64
	Text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *fakeSender) SendMessage(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (s *fakeSender) to(chatID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.sent {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeOperators []int64

func (o fakeOperators) OperatorChatIDs(context.Context) ([]int64, error) { return o, nil }

type grantCall struct {
	Subject string
	RoleID  string
	Welcome bool
}

type fakeGranter struct {
	mu    sync.Mutex
	calls []grantCall
	err   error
	block time.Duration
	panic bool
}

func (g *fakeGranter) record(ctx context.Context, c grantCall) error {
	if g.panic {
		panic("granter exploded")
	}
	if g.block > 0 {
		select {
		case <-time.After(g.block):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, c)
	return g.err
}

func (g *fakeGranter) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGranter) GrantChatRole(ctx context.Context, discordID, roleID string, welcome bool) error {
	return g.record(ctx, grantCall{Subject: discordID, RoleID: roleID, Welcome: welcome})
}

func (g *fakeGranter) GrantKnowledgeBaseAccess(ctx context.Context, email string, _, _ uint) error {
	return g.record(ctx, grantCall{Subject: email})
}

func (g *fakeGranter) GrantFileStorageAccess(ctx context.Context, email string, _, _ uint) error {
	return g.record(ctx, grantCall{Subject: email})
}

type fakeGateway struct {
	mu     sync.Mutex
	events map[string]*IPNEvent
	calls  int
	err    error
}

func (g *fakeGateway) FetchPaymentStatus(_ context.Context, id string) (*IPNEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	ev, ok := g.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *ev
	return &cp, nil
}
