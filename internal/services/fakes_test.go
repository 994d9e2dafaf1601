package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/campusportal/transport-backend/internal/database"
	"github.com/campusportal/transport-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// memStore is an in-memory stand-in for the transport tables. Transactions
// are serialized by txMu and roll back by restoring a snapshot. With
// concurrentTx set they run side by side and only the FOR UPDATE row locks,
// held until the transaction ends, order them; rollback is then unsafe, so
// that mode is for tests without injected failures.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	concurrentTx bool
	// txGate, when set, holds new transactions until n of them have started
	txGate   *memGate
	rowLocks map[uuid.UUID]*sync.Mutex

	requests     map[uuid.UUID]models.SubscriptionRequest
	subs         map[uuid.UUID]models.Subscription
	reservations map[uuid.UUID]models.SeatReservation
	slots        map[uuid.UUID]models.ScheduleSlot
	routes       map[uuid.UUID]models.TransportRoute
	plans        map[uuid.UUID]models.TransportPlan
	settings     *models.TransportSettings
	audit        []models.AuditLog

	// failure injection
	createRequestErr error
	markApprovedErr  error
	reserveErr       error
	slotLocks        int
}

type memSnapshot struct {
	requests     map[uuid.UUID]models.SubscriptionRequest
	subs         map[uuid.UUID]models.Subscription
	reservations map[uuid.UUID]models.SeatReservation
}

func newMemStore() *memStore {
	settings := models.DefaultTransportSettings()
	return &memStore{
		requests:     map[uuid.UUID]models.SubscriptionRequest{},
		subs:         map[uuid.UUID]models.Subscription{},
		reservations: map[uuid.UUID]models.SeatReservation{},
		slots:        map[uuid.UUID]models.ScheduleSlot{},
		routes:       map[uuid.UUID]models.TransportRoute{},
		plans:        map[uuid.UUID]models.TransportPlan{},
		settings:     &settings,
	}
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		requests:     make(map[uuid.UUID]models.SubscriptionRequest, len(s.requests)),
		subs:         make(map[uuid.UUID]models.Subscription, len(s.subs)),
		reservations: make(map[uuid.UUID]models.SeatReservation, len(s.reservations)),
	}
	for k, v := range s.requests {
		snap.requests[k] = v
	}
	for k, v := range s.subs {
		snap.subs[k] = v
	}
	for k, v := range s.reservations {
		snap.reservations[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = snap.requests
	s.subs = snap.subs
	s.reservations = snap.reservations
}

type memTxKey struct{}

// memTxState tracks the row locks a transaction holds
type memTxState struct {
	locks []*sync.Mutex
}

func (st *memTxState) release() {
	for i := len(st.locks) - 1; i >= 0; i-- {
		st.locks[i].Unlock()
	}
	st.locks = nil
}

// memGate releases the first n arrivals together; later ones pass through
type memGate struct {
	mu      sync.Mutex
	waiting int
	open    chan struct{}
}

func newMemGate(n int) *memGate {
	return &memGate{waiting: n, open: make(chan struct{})}
}

func (g *memGate) arrive() {
	g.mu.Lock()
	if g.waiting == 0 {
		g.mu.Unlock()
		return
	}
	g.waiting--
	if g.waiting == 0 {
		close(g.open)
	}
	g.mu.Unlock()
	<-g.open
}

type memTx struct{ store *memStore }

func (t memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	if !t.store.concurrentTx {
		t.store.txMu.Lock()
		defer t.store.txMu.Unlock()
	}

	state := &memTxState{}
	defer state.release()

	if gate := t.store.txGate; gate != nil {
		gate.arrive()
	}

	snap := t.store.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, state)); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// lockRow takes the row lock for id until the surrounding transaction ends.
// Outside a transaction it does nothing, like a FOR UPDATE in autocommit.
func (s *memStore) lockRow(ctx context.Context, id uuid.UUID) {
	state, ok := ctx.Value(memTxKey{}).(*memTxState)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.rowLocks == nil {
		s.rowLocks = map[uuid.UUID]*sync.Mutex{}
	}
	m, ok := s.rowLocks[id]
	if !ok {
		m = &sync.Mutex{}
		s.rowLocks[id] = m
	}
	s.mu.Unlock()

	for _, held := range state.locks {
		if held == m {
			return
		}
	}
	m.Lock()
	state.locks = append(state.locks, m)
}

type memRequests struct{ s *memStore }

func (r memRequests) Create(_ context.Context, req *models.SubscriptionRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createRequestErr != nil {
		return r.s.createRequestErr
	}
	for _, existing := range r.s.requests {
		if existing.UserID == req.UserID && existing.Status == models.RequestStatusPending {
			return database.ErrPendingRequestExists
		}
	}
	r.s.requests[req.ID] = *req
	return nil
}

func (r memRequests) GetByID(_ context.Context, id uuid.UUID) (*models.SubscriptionRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r memRequests) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.SubscriptionRequest, error) {
	r.s.lockRow(ctx, id)
	return r.GetByID(ctx, id)
}

func (r memRequests) HasPending(_ context.Context, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, req := range r.s.requests {
		if req.UserID == userID && req.Status == models.RequestStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r memRequests) update(id uuid.UUID, cond func(models.SubscriptionRequest) bool, apply func(*models.SubscriptionRequest)) bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok || !cond(req) {
		return false
	}
	apply(&req)
	r.s.requests[id] = req
	return true
}

func reviewable(req models.SubscriptionRequest) bool {
	return req.Status == models.RequestStatusPending &&
		(req.PaymentStatus == models.PaymentStatusPending || req.PaymentStatus == models.PaymentStatusFlagged)
}

func (r memRequests) MarkPaymentVerified(_ context.Context, id, adminID uuid.UUID, at time.Time) (bool, error) {
	return r.update(id, reviewable, func(req *models.SubscriptionRequest) {
		req.PaymentStatus = models.PaymentStatusVerified
		req.FlagReason = nil
		req.VerifiedBy = &adminID
		req.VerifiedAt = &at
		req.UpdatedAt = at
	}), nil
}

func (r memRequests) MarkPaymentFlagged(_ context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	pending := func(req models.SubscriptionRequest) bool { return req.Status == models.RequestStatusPending }
	return r.update(id, pending, func(req *models.SubscriptionRequest) {
		req.PaymentStatus = models.PaymentStatusFlagged
		req.FlagReason = &reason
		req.VerifiedBy = nil
		req.VerifiedAt = nil
		req.UpdatedAt = at
	}), nil
}

func (r memRequests) ReplaceProof(_ context.Context, id, userID uuid.UUID, proofPath string, at time.Time) (bool, error) {
	return r.update(id, func(req models.SubscriptionRequest) bool {
		return req.UserID == userID && req.Status == models.RequestStatusPending && req.PaymentStatus == models.PaymentStatusFlagged
	}, func(req *models.SubscriptionRequest) {
		req.ProofPath = proofPath
		req.PaymentStatus = models.PaymentStatusPending
		req.FlagReason = nil
		req.UpdatedAt = at
	}), nil
}

func (r memRequests) MarkApproved(_ context.Context, id, adminID uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	err := r.s.markApprovedErr
	r.s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return r.update(id, func(req models.SubscriptionRequest) bool {
		return req.Status == models.RequestStatusPending && req.PaymentStatus == models.PaymentStatusVerified
	}, func(req *models.SubscriptionRequest) {
		req.Status = models.RequestStatusApproved
		req.ProcessedBy = &adminID
		req.ProcessedAt = &at
		req.UpdatedAt = at
	}), nil
}

func (r memRequests) MarkRejected(_ context.Context, id, adminID uuid.UUID, reason string, at time.Time) (bool, error) {
	return r.update(id, func(req models.SubscriptionRequest) bool {
		return req.Status == models.RequestStatusPending
	}, func(req *models.SubscriptionRequest) {
		req.Status = models.RequestStatusRejected
		req.RejectionReason = &reason
		req.ProcessedBy = &adminID
		req.ProcessedAt = &at
		req.UpdatedAt = at
	}), nil
}

func (r memRequests) BulkReject(ctx context.Context, ids []uuid.UUID, adminID uuid.UUID, reason string, at time.Time) ([]models.ProcessedRequest, error) {
	var out []models.ProcessedRequest
	for _, id := range ids {
		ok, _ := r.MarkRejected(ctx, id, adminID, reason, at)
		if ok {
			req, _ := r.GetByID(ctx, id)
			out = append(out, models.ProcessedRequest{ID: id, UserID: req.UserID})
		}
	}
	return out, nil
}

func (r memRequests) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.SubscriptionRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.SubscriptionRequest
	for _, req := range r.s.requests {
		if req.UserID == userID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r memRequests) List(_ context.Context, filter models.RequestFilter) ([]models.SubscriptionRequest, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.SubscriptionRequest
	for _, req := range r.s.requests {
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		if filter.PaymentStatus != nil && req.PaymentStatus != *filter.PaymentStatus {
			continue
		}
		out = append(out, req)
	}
	return page(out, filter.Limit, filter.Offset), len(out), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type memSubscriptions struct{ s *memStore }

func (r memSubscriptions) Create(_ context.Context, sub *models.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.subs {
		if existing.RequestID == sub.RequestID {
			return errors.New("duplicate subscription for request")
		}
	}
	sub.CreatedAt = sub.ApprovedAt
	sub.UpdatedAt = sub.ApprovedAt
	r.s.subs[sub.ID] = *sub
	return nil
}

func (r memSubscriptions) GetByID(_ context.Context, id uuid.UUID) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subs[id]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (r memSubscriptions) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	r.s.lockRow(ctx, id)
	return r.GetByID(ctx, id)
}

func (r memSubscriptions) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.SubscriptionStatus, actorID *uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subs[id]
	if !ok || sub.Status != from {
		return false, nil
	}
	sub.Status = to
	sub.UpdatedAt = at
	if to == models.SubscriptionStatusCancelled {
		sub.CancelledAt = &at
		sub.CancelledBy = actorID
	}
	r.s.subs[id] = sub
	return true, nil
}

func (r memSubscriptions) ListOpenByUser(_ context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.s.subs {
		if sub.UserID == userID && sub.Status.IsOpen() {
			out = append(out, sub)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Status == models.SubscriptionStatusActive && out[j].Status != models.SubscriptionStatusActive
	})
	return out, nil
}

func (r memSubscriptions) ListDueForExpiry(_ context.Context, today time.Time) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []uuid.UUID
	for _, sub := range r.s.subs {
		if sub.Status.IsOpen() && sub.EndDate.Before(today) {
			out = append(out, sub.ID)
		}
	}
	return out, nil
}

func (r memSubscriptions) ListManifest(_ context.Context, slotID uuid.UUID) ([]models.ManifestEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.ManifestEntry
	for _, res := range r.s.reservations {
		if res.SlotID != slotID || res.ReleasedAt != nil {
			continue
		}
		sub := r.s.subs[res.SubscriptionID]
		out = append(out, models.ManifestEntry{
			SubscriptionID: sub.ID,
			ReservationID:  res.ID,
			UserID:         sub.UserID,
			Status:         sub.Status,
			StartDate:      sub.StartDate,
			EndDate:        sub.EndDate,
			ReservedAt:     res.ReservedAt,
		})
	}
	return out, nil
}

type memReservations struct{ s *memStore }

func (r memReservations) CountActive(_ context.Context, slotID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	n := r.s.countActiveLocked(slotID)
	r.s.mu.Unlock()
	// let other transactions run between the count and the insert
	runtime.Gosched()
	return n, nil
}

func (s *memStore) countActiveLocked(slotID uuid.UUID) int {
	n := 0
	for _, res := range s.reservations {
		if res.SlotID == slotID && res.ReleasedAt == nil {
			n++
		}
	}
	return n
}

func (r memReservations) Create(_ context.Context, reservation *models.SeatReservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.reserveErr != nil {
		return r.s.reserveErr
	}
	if _, ok := r.s.subs[reservation.SubscriptionID]; !ok {
		return fmt.Errorf("subscription %s does not exist", reservation.SubscriptionID)
	}
	for _, existing := range r.s.reservations {
		if existing.SubscriptionID == reservation.SubscriptionID {
			return errors.New("duplicate reservation for subscription")
		}
	}
	r.s.reservations[reservation.ID] = *reservation
	return nil
}

func (r memReservations) GetActiveBySubscription(_ context.Context, subscriptionID uuid.UUID) (*models.SeatReservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, res := range r.s.reservations {
		if res.SubscriptionID == subscriptionID && res.ReleasedAt == nil {
			return &res, nil
		}
	}
	return nil, nil
}

func (r memReservations) Release(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok || res.ReleasedAt != nil {
		return false, nil
	}
	res.ReleasedAt = &at
	r.s.reservations[id] = res
	return true, nil
}

type memSlots struct{ s *memStore }

func (r memSlots) GetByID(_ context.Context, id uuid.UUID) (*models.ScheduleSlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.slots[id]
	if !ok {
		return nil, nil
	}
	return &slot, nil
}

func (r memSlots) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ScheduleSlot, error) {
	r.s.lockRow(ctx, id)
	r.s.mu.Lock()
	r.s.slotLocks++
	r.s.mu.Unlock()
	return r.GetByID(ctx, id)
}

func (r memSlots) ListAvailabilityByRoute(_ context.Context, routeID uuid.UUID) ([]models.SlotAvailability, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.SlotAvailability
	for _, slot := range r.s.slots {
		if slot.RouteID != routeID || !slot.IsActive {
			continue
		}
		out = append(out, models.SlotAvailability{
			ScheduleSlot:       slot,
			ActiveReservations: r.s.countActiveLocked(slot.ID),
		})
	}
	return out, nil
}

type memCatalog struct{ s *memStore }

func (r memCatalog) GetRoute(_ context.Context, id uuid.UUID) (*models.TransportRoute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	route, ok := r.s.routes[id]
	if !ok || !route.IsActive {
		return nil, nil
	}
	return &route, nil
}

func (r memCatalog) GetPlan(_ context.Context, id uuid.UUID) (*models.TransportPlan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	plan, ok := r.s.plans[id]
	if !ok {
		return nil, nil
	}
	return &plan, nil
}

func (r memCatalog) GetSettings(_ context.Context) (*models.TransportSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.settings == nil {
		return nil, nil
	}
	settings := *r.s.settings
	return &settings, nil
}

type memAuditRepo struct{ s *memStore }

func (r memAuditRepo) Insert(_ context.Context, entry *models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.ID = int64(len(r.s.audit) + 1)
	r.s.audit = append(r.s.audit, *entry)
	return nil
}

func (r memAuditRepo) ListByEntity(_ context.Context, entityType string, entityID uuid.UUID, limit int) ([]models.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.AuditLog
	for _, entry := range r.s.audit {
		if entry.EntityType != nil && *entry.EntityType == entityType && entry.EntityID != nil && *entry.EntityID == entityID {
			out = append(out, entry)
		}
	}
	return page(out, limit, 0), nil
}

type memProofs struct {
	mu       sync.Mutex
	files    map[string][]byte
	deleted  []string
	storeErr error
}

func newMemProofs() *memProofs {
	return &memProofs{files: map[string][]byte{}}
}

func (p *memProofs) Store(_ context.Context, ownerID uuid.UUID, file models.ProofUpload) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.storeErr != nil {
		return "", p.storeErr
	}
	data, err := io.ReadAll(file.Content)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("%s/%s-%s", ownerID, uuid.NewString(), file.Filename)
	p.files[path] = data
	return path, nil
}

func (p *memProofs) Exists(_ context.Context, path string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.files[path]
	return ok, nil
}

func (p *memProofs) Delete(_ context.Context, path string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.files[path]; !ok {
		return false, nil
	}
	delete(p.files, path)
	p.deleted = append(p.deleted, path)
	return true, nil
}

func (p *memProofs) Open(_ context.Context, path string) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.files[path]
	if !ok {
		return nil, errors.New("proof not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (p *memProofs) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.files)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) kinds() []models.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NotificationKind, 0, len(n.sent))
	for _, msg := range n.sent {
		out = append(out, msg.Kind)
	}
	return out
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fixture wires a RequestWorkflow over memStore with one route, one
// three-day monthly plan and one slot
type fixture struct {
	store    *memStore
	proofs   *memProofs
	notifier *recordingNotifier
	clock    *fixedClock
	logHook  *test.Hook
	workflow *RequestWorkflow
	query    *TransportQueryService
	audit    *AuditService

	route uuid.UUID
	plan  uuid.UUID
	slot  uuid.UUID
	admin uuid.UUID
}

var fixtureNow = time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, slotCapacity int) *fixture {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	store := newMemStore()
	f := &fixture{
		store:    store,
		proofs:   newMemProofs(),
		notifier: &recordingNotifier{},
		clock:    &fixedClock{now: fixtureNow},
		logHook:  hook,
		route:    uuid.New(),
		plan:     uuid.New(),
		slot:     uuid.New(),
		admin:    uuid.New(),
	}

	monthly := decimal.NewFromInt(10)
	term := decimal.NewFromInt(20)
	store.routes[f.route] = models.TransportRoute{
		ID:                     f.route,
		NameEn:                 "Nasr City",
		PriceOneWay:            decimal.NewFromInt(25),
		MonthlyDiscountPercent: &monthly,
		TermDiscountPercent:    &term,
		IsActive:               true,
	}
	store.plans[f.plan] = models.TransportPlan{
		ID:                 f.plan,
		NameEn:             "3 days",
		PlanType:           models.PlanTypeMonthly,
		AllowedDaysPerWeek: 3,
		IsActive:           true,
	}
	store.slots[f.slot] = models.ScheduleSlot{
		ID:        f.slot,
		RouteID:   f.route,
		DayOfWeek: 6,
		Direction: models.DirectionToCampus,
		Time:      "07:30:00",
		Capacity:  slotCapacity,
		IsActive:  true,
	}

	repos := struct {
		requests      memRequests
		subscriptions memSubscriptions
		reservations  memReservations
		slots         memSlots
		catalog       memCatalog
	}{memRequests{store}, memSubscriptions{store}, memReservations{store}, memSlots{store}, memCatalog{store}}

	f.audit = NewAuditService(memAuditRepo{store}, f.clock, logger)
	pricing := NewPricingService(repos.catalog)
	ledger := NewCapacityLedger(repos.slots, repos.reservations, f.clock, logger)

	f.workflow = NewRequestWorkflow(WorkflowDeps{
		Tx:            memTx{store},
		Requests:      repos.requests,
		Subscriptions: repos.subscriptions,
		Slots:         repos.slots,
		Catalog:       repos.catalog,
		Ledger:        ledger,
		Renewal:       NewRenewalPolicy(repos.subscriptions, f.clock),
		Pricing:       pricing,
		Proofs:        f.proofs,
		Notifier:      f.notifier,
		Audit:         f.audit,
		Clock:         f.clock,
		Logger:        logger,
	})
	f.query = NewTransportQueryService(repos.requests, repos.subscriptions, repos.reservations, repos.slots, pricing, f.proofs, f.audit)

	return f
}

func proofUpload() models.ProofUpload {
	return models.ProofUpload{
		Filename:    "receipt.png",
		ContentType: "image/png",
		Size:        4,
		Content:     bytes.NewReader([]byte("\x89PNG")),
	}
}

func (f *fixture) submitCommand(userID uuid.UUID, withSlot bool) SubmitCommand {
	cmd := SubmitCommand{
		UserID:       userID,
		RouteID:      f.route,
		PlanID:       &f.plan,
		PlanType:     models.PlanTypeMonthly,
		SelectedDays: []models.Weekday{models.WeekdaySaturday, models.WeekdayMonday, models.WeekdayWednesday},
		AmountPaid:   decimal.RequireFromString("540.00"),
		Proof:        proofUpload(),
	}
	if withSlot {
		slot := f.slot
		cmd.SlotID = &slot
	}
	return cmd
}

// verifiedRequest submits a request for a new user and verifies its payment
func (f *fixture) verifiedRequest(t *testing.T, withSlot bool) *models.SubscriptionRequest {
	t.Helper()
	req, err := f.workflow.Submit(context.Background(), f.submitCommand(uuid.New(), withSlot))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := f.workflow.VerifyPayment(context.Background(), req.ID, f.admin); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	return req
}

func (f *fixture) request(id uuid.UUID) models.SubscriptionRequest {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.requests[id]
}

func (f *fixture) subscriptionFor(requestID uuid.UUID) (models.Subscription, bool) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, sub := range f.store.subs {
		if sub.RequestID == requestID {
			return sub, true
		}
	}
	return models.Subscription{}, false
}

func (f *fixture) activeReservations() int {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.countActiveLocked(f.slot)
}

func (f *fixture) auditActions() []string {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	out := make([]string, 0, len(f.store.audit))
	for _, entry := range f.store.audit {
		out = append(out, entry.Action)
	}
	return out
}

func (f *fixture) addSubscription(userID uuid.UUID, status models.SubscriptionStatus, endDate time.Time) models.Subscription {
	sub := models.Subscription{
		ID:        uuid.New(),
		RequestID: uuid.New(),
		UserID:    userID,
		RouteID:   f.route,
		PlanType:  models.PlanTypeMonthly,
		Status:    status,
		StartDate: endDate.AddDate(0, 0, -27),
		EndDate:   endDate,
	}
	f.store.mu.Lock()
	f.store.subs[sub.ID] = sub
	f.store.mu.Unlock()
	return sub
}

func (f *fixture) addReservation(subID uuid.UUID) models.SeatReservation {
	res := models.SeatReservation{ID: uuid.New(), SubscriptionID: subID, SlotID: f.slot, ReservedAt: fixtureNow}
	f.store.mu.Lock()
	f.store.reservations[res.ID] = res
	f.store.mu.Unlock()
	return res
}
