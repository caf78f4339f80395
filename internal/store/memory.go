package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/store/schema"
)

// memoryStore is an in-memory Store used by unit tests and local development.
// Atomically runs fn against a deep copy of the state and swaps it in only on
// success, giving the same all-or-nothing commit semantics as the Postgres
// transaction.
type memoryStore struct {
	mu   sync.Mutex
	data *memData
	inTx bool
}

type memData struct {
	counters   map[string]uint64
	circles    map[uint64]schema.Circle
	deposits   []schema.DepositRecord
	penalties  []schema.PenaltyRecord
	payouts    []schema.PayoutRecord
	refunds    []schema.RefundRecord
	locks      []schema.MemberLock
	blocked    []schema.BlockedMember
	pseudonyms []schema.MemberPseudonym
	events     []schema.EventLog
	nextRowID  int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() Store {
	return &memoryStore{data: newMemData()}
}

func newMemData() *memData {
	return &memData{
		counters:  map[string]uint64{},
		circles:   map[uint64]schema.Circle{},
		nextRowID: 1,
	}
}

func (d *memData) clone() *memData {
	out := &memData{
		counters:   make(map[string]uint64, len(d.counters)),
		circles:    make(map[uint64]schema.Circle, len(d.circles)),
		deposits:   append([]schema.DepositRecord(nil), d.deposits...),
		penalties:  append([]schema.PenaltyRecord(nil), d.penalties...),
		payouts:    append([]schema.PayoutRecord(nil), d.payouts...),
		refunds:    append([]schema.RefundRecord(nil), d.refunds...),
		locks:      append([]schema.MemberLock(nil), d.locks...),
		blocked:    append([]schema.BlockedMember(nil), d.blocked...),
		pseudonyms: append([]schema.MemberPseudonym(nil), d.pseudonyms...),
		events:     append([]schema.EventLog(nil), d.events...),
		nextRowID:  d.nextRowID,
	}
	for k, v := range d.counters {
		out.counters[k] = v
	}
	for id, c := range d.circles {
		out.circles[id] = cloneCircle(c)
	}
	return out
}

func cloneCircle(c schema.Circle) schema.Circle {
	c.Members = append([]domain.Address(nil), c.Members...)
	c.PendingMembers = append([]domain.Address(nil), c.PendingMembers...)
	c.PayoutOrder = append([]domain.Address(nil), c.PayoutOrder...)
	c.MembersPaidThisCycle = append([]domain.Address(nil), c.MembersPaidThisCycle...)
	c.MembersLateThisCycle = append([]domain.Address(nil), c.MembersLateThisCycle...)
	c.PrivateMembers = append([]domain.Address(nil), c.PrivateMembers...)
	return c
}

// Atomically executes fn against a snapshot and commits it on success
func (s *memoryStore) Atomically(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &memoryStore{data: snapshot, inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

func (s *memoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// NextCircleID increments and returns the global circle counter
func (s *memoryStore) NextCircleID(ctx context.Context) (uint64, error) {
	return s.nextCounter(circleCounterKey)
}

// NextEventID increments and returns the per-circle event counter
func (s *memoryStore) NextEventID(ctx context.Context, circleID uint64) (uint64, error) {
	return s.nextCounter(fmt.Sprintf(eventCounterKeyFormat, circleID))
}

func (s *memoryStore) nextCounter(key string) (uint64, error) {
	defer s.lock()()

	next, err := domain.CheckedAdd(s.data.counters[key], 1)
	if err != nil {
		return 0, fmt.Errorf("counter %s overflow: %w", key, err)
	}
	s.data.counters[key] = next
	return next, nil
}

// GetCircle retrieves a circle by id
func (s *memoryStore) GetCircle(ctx context.Context, circleID uint64) (*schema.Circle, error) {
	defer s.lock()()

	c, ok := s.data.circles[circleID]
	if !ok {
		return nil, nil
	}
	c = cloneCircle(c)
	return &c, nil
}

// SaveCircle inserts or updates a circle record
func (s *memoryStore) SaveCircle(ctx context.Context, circle *schema.Circle) error {
	defer s.lock()()

	s.data.circles[circle.CircleID] = cloneCircle(*circle)
	return nil
}

// ListCircles retrieves circles ordered by id ascending
func (s *memoryStore) ListCircles(ctx context.Context, filter CircleFilter) ([]schema.Circle, error) {
	defer s.lock()()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	ids := make([]uint64, 0, len(s.data.circles))
	for id := range s.data.circles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []schema.Circle
	for _, id := range ids {
		if id <= filter.AfterID {
			continue
		}
		c := s.data.circles[id]
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.Creator != nil && c.CreatorAddress != *filter.Creator {
			continue
		}
		out = append(out, cloneCircle(c))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetDeposit retrieves the deposit for (circle, member, cycle)
func (s *memoryStore) GetDeposit(ctx context.Context, circleID uint64, member domain.Address, cycle uint32) (*schema.DepositRecord, error) {
	defer s.lock()()

	for i := range s.data.deposits {
		d := s.data.deposits[i]
		if d.CircleID == circleID && d.Member == member && d.Cycle == cycle {
			return &d, nil
		}
	}
	return nil, nil
}

// SaveDeposit appends a deposit record
func (s *memoryStore) SaveDeposit(ctx context.Context, deposit *schema.DepositRecord) error {
	defer s.lock()()

	for _, d := range s.data.deposits {
		if d.CircleID == deposit.CircleID && d.Member == deposit.Member && d.Cycle == deposit.Cycle {
			return fmt.Errorf("duplicate deposit for circle %d member %s cycle %d", d.CircleID, d.Member, d.Cycle)
		}
	}
	deposit.ID = s.data.nextRowID
	s.data.nextRowID++
	s.data.deposits = append(s.data.deposits, *deposit)
	return nil
}

// ListDepositsByCycle retrieves all deposits for one cycle of a circle
func (s *memoryStore) ListDepositsByCycle(ctx context.Context, circleID uint64, cycle uint32) ([]schema.DepositRecord, error) {
	defer s.lock()()

	var out []schema.DepositRecord
	for _, d := range s.data.deposits {
		if d.CircleID == circleID && d.Cycle == cycle {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListDepositsByMember retrieves one member's deposits in ascending cycle order
func (s *memoryStore) ListDepositsByMember(ctx context.Context, circleID uint64, member domain.Address) ([]schema.DepositRecord, error) {
	defer s.lock()()

	var out []schema.DepositRecord
	for _, d := range s.data.deposits {
		if d.CircleID == circleID && d.Member == member {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cycle < out[j].Cycle })
	return out, nil
}

// SavePenalty appends a penalty record
func (s *memoryStore) SavePenalty(ctx context.Context, penalty *schema.PenaltyRecord) error {
	defer s.lock()()

	penalty.ID = s.data.nextRowID
	s.data.nextRowID++
	s.data.penalties = append(s.data.penalties, *penalty)
	return nil
}

// ListPenalties retrieves penalties for a circle, optionally for one member
func (s *memoryStore) ListPenalties(ctx context.Context, circleID uint64, member *domain.Address) ([]schema.PenaltyRecord, error) {
	defer s.lock()()

	var out []schema.PenaltyRecord
	for _, p := range s.data.penalties {
		if p.CircleID != circleID {
			continue
		}
		if member != nil && p.Member != *member {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cycle < out[j].Cycle })
	return out, nil
}

// GetPayout retrieves the payout for (circle, cycle)
func (s *memoryStore) GetPayout(ctx context.Context, circleID uint64, cycle uint32) (*schema.PayoutRecord, error) {
	defer s.lock()()

	for i := range s.data.payouts {
		p := s.data.payouts[i]
		if p.CircleID == circleID && p.Cycle == cycle {
			return &p, nil
		}
	}
	return nil, nil
}

// SavePayout appends a payout record
func (s *memoryStore) SavePayout(ctx context.Context, payout *schema.PayoutRecord) error {
	defer s.lock()()

	for _, p := range s.data.payouts {
		if p.CircleID == payout.CircleID && p.Cycle == payout.Cycle {
			return fmt.Errorf("duplicate payout for circle %d cycle %d", p.CircleID, p.Cycle)
		}
	}
	payout.ID = s.data.nextRowID
	s.data.nextRowID++
	s.data.payouts = append(s.data.payouts, *payout)
	return nil
}

// ListPayouts retrieves a circle's payouts in ascending cycle order
func (s *memoryStore) ListPayouts(ctx context.Context, circleID uint64) ([]schema.PayoutRecord, error) {
	defer s.lock()()

	var out []schema.PayoutRecord
	for _, p := range s.data.payouts {
		if p.CircleID == circleID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cycle < out[j].Cycle })
	return out, nil
}

// GetMemberLock retrieves a member's join-deposit lock
func (s *memoryStore) GetMemberLock(ctx context.Context, circleID uint64, member domain.Address) (*schema.MemberLock, error) {
	defer s.lock()()

	for i := range s.data.locks {
		l := s.data.locks[i]
		if l.CircleID == circleID && l.Member == member {
			return &l, nil
		}
	}
	return nil, nil
}

// SaveMemberLock stores a join-deposit lock
func (s *memoryStore) SaveMemberLock(ctx context.Context, lock *schema.MemberLock) error {
	defer s.lock()()

	for _, l := range s.data.locks {
		if l.CircleID == lock.CircleID && l.Member == lock.Member {
			return fmt.Errorf("duplicate lock for circle %d member %s", l.CircleID, l.Member)
		}
	}
	lock.ID = s.data.nextRowID
	s.data.nextRowID++
	s.data.locks = append(s.data.locks, *lock)
	return nil
}

// DeleteMemberLock removes a join-deposit lock (refund or sweep)
func (s *memoryStore) DeleteMemberLock(ctx context.Context, circleID uint64, member domain.Address) error {
	defer s.lock()()

	out := s.data.locks[:0]
	for _, l := range s.data.locks {
		if l.CircleID == circleID && l.Member == member {
			continue
		}
		out = append(out, l)
	}
	s.data.locks = out
	return nil
}

// ListMemberLocks retrieves all outstanding locks of a circle
func (s *memoryStore) ListMemberLocks(ctx context.Context, circleID uint64) ([]schema.MemberLock, error) {
	defer s.lock()()

	var out []schema.MemberLock
	for _, l := range s.data.locks {
		if l.CircleID == circleID {
			out = append(out, l)
		}
	}
	return out, nil
}

// GetBlockedMember retrieves a member's block marker
func (s *memoryStore) GetBlockedMember(ctx context.Context, circleID uint64, member domain.Address) (*schema.BlockedMember, error) {
	defer s.lock()()

	for i := range s.data.blocked {
		b := s.data.blocked[i]
		if b.CircleID == circleID && b.Member == member {
			return &b, nil
		}
	}
	return nil, nil
}

// SaveBlockedMember stores a block marker
func (s *memoryStore) SaveBlockedMember(ctx context.Context, blocked *schema.BlockedMember) error {
	defer s.lock()()

	for _, b := range s.data.blocked {
		if b.CircleID == blocked.CircleID && b.Member == blocked.Member {
			return fmt.Errorf("duplicate block for circle %d member %s", b.CircleID, b.Member)
		}
	}
	blocked.ID = s.data.nextRowID
	s.data.nextRowID++
	s.data.blocked = append(s.data.blocked, *blocked)
	return nil
}

// ListBlockedMembers retrieves all block markers of a circle
func (s *memoryStore) ListBlockedMembers(ctx context.Context, circleID uint64) ([]schema.BlockedMember, error) {
	defer s.lock()()

	var out []schema.BlockedMember
	for _, b := range s.data.blocked {
		if b.CircleID == circleID {
			out = append(out, b)
		}
	}
	return out, nil
}

// UpsertPseudonym creates or replaces a member's pseudonym
func (s *memoryStore) UpsertPseudonym(ctx context.Context, pseudonym *schema.MemberPseudonym) error {
	defer s.lock()()

	for i := range s.data.pseudonyms {
		p := &s.data.pseudonyms[i]
		if p.CircleID == pseudonym.CircleID && p.Member == pseudonym.Member {
			p.Pseudonym = pseudonym.Pseudonym
			p.UpdatedAt = pseudonym.UpdatedAt
			return nil
		}
	}
	pseudonym.ID = s.data.nextRowID
	s.data.nextRowID++
	s.data.pseudonyms = append(s.data.pseudonyms, *pseudonym)
	return nil
}

// ListPseudonyms retrieves all pseudonyms of a circle
func (s *memoryStore) ListPseudonyms(ctx context.Context, circleID uint64) ([]schema.MemberPseudonym, error) {
	defer s.lock()()

	var out []schema.MemberPseudonym
	for _, p := range s.data.pseudonyms {
		if p.CircleID == circleID {
			out = append(out, p)
		}
	}
	return out, nil
}

// SaveRefund appends a refund record
func (s *memoryStore) SaveRefund(ctx context.Context, refund *schema.RefundRecord) error {
	defer s.lock()()

	refund.ID = s.data.nextRowID
	s.data.nextRowID++
	s.data.refunds = append(s.data.refunds, *refund)
	return nil
}

// ListRefunds retrieves all refund records of a circle
func (s *memoryStore) ListRefunds(ctx context.Context, circleID uint64) ([]schema.RefundRecord, error) {
	defer s.lock()()

	var out []schema.RefundRecord
	for _, r := range s.data.refunds {
		if r.CircleID == circleID {
			out = append(out, r)
		}
	}
	return out, nil
}

// AppendEvent appends an audit-trail entry
func (s *memoryStore) AppendEvent(ctx context.Context, event *schema.EventLog) error {
	defer s.lock()()

	event.ID = s.data.nextRowID
	s.data.nextRowID++
	s.data.events = append(s.data.events, *event)
	return nil
}

// ListEvents retrieves up to limit events, most recent first
func (s *memoryStore) ListEvents(ctx context.Context, circleID uint64, limit int) ([]schema.EventLog, error) {
	defer s.lock()()

	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	var out []schema.EventLog
	for _, e := range s.data.events {
		if e.CircleID == circleID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID > out[j].EventID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
