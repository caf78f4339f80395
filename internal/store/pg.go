package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/store/schema"
)

const (
	circleCounterKey      = "circle_counter"
	eventCounterKeyFormat = "event_counter:%d"

	defaultListLimit = 30
	maxListLimit     = 100
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Migrate creates or updates the engine tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.Circle{},
		&schema.DepositRecord{},
		&schema.PenaltyRecord{},
		&schema.PayoutRecord{},
		&schema.RefundRecord{},
		&schema.MemberLock{},
		&schema.BlockedMember{},
		&schema.MemberPseudonym{},
		&schema.EventLog{},
		&schema.Counter{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to defaults: 20 open, 5 idle,
// 5m lifetime, 10m idle time.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// Atomically executes fn inside a single database transaction
func (s *pgStore) Atomically(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&pgStore{db: tx})
	})
}

func (s *pgStore) nextCounter(ctx context.Context, key string) (uint64, error) {
	var counter schema.Counter
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&counter).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("failed to load counter %s: %w", key, err)
		}
		counter = schema.Counter{Key: key, Value: 0}
	}

	next, err := domain.CheckedAdd(counter.Value, 1)
	if err != nil {
		return 0, fmt.Errorf("counter %s overflow: %w", key, err)
	}

	counter.Value = next
	if err := s.db.WithContext(ctx).Save(&counter).Error; err != nil {
		return 0, fmt.Errorf("failed to save counter %s: %w", key, err)
	}
	return next, nil
}

// NextCircleID increments and returns the global circle counter
func (s *pgStore) NextCircleID(ctx context.Context) (uint64, error) {
	return s.nextCounter(ctx, circleCounterKey)
}

// NextEventID increments and returns the per-circle event counter
func (s *pgStore) NextEventID(ctx context.Context, circleID uint64) (uint64, error) {
	return s.nextCounter(ctx, fmt.Sprintf(eventCounterKeyFormat, circleID))
}

// GetCircle retrieves a circle by id
func (s *pgStore) GetCircle(ctx context.Context, circleID uint64) (*schema.Circle, error) {
	var circle schema.Circle
	err := s.db.WithContext(ctx).Where("circle_id = ?", circleID).First(&circle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get circle: %w", err)
	}
	return &circle, nil
}

// SaveCircle inserts or updates a circle record
func (s *pgStore) SaveCircle(ctx context.Context, circle *schema.Circle) error {
	if err := s.db.WithContext(ctx).Save(circle).Error; err != nil {
		return fmt.Errorf("failed to save circle: %w", err)
	}
	return nil
}

// ListCircles retrieves circles ordered by id ascending
func (s *pgStore) ListCircles(ctx context.Context, filter CircleFilter) ([]schema.Circle, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := s.db.WithContext(ctx).Model(&schema.Circle{}).Order("circle_id ASC").Limit(limit)
	if filter.AfterID > 0 {
		query = query.Where("circle_id > ?", filter.AfterID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Creator != nil {
		query = query.Where("creator_address = ?", *filter.Creator)
	}

	var circles []schema.Circle
	if err := query.Find(&circles).Error; err != nil {
		return nil, fmt.Errorf("failed to list circles: %w", err)
	}
	return circles, nil
}

// GetDeposit retrieves the deposit for (circle, member, cycle)
func (s *pgStore) GetDeposit(ctx context.Context, circleID uint64, member domain.Address, cycle uint32) (*schema.DepositRecord, error) {
	var deposit schema.DepositRecord
	err := s.db.WithContext(ctx).
		Where("circle_id = ? AND member = ? AND cycle = ?", circleID, member, cycle).
		First(&deposit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return &deposit, nil
}

// SaveDeposit appends a deposit record
func (s *pgStore) SaveDeposit(ctx context.Context, deposit *schema.DepositRecord) error {
	if err := s.db.WithContext(ctx).Create(deposit).Error; err != nil {
		return fmt.Errorf("failed to save deposit: %w", err)
	}
	return nil
}

// ListDepositsByCycle retrieves all deposits for one cycle of a circle
func (s *pgStore) ListDepositsByCycle(ctx context.Context, circleID uint64, cycle uint32) ([]schema.DepositRecord, error) {
	var deposits []schema.DepositRecord
	err := s.db.WithContext(ctx).
		Where("circle_id = ? AND cycle = ?", circleID, cycle).
		Order("id ASC").
		Find(&deposits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle deposits: %w", err)
	}
	return deposits, nil
}

// ListDepositsByMember retrieves one member's deposits in ascending cycle order
func (s *pgStore) ListDepositsByMember(ctx context.Context, circleID uint64, member domain.Address) ([]schema.DepositRecord, error) {
	var deposits []schema.DepositRecord
	err := s.db.WithContext(ctx).
		Where("circle_id = ? AND member = ?", circleID, member).
		Order("cycle ASC").
		Find(&deposits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list member deposits: %w", err)
	}
	return deposits, nil
}

// SavePenalty appends a penalty record
func (s *pgStore) SavePenalty(ctx context.Context, penalty *schema.PenaltyRecord) error {
	if err := s.db.WithContext(ctx).Create(penalty).Error; err != nil {
		return fmt.Errorf("failed to save penalty: %w", err)
	}
	return nil
}

// ListPenalties retrieves penalties for a circle, optionally for one member
func (s *pgStore) ListPenalties(ctx context.Context, circleID uint64, member *domain.Address) ([]schema.PenaltyRecord, error) {
	query := s.db.WithContext(ctx).Where("circle_id = ?", circleID).Order("cycle ASC")
	if member != nil {
		query = query.Where("member = ?", *member)
	}

	var penalties []schema.PenaltyRecord
	if err := query.Find(&penalties).Error; err != nil {
		return nil, fmt.Errorf("failed to list penalties: %w", err)
	}
	return penalties, nil
}

// GetPayout retrieves the payout for (circle, cycle)
func (s *pgStore) GetPayout(ctx context.Context, circleID uint64, cycle uint32) (*schema.PayoutRecord, error) {
	var payout schema.PayoutRecord
	err := s.db.WithContext(ctx).
		Where("circle_id = ? AND cycle = ?", circleID, cycle).
		First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return &payout, nil
}

// SavePayout appends a payout record
func (s *pgStore) SavePayout(ctx context.Context, payout *schema.PayoutRecord) error {
	if err := s.db.WithContext(ctx).Create(payout).Error; err != nil {
		return fmt.Errorf("failed to save payout: %w", err)
	}
	return nil
}

// ListPayouts retrieves a circle's payouts in ascending cycle order
func (s *pgStore) ListPayouts(ctx context.Context, circleID uint64) ([]schema.PayoutRecord, error) {
	var payouts []schema.PayoutRecord
	err := s.db.WithContext(ctx).
		Where("circle_id = ?", circleID).
		Order("cycle ASC").
		Find(&payouts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	return payouts, nil
}

// GetMemberLock retrieves a member's join-deposit lock
func (s *pgStore) GetMemberLock(ctx context.Context, circleID uint64, member domain.Address) (*schema.MemberLock, error) {
	var lock schema.MemberLock
	err := s.db.WithContext(ctx).
		Where("circle_id = ? AND member = ?", circleID, member).
		First(&lock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member lock: %w", err)
	}
	return &lock, nil
}

// SaveMemberLock stores a join-deposit lock
func (s *pgStore) SaveMemberLock(ctx context.Context, lock *schema.MemberLock) error {
	if err := s.db.WithContext(ctx).Create(lock).Error; err != nil {
		return fmt.Errorf("failed to save member lock: %w", err)
	}
	return nil
}

// DeleteMemberLock removes a join-deposit lock (refund or sweep)
func (s *pgStore) DeleteMemberLock(ctx context.Context, circleID uint64, member domain.Address) error {
	err := s.db.WithContext(ctx).
		Where("circle_id = ? AND member = ?", circleID, member).
		Delete(&schema.MemberLock{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete member lock: %w", err)
	}
	return nil
}

// ListMemberLocks retrieves all outstanding locks of a circle
func (s *pgStore) ListMemberLocks(ctx context.Context, circleID uint64) ([]schema.MemberLock, error) {
	var locks []schema.MemberLock
	err := s.db.WithContext(ctx).
		Where("circle_id = ?", circleID).
		Order("id ASC").
		Find(&locks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list member locks: %w", err)
	}
	return locks, nil
}

// GetBlockedMember retrieves a member's block marker
func (s *pgStore) GetBlockedMember(ctx context.Context, circleID uint64, member domain.Address) (*schema.BlockedMember, error) {
	var blocked schema.BlockedMember
	err := s.db.WithContext(ctx).
		Where("circle_id = ? AND member = ?", circleID, member).
		First(&blocked).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get blocked member: %w", err)
	}
	return &blocked, nil
}

// SaveBlockedMember stores a block marker
func (s *pgStore) SaveBlockedMember(ctx context.Context, blocked *schema.BlockedMember) error {
	if err := s.db.WithContext(ctx).Create(blocked).Error; err != nil {
		return fmt.Errorf("failed to save blocked member: %w", err)
	}
	return nil
}

// ListBlockedMembers retrieves all block markers of a circle
func (s *pgStore) ListBlockedMembers(ctx context.Context, circleID uint64) ([]schema.BlockedMember, error) {
	var blocked []schema.BlockedMember
	err := s.db.WithContext(ctx).
		Where("circle_id = ?", circleID).
		Order("id ASC").
		Find(&blocked).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked members: %w", err)
	}
	return blocked, nil
}

// UpsertPseudonym creates or replaces a member's pseudonym
func (s *pgStore) UpsertPseudonym(ctx context.Context, pseudonym *schema.MemberPseudonym) error {
	var existing schema.MemberPseudonym
	err := s.db.WithContext(ctx).
		Where("circle_id = ? AND member = ?", pseudonym.CircleID, pseudonym.Member).
		First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to get pseudonym: %w", err)
		}
		if err := s.db.WithContext(ctx).Create(pseudonym).Error; err != nil {
			return fmt.Errorf("failed to create pseudonym: %w", err)
		}
		return nil
	}

	existing.Pseudonym = pseudonym.Pseudonym
	existing.UpdatedAt = pseudonym.UpdatedAt
	if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return fmt.Errorf("failed to update pseudonym: %w", err)
	}
	return nil
}

// ListPseudonyms retrieves all pseudonyms of a circle
func (s *pgStore) ListPseudonyms(ctx context.Context, circleID uint64) ([]schema.MemberPseudonym, error) {
	var pseudonyms []schema.MemberPseudonym
	err := s.db.WithContext(ctx).
		Where("circle_id = ?", circleID).
		Order("id ASC").
		Find(&pseudonyms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pseudonyms: %w", err)
	}
	return pseudonyms, nil
}

// SaveRefund appends a refund record
func (s *pgStore) SaveRefund(ctx context.Context, refund *schema.RefundRecord) error {
	if err := s.db.WithContext(ctx).Create(refund).Error; err != nil {
		return fmt.Errorf("failed to save refund: %w", err)
	}
	return nil
}

// ListRefunds retrieves all refund records of a circle
func (s *pgStore) ListRefunds(ctx context.Context, circleID uint64) ([]schema.RefundRecord, error) {
	var refunds []schema.RefundRecord
	err := s.db.WithContext(ctx).
		Where("circle_id = ?", circleID).
		Order("id ASC").
		Find(&refunds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	return refunds, nil
}

// AppendEvent appends an audit-trail entry
func (s *pgStore) AppendEvent(ctx context.Context, event *schema.EventLog) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListEvents retrieves up to limit events, most recent first
func (s *pgStore) ListEvents(ctx context.Context, circleID uint64, limit int) ([]schema.EventLog, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	var events []schema.EventLog
	err := s.db.WithContext(ctx).
		Where("circle_id = ?", circleID).
		Order("event_id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}
