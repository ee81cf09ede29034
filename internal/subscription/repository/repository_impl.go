package repository

import (
	"context"
	"time"

	subscriptiondomain "github.com/shiplet/shiplet/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() subscriptiondomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) Save(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindByAddress(ctx context.Context, db *gorm.DB, address string) (*subscriptiondomain.Subscription, error) {
	return r.findByAddress(ctx, db, address, false)
}

func (r *repository) FindByAddressForUpdate(ctx context.Context, db *gorm.DB, address string) (*subscriptiondomain.Subscription, error) {
	return r.findByAddress(ctx, db, address, true)
}

func (r *repository) ListRenewalDue(ctx context.Context, db *gorm.DB, before time.Time) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("auto_renew = ? AND end_at <= ?", true, before).
		Order("end_at asc").
		Find(&subscriptions).Error
	return subscriptions, err
}

func (r *repository) InsertPayment(ctx context.Context, db *gorm.DB, record *subscriptiondomain.PaymentRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repository) ListPayments(ctx context.Context, db *gorm.DB, address string) ([]subscriptiondomain.PaymentRecord, error) {
	var records []subscriptiondomain.PaymentRecord
	err := db.WithContext(ctx).
		Where("address = ?", address).
		Order("id asc").
		Find(&records).Error
	return records, err
}

func (r *repository) findByAddress(ctx context.Context, db *gorm.DB, address string, forUpdate bool) (*subscriptiondomain.Subscription, error) {
	stmt := db.WithContext(ctx)
	if forUpdate {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var subscription subscriptiondomain.Subscription
	err := stmt.Where("address = ?", address).First(&subscription).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}
