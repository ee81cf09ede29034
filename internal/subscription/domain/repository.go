package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Save(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByAddress(ctx context.Context, db *gorm.DB, address string) (*Subscription, error)
	FindByAddressForUpdate(ctx context.Context, db *gorm.DB, address string) (*Subscription, error)
	// ListRenewalDue returns auto-renew subscriptions whose period ends
	// before the cutoff.
	ListRenewalDue(ctx context.Context, db *gorm.DB, before time.Time) ([]Subscription, error)
	InsertPayment(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
	ListPayments(ctx context.Context, db *gorm.DB, address string) ([]PaymentRecord, error)
}
