package repository

import (
	"context"

	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() paymentdomain.Repository {
	return &repository{}
}

func (r *repository) AccountForUpdate(ctx context.Context, db *gorm.DB, token string) (*paymentdomain.TreasuryAccount, error) {
	var account paymentdomain.TreasuryAccount
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("token = ?", token).
		First(&account).Error
	if err == nil {
		return &account, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return nil, nil
}

func (r *repository) FindAccount(ctx context.Context, db *gorm.DB, token string) (*paymentdomain.TreasuryAccount, error) {
	var account paymentdomain.TreasuryAccount
	err := db.WithContext(ctx).Where("token = ?", token).First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) SaveAccount(ctx context.Context, db *gorm.DB, account *paymentdomain.TreasuryAccount) error {
	return db.WithContext(ctx).Save(account).Error
}

func (r *repository) InsertEvent(ctx context.Context, db *gorm.DB, event *paymentdomain.PaymentEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEvents(ctx context.Context, db *gorm.DB, limit int) ([]paymentdomain.PaymentEvent, error) {
	var events []paymentdomain.PaymentEvent
	err := db.WithContext(ctx).Order("id desc").Limit(limit).Find(&events).Error
	return events, err
}
