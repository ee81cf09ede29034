package repository

import (
	"context"

	deploymentdomain "github.com/shiplet/shiplet/internal/deployment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() deploymentdomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, record *deploymentdomain.DeploymentRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repository) Save(ctx context.Context, db *gorm.DB, record *deploymentdomain.DeploymentRecord) error {
	return db.WithContext(ctx).Save(record).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id int64) (*deploymentdomain.DeploymentRecord, error) {
	return r.findByID(ctx, db, id, false)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id int64) (*deploymentdomain.DeploymentRecord, error) {
	return r.findByID(ctx, db, id, true)
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*deploymentdomain.DeploymentRecord, error) {
	var record deploymentdomain.DeploymentRecord
	err := db.WithContext(ctx).Where("idempotency_key = ?", key).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) CountByAddressRepo(ctx context.Context, db *gorm.DB, address, repoURL string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&deploymentdomain.DeploymentRecord{}).
		Where("address = ? AND repo_url = ?", address, repoURL).
		Count(&count).Error
	return count, err
}

func (r *repository) ListByAddress(ctx context.Context, db *gorm.DB, address string) ([]deploymentdomain.DeploymentRecord, error) {
	var records []deploymentdomain.DeploymentRecord
	err := db.WithContext(ctx).
		Where("address = ?", address).
		Order("id asc").
		Find(&records).Error
	return records, err
}

func (r *repository) findByID(ctx context.Context, db *gorm.DB, id int64, forUpdate bool) (*deploymentdomain.DeploymentRecord, error) {
	stmt := db.WithContext(ctx)
	if forUpdate {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var record deploymentdomain.DeploymentRecord
	err := stmt.Where("id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
