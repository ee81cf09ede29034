// Package migration creates the schema on startup so a self-hosted
// instance is usable out of the box on any supported dialect.
package migration

import (
	auditdomain "github.com/shiplet/shiplet/internal/audit/domain"
	deploymentdomain "github.com/shiplet/shiplet/internal/deployment/domain"
	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	subscriptiondomain "github.com/shiplet/shiplet/internal/subscription/domain"
	"gorm.io/gorm"
)

func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.PaymentRecord{},
		&deploymentdomain.DeploymentRecord{},
		&paymentdomain.TreasuryAccount{},
		&paymentdomain.PaymentEvent{},
		&auditdomain.AuditLog{},
	)
}
