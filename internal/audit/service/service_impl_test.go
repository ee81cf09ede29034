package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/shiplet/shiplet/internal/audit/domain"
	"github.com/shiplet/shiplet/internal/audit/repository"
	"github.com/shiplet/shiplet/internal/clock"
	"github.com/shiplet/shiplet/internal/migration"
	"github.com/shiplet/shiplet/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migration.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, _ := snowflake.NewNode(1)
	return &Service{
		db:    db,
		log:   zaptest.NewLogger(t),
		genID: node,
		clock: clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		repo:  repository.Provide(),
	}
}

func ptr(s string) *string { return &s }

func TestRecordValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	err := svc.Record(ctx, auditdomain.ActorTypeSystem, nil, "  ", "deployment", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)

	err = svc.Record(ctx, auditdomain.ActorTypeWallet, ptr(" 0xabc "), "deployment.request", "", ptr("42"), map[string]any{
		"repo_url": "github.com/acme/site",
		"":         "dropped",
	})
	assert.NoError(t, err)

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	assert.NoError(t, err)
	if assert.Len(t, resp.AuditLogs, 1) {
		entry := resp.AuditLogs[0]
		assert.Equal(t, "deployment.request", entry.Action)
		assert.Equal(t, "unknown", entry.TargetType)
		if assert.NotNil(t, entry.ActorAddress) {
			assert.Equal(t, "0xabc", *entry.ActorAddress)
		}
		assert.Equal(t, "github.com/acme/site", entry.Metadata["repo_url"])
		assert.NotContains(t, entry.Metadata, "")
	}
}

func TestListFilters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.Record(ctx, auditdomain.ActorTypeWallet, ptr("0xabc"), "deployment.request", "deployment", ptr("1"), nil))
	assert.NoError(t, svc.Record(ctx, auditdomain.ActorTypeAdmin, ptr("0xadmin"), "deployment.deployed", "deployment", ptr("1"), nil))
	assert.NoError(t, svc.Record(ctx, auditdomain.ActorTypeSystem, nil, "payment.swap", "treasury", nil, nil))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "payment.swap"})
	assert.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 1)

	resp, err = svc.List(ctx, auditdomain.ListAuditLogRequest{TargetType: "deployment", TargetID: "1"})
	assert.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 2)
	// Newest first.
	assert.Equal(t, "deployment.deployed", resp.AuditLogs[0].Action)
}

func TestListPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		action := fmt.Sprintf("deployment.request.%d", i)
		assert.NoError(t, svc.Record(ctx, auditdomain.ActorTypeSystem, nil, action, "deployment", nil, nil))
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	assert.NoError(t, err)
	assert.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.NextPageToken)
	assert.Equal(t, "deployment.request.4", first.AuditLogs[0].Action)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	assert.NoError(t, err)
	assert.Len(t, second.AuditLogs, 2)
	assert.True(t, second.HasMore)
	assert.Equal(t, "deployment.request.2", second.AuditLogs[0].Action)

	last, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: second.NextPageToken},
	})
	assert.NoError(t, err)
	assert.Len(t, last.AuditLogs, 1)
	assert.False(t, last.HasMore)
	assert.Equal(t, "deployment.request.0", last.AuditLogs[0].Action)
}

func TestListRejectsMalformedPageToken(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "not-base64!"},
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
