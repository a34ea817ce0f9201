package repository_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/repository"
	outboxDomain "github.com/sakashimaa/course-store/pkg/outbox/domain"
	outboxRepository "github.com/sakashimaa/course-store/pkg/outbox/repository"
	"github.com/sakashimaa/course-store/pkg/outbox/utils"
	"github.com/sakashimaa/course-store/pkg/testsuite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type DocumentRepositorySuite struct {
	testsuite.BaseSuite

	Repo repository.DocumentStore
}

func (s *DocumentRepositorySuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../migrations")
}

func (s *DocumentRepositorySuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *DocumentRepositorySuite) SetupTest() {
	s.TruncateTables("user_documents", "orders", "contact_messages", "outbox", "processed_events")

	logger := zap.NewNop()
	s.Repo = repository.NewDocumentRepository(s.DbPool, outboxRepository.NewOutboxRepository(logger), logger)
}

func (s *DocumentRepositorySuite) order(number string) domain.Order {
	cart := domain.NewCart([]domain.LineItem{{
		ID:       "machine-learning-course",
		Name:     "Machine Learning Course",
		Price:    decimal.RequireFromString("99"),
		Quantity: 2,
	}})
	promo, err := domain.LookupPromo("SAVE15")
	s.Require().NoError(err)

	return domain.NewOrder(domain.OrderDraft{
		OrderNumber:   number,
		UserID:        "u-1",
		Cart:          cart,
		Promo:         &promo,
		PaymentMethod: domain.PaymentCreditCard,
	}, time.Now().UTC())
}

func (s *DocumentRepositorySuite) TestGetUserDocument_NotFound() {
	_, err := s.Repo.GetUserDocument(s.Ctx, "missing")
	s.Require().ErrorIs(err, repository.ErrUserDocumentNotFound)
}

func (s *DocumentRepositorySuite) TestUpsertUserDocument_Partial() {
	email := "ada@example.com"
	name := "Ada"
	s.Require().NoError(s.Repo.UpsertUserDocument(s.Ctx, "u-1", domain.UserDocumentPatch{
		Email:       &email,
		DisplayName: &name,
	}))

	cart := domain.NewCart([]domain.LineItem{{ID: "go", Name: "Go", Price: decimal.RequireFromString("10.50"), Quantity: 3}})
	s.Require().NoError(s.Repo.UpsertUserDocument(s.Ctx, "u-1", domain.UserDocumentPatch{Cart: &cart}))

	doc, err := s.Repo.GetUserDocument(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.Require().Equal(email, doc.Email)
	s.Require().Equal(name, doc.DisplayName)
	s.Require().Len(doc.Cart.Items, 1)
	s.Require().Equal(3, doc.Cart.Items[0].Quantity)
	s.Require().True(decimal.RequireFromString("10.50").Equal(doc.Cart.Items[0].Price))

	s.Require().ErrorIs(s.Repo.UpsertUserDocument(s.Ctx, "", domain.UserDocumentPatch{}), repository.ErrEmptyUID)
}

func (s *DocumentRepositorySuite) TestAppendOrder_IdempotentWithSingleOutboxEvent() {
	order := s.order("ORD-1-ABCDEF")

	inserted, err := s.Repo.AppendOrder(s.Ctx, order)
	s.Require().NoError(err)
	s.Require().True(inserted)

	inserted, err = s.Repo.AppendOrder(s.Ctx, order)
	s.Require().NoError(err)
	s.Require().False(inserted)

	var orders int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	s.Require().Equal(1, orders)

	var (
		eventType string
		topic     string
		payload   []byte
	)
	err = s.DbPool.QueryRow(s.Ctx, `
		SELECT event_type, topic, payload FROM outbox WHERE aggregate_id = $1
	`, order.OrderNumber).Scan(&eventType, &topic, &payload)
	s.Require().NoError(err)
	s.Require().Equal("OrderCompleted", eventType)
	s.Require().Equal(outboxDomain.TopicOrderEvents, topic)

	var envelope outboxDomain.Envelope
	s.Require().NoError(json.Unmarshal(payload, &envelope))
	s.Require().Equal("OrderCompleted", envelope.Event)
	s.Require().Contains(string(envelope.Payload), order.OrderNumber)
}

func (s *DocumentRepositorySuite) TestAppendOrder_RequiresUID() {
	order := s.order("ORD-2-ABCDEF")
	order.UserID = ""

	_, err := s.Repo.AppendOrder(s.Ctx, order)
	s.Require().ErrorIs(err, repository.ErrEmptyUID)
}

func (s *DocumentRepositorySuite) TestAppendContactMessage() {
	msg := &domain.ContactMessage{Name: "Ada", Email: "ada@example.com", Subject: "Hi", Message: "Hello there"}

	s.Require().NoError(s.Repo.AppendContactMessage(s.Ctx, msg))
	s.Require().NotZero(msg.ID)
	s.Require().False(msg.CreatedAt.IsZero())
}

func (s *DocumentRepositorySuite) TestApplyOrderStats_Deduplicated() {
	apply := func(ctx context.Context, consumer string) bool {
		applied, err := utils.ProcessOnce(ctx, s.DbPool, zap.NewNop(), consumer, 42, func(tx pgx.Tx) error {
			return s.Repo.ApplyOrderStats(ctx, tx, "u-1", decimal.RequireFromString("185.13"))
		})
		s.Require().NoError(err)
		return applied
	}

	s.Require().True(apply(s.Ctx, "order-stats"))
	s.Require().False(apply(s.Ctx, "order-stats"))

	doc, err := s.Repo.GetUserDocument(s.Ctx, "u-1")
	s.Require().NoError(err)
	s.Require().EqualValues(1, doc.OrderCount)
	s.Require().True(decimal.RequireFromString("185.13").Equal(doc.LifetimeSpend), doc.LifetimeSpend.String())
	s.Require().Empty(doc.Cart.Items)
}

func TestDocumentRepositorySuite(t *testing.T) {
	suite.Run(t, new(DocumentRepositorySuite))
}
