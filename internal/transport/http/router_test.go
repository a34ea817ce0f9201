package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/identity"
	"github.com/sakashimaa/course-store/internal/service"
	"github.com/sakashimaa/course-store/internal/storage"
	"github.com/sakashimaa/course-store/internal/transport/http/handler"
	"github.com/sakashimaa/course-store/internal/transport/http/middleware"
	"github.com/sakashimaa/course-store/pkg/utils"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const testProfile = "5f0c6a8e-3b7d-4f52-9a11-0c2d4e6f8a10"

type contactSink struct {
	got []*domain.ContactMessage
}

func (s *contactSink) AppendContactMessage(_ context.Context, msg *domain.ContactMessage) error {
	msg.ID = int64(len(s.got) + 1)
	s.got = append(s.got, msg)
	return nil
}

type RouterSuite struct {
	suite.Suite

	app    *fiber.App
	issuer *identity.Issuer
	sync   *service.SyncService
	sink   *contactSink
}

func (s *RouterSuite) SetupTest() {
	logger := zap.NewNop()
	store := storage.NewMemoryStore()
	cb := utils.NewBreaker(utils.BreakerConfig{Name: "test", MaxRequests: 1, Interval: time.Second, Timeout: time.Second}, logger)

	// no remote store: everything runs local-only
	readiness := service.NewReadiness(1, 0, logger)
	readiness.Probe(context.Background(), nil)

	issuer, err := identity.NewIssuer("test-secret", time.Hour)
	s.Require().NoError(err)
	s.issuer = issuer

	carts := service.NewCartService(store, logger)
	history := service.NewOrderHistory(store, nil, cb, time.Second, logger)
	s.sync = service.NewSyncService(carts, nil, readiness, cb, time.Minute, time.Second, logger)
	s.sink = &contactSink{}

	s.app = fiber.New()
	RegisterRoutes(s.app, &Handlers{
		Auth:        handler.NewAuthHandler(issuer, store, s.sync, time.Second, logger),
		Cart:        handler.NewCartHandler(carts, s.sync, logger),
		Checkout:    handler.NewCheckoutHandler(service.NewCheckoutService(carts, history, time.Hour, logger), logger),
		Order:       handler.NewOrderHandler(history, logger),
		Preferences: handler.NewPreferencesHandler(store, logger),
		Contact:     handler.NewContactHandler(s.sink, cb, time.Second, logger),
		Health:      handler.NewHealthHandler(readiness),
	}, issuer, s.sync.Track)
}

func (s *RouterSuite) do(method, path string, body any, token string) (int, map[string]any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.AddCookie(&nethttp.Cookie{Name: middleware.ProfileCookie, Value: testProfile})
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, &out), string(raw))
	}

	return resp.StatusCode, out
}

func (s *RouterSuite) TestHealthReportsLocalOnly() {
	status, body := s.do(fiber.MethodGet, "/health", nil, "")

	s.Require().Equal(fiber.StatusOK, status)
	s.Require().Equal("local-only", body["remote"])
}

func (s *RouterSuite) TestProfileCookieIsIssued() {
	req := httptest.NewRequest(fiber.MethodGet, "/api/cart", nil)

	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Require().True(strings.HasPrefix(resp.Header.Get(fiber.HeaderSetCookie), middleware.ProfileCookie+"="))
}

func (s *RouterSuite) TestCartEndpoints() {
	status, body := s.do(fiber.MethodPost, "/api/cart/items", fiber.Map{"name": "Machine Learning Course", "price": "99"}, "")
	s.Require().Equal(fiber.StatusCreated, status)
	s.Require().Equal("machine-learning-course", body["item"].(map[string]any)["id"])

	status, _ = s.do(fiber.MethodPost, "/api/cart/items", fiber.Map{"name": "Go"}, "")
	s.Require().Equal(fiber.StatusBadRequest, status)

	status, _ = s.do(fiber.MethodPost, "/api/cart/items", fiber.Map{"name": "???", "price": "1"}, "")
	s.Require().Equal(fiber.StatusUnprocessableEntity, status)

	status, _ = s.do(fiber.MethodPatch, "/api/cart/items/rust", fiber.Map{"quantity": 2}, "")
	s.Require().Equal(fiber.StatusNotFound, status)

	status, body = s.do(fiber.MethodPatch, "/api/cart/items/machine-learning-course", fiber.Map{"quantity": 3}, "")
	s.Require().Equal(fiber.StatusOK, status)
	s.Require().EqualValues(3, body["item_count"])
	s.Require().Equal("297", body["total"])

	status, body = s.do(fiber.MethodDelete, "/api/cart", nil, "")
	s.Require().Equal(fiber.StatusOK, status)
	s.Require().EqualValues(0, body["item_count"])
}

func (s *RouterSuite) TestAddItemAlwaysDerivesID() {
	status, body := s.do(fiber.MethodPost, "/api/cart/items", fiber.Map{"id": "SKU 1!", "name": "Machine Learning Course", "price": "99"}, "")
	s.Require().Equal(fiber.StatusCreated, status)
	s.Require().Equal("machine-learning-course", body["item"].(map[string]any)["id"])

	status, _ = s.do(fiber.MethodPost, "/api/cart/items", fiber.Map{"name": "Machine Learning Course", "price": "99"}, "")
	s.Require().Equal(fiber.StatusCreated, status)

	status, body = s.do(fiber.MethodGet, "/api/cart", nil, "")
	s.Require().Equal(fiber.StatusOK, status)
	s.Require().Len(body["items"], 1)
	s.Require().EqualValues(2, body["item_count"])
}

func (s *RouterSuite) TestGuestSyncIsLocalOnly() {
	status, body := s.do(fiber.MethodPost, "/api/cart/sync", nil, "")

	s.Require().Equal(fiber.StatusOK, status)
	s.Require().Equal("local-only", body["sync"].(map[string]any)["status"])
}

func (s *RouterSuite) TestCheckoutEndToEnd() {
	for i := 0; i < 2; i++ {
		status, _ := s.do(fiber.MethodPost, "/api/cart/items", fiber.Map{"name": "Machine Learning Course", "price": "99"}, "")
		s.Require().Equal(fiber.StatusCreated, status)
	}

	status, _ := s.do(fiber.MethodPost, "/api/checkout", nil, "")
	s.Require().Equal(fiber.StatusCreated, status)

	status, _ = s.do(fiber.MethodPost, "/api/checkout/promo", fiber.Map{"code": "SAVE15"}, "")
	s.Require().Equal(fiber.StatusOK, status)

	status, body := s.do(fiber.MethodPost, "/api/checkout/promo", fiber.Map{"code": "save15"}, "")
	s.Require().Equal(fiber.StatusOK, status)
	s.Require().NotEmpty(body["notice"])

	status, _ = s.do(fiber.MethodPost, "/api/checkout/next", nil, "")
	s.Require().Equal(fiber.StatusOK, status)

	status, _ = s.do(fiber.MethodPost, "/api/checkout/next", nil, "")
	s.Require().Equal(fiber.StatusUnprocessableEntity, status)

	status, _ = s.do(fiber.MethodPost, "/api/checkout/payment", fiber.Map{"method": "credit-card"}, "")
	s.Require().Equal(fiber.StatusOK, status)

	status, body = s.do(fiber.MethodPost, "/api/checkout/next", nil, "")
	s.Require().Equal(fiber.StatusOK, status)
	wizard := body["checkout"].(map[string]any)
	s.Require().Equal("success", wizard["outcome"])
	s.Require().Equal("185.13", wizard["order"].(map[string]any)["total"])

	status, body = s.do(fiber.MethodGet, "/api/orders", nil, "")
	s.Require().Equal(fiber.StatusOK, status)
	s.Require().EqualValues(1, body["count"])

	status, body = s.do(fiber.MethodGet, "/api/cart", nil, "")
	s.Require().Equal(fiber.StatusOK, status)
	s.Require().EqualValues(0, body["item_count"])
}

func (s *RouterSuite) TestCheckoutMissing() {
	status, _ := s.do(fiber.MethodGet, "/api/checkout", nil, "")
	s.Require().Equal(fiber.StatusNotFound, status)
}

func (s *RouterSuite) TestDemoLoginAndMe() {
	status, _ := s.do(fiber.MethodPost, "/auth/demo-login", fiber.Map{"email": "not-an-email"}, "")
	s.Require().Equal(fiber.StatusBadRequest, status)

	status, body := s.do(fiber.MethodPost, "/auth/demo-login", fiber.Map{"email": "ada@example.com", "display_name": "Ada"}, "")
	s.Require().Equal(fiber.StatusOK, status)
	s.Require().Equal("local-only", body["sync"].(map[string]any)["status"])
	token := body["token"].(string)

	status, body = s.do(fiber.MethodGet, "/api/me", nil, token)
	s.Require().Equal(fiber.StatusOK, status)
	s.Require().Equal(false, body["guest"])
	s.Require().Equal("Ada", body["user"].(map[string]any)["display_name"])
	s.Require().Contains(s.sync.Tracked(), testProfile)

	status, _ = s.do(fiber.MethodGet, "/api/me", nil, "garbage")
	s.Require().Equal(fiber.StatusUnauthorized, status)

	status, _ = s.do(fiber.MethodPost, "/auth/logout", nil, "")
	s.Require().Equal(fiber.StatusOK, status)
	s.Require().Empty(s.sync.Tracked())
}

func (s *RouterSuite) TestTheme() {
	status, body := s.do(fiber.MethodGet, "/api/preferences/theme", nil, "")
	s.Require().Equal(fiber.StatusOK, status)
	s.Require().Equal("light", body["theme"])

	status, _ = s.do(fiber.MethodPut, "/api/preferences/theme", fiber.Map{"theme": "purple"}, "")
	s.Require().Equal(fiber.StatusBadRequest, status)

	status, _ = s.do(fiber.MethodPut, "/api/preferences/theme", fiber.Map{"theme": "dark"}, "")
	s.Require().Equal(fiber.StatusOK, status)

	_, body = s.do(fiber.MethodGet, "/api/preferences/theme", nil, "")
	s.Require().Equal("dark", body["theme"])
}

func (s *RouterSuite) TestContact() {
	status, _ := s.do(fiber.MethodPost, "/api/contact", fiber.Map{"name": "Ada", "email": "ada@example.com", "subject": "Hi", "message": "short"}, "")
	s.Require().Equal(fiber.StatusBadRequest, status)

	status, body := s.do(fiber.MethodPost, "/api/contact", fiber.Map{
		"name":    "Ada",
		"email":   "ada@example.com",
		"subject": "Course access",
		"message": "I cannot open the second module.",
	}, "")
	s.Require().Equal(fiber.StatusCreated, status)
	s.Require().Equal(true, body["delivered"])
	s.Require().Len(s.sink.got, 1)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}
