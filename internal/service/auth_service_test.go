package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"restaurant-api/internal/events"
	"restaurant-api/internal/hashing"
	"restaurant-api/internal/otp"
	"restaurant-api/internal/phone"
	"restaurant-api/internal/session"
)

var codePattern = regexp.MustCompile(`code is (\d+)\.`)

type inbox struct {
	mu   sync.Mutex
	last map[string]string
}

func (i *inbox) Send(_ context.Context, phone, message string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.last == nil {
		i.last = make(map[string]string)
	}
	i.last[phone] = message
	return nil
}

func (i *inbox) code(t *testing.T, phone string) string {
	t.Helper()
	i.mu.Lock()
	defer i.mu.Unlock()
	m := codePattern.FindStringSubmatch(i.last[phone])
	if m == nil {
		t.Fatalf("no code sent to %s", phone)
	}
	return m[1]
}

type stubOTP struct {
	calls int
}

func (s *stubOTP) Send(context.Context, string) (otp.SendResult, error) {
	s.calls++
	return otp.SendResult{}, nil
}

func (s *stubOTP) Verify(context.Context, string, string) (otp.VerifyResult, error) {
	s.calls++
	return otp.VerifyResult{}, nil
}

func newAuthService(t *testing.T) (*AuthService, *inbox, *events.Recorder) {
	t.Helper()
	box := &inbox{}
	rec := &events.Recorder{}
	hasher := hashing.NewHasher(hashing.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1}, "pepper")
	otpSvc := otp.NewService(otp.NewMemoryStore(8), otp.NewMemoryRegistry(otp.SeedPhones...), box, hasher, otp.Config{},
		otp.WithPublisher(rec), otp.WithLogger(zap.NewNop()))
	issuer := session.NewIssuer("secret", 0, "")
	return NewAuthService(otpSvc, issuer, rec, zap.NewNop()), box, rec
}

func TestAuthFlowIssuesUsableToken(t *testing.T) {
	svc, box, _ := newAuthService(t)
	ctx := context.Background()

	sent, err := svc.SendOTP(ctx, "0555 111 22 33")
	if err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if sent.Phone != "+905551112233" {
		t.Fatalf("phone not canonicalized: %s", sent.Phone)
	}

	resp, err := svc.VerifyOTP(ctx, "+90 555 111 22 33", box.code(t, sent.Phone))
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if !resp.Verified || !resp.IsNewCustomer || resp.Token == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	claims, err := session.NewIssuer("secret", 0, "").Parse(resp.Token)
	if err != nil {
		t.Fatalf("token should parse: %v", err)
	}
	if claims.Phone != "+905551112233" {
		t.Fatalf("token bound to wrong phone %s", claims.Phone)
	}

	refreshed, err := svc.RefreshToken(ctx, resp.Token)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if refreshed.Phone != "+905551112233" {
		t.Fatalf("unexpected refresh %+v", refreshed)
	}
}

func TestAuthRejectsInvalidInputBeforeTouchingState(t *testing.T) {
	stub := &stubOTP{}
	svc := NewAuthService(stub, session.NewIssuer("secret", 0, ""), nil, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.SendOTP(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty phone, got %v", err)
	}
	_, err := svc.SendOTP(ctx, "+1 202 555 0100")
	if !errors.Is(err, ErrInvalidInput) || !errors.Is(err, phone.ErrInvalidPhone) {
		t.Fatalf("expected wrapped ErrInvalidPhone, got %v", err)
	}
	if _, err := svc.VerifyOTP(ctx, "+905551112233", "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty code, got %v", err)
	}
	if _, err := svc.RefreshToken(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty token, got %v", err)
	}
	if stub.calls != 0 {
		t.Fatalf("otp service should not be called, got %d calls", stub.calls)
	}
}

func TestVerifyErrorsPassThrough(t *testing.T) {
	svc, box, _ := newAuthService(t)
	ctx := context.Background()

	if _, err := svc.VerifyOTP(ctx, "+905551112233", "123456"); !errors.Is(err, otp.ErrNoPendingCode) {
		t.Fatalf("expected ErrNoPendingCode, got %v", err)
	}

	if _, err := svc.SendOTP(ctx, "+905551112233"); err != nil {
		t.Fatal(err)
	}
	bad := "000000"
	if box.code(t, "+905551112233") == bad {
		bad = "111111"
	}
	if _, err := svc.VerifyOTP(ctx, "+905551112233", bad); !errors.Is(err, otp.ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
}

func TestRefreshRejectsForgedToken(t *testing.T) {
	svc, _, rec := newAuthService(t)
	forged, _ := session.NewIssuer("other", 0, "").Issue("+905551112233")

	if _, err := svc.RefreshToken(context.Background(), forged.Token); !errors.Is(err, session.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	for _, typ := range rec.Types() {
		if typ == events.TypeTokenRefreshed {
			t.Fatal("rejected refresh must not publish an event")
		}
	}
}

func TestRefreshAcceptsExpiredToken(t *testing.T) {
	svc, _, rec := newAuthService(t)
	old := time.Now().Add(-60 * 24 * time.Hour)
	expired, err := session.NewIssuer("secret", 0, "", session.WithClock(func() time.Time { return old })).Issue("+905551112233")
	if err != nil {
		t.Fatal(err)
	}

	resp, err := svc.RefreshToken(context.Background(), expired.Token)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Fatalf("refreshed token should expire in the future, got %s", resp.ExpiresAt)
	}
	types := rec.Types()
	if len(types) == 0 || types[len(types)-1] != events.TypeTokenRefreshed {
		t.Fatalf("expected refresh event, got %v", types)
	}
}
