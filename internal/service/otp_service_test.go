package service_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/quickcourt/auth/internal/delivery"
	"github.com/quickcourt/auth/internal/domain"
	"github.com/quickcourt/auth/internal/service"
)

// ---------- Mocks ----------

type mockOTPRepo struct {
	records map[string]*domain.OTPRecord

	createErr error
	findErr   error
	countErr  error
}

func newMockOTPRepo() *mockOTPRepo {
	return &mockOTPRepo{records: make(map[string]*domain.OTPRecord)}
}

func (m *mockOTPRepo) Create(_ context.Context, rec *domain.OTPRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	rec.CreatedAt = time.Now()
	m.records[rec.ID] = rec
	return nil
}

func (m *mockOTPRepo) FindActive(_ context.Context, phone, code string, purpose domain.Purpose) (*domain.OTPRecord, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	now := time.Now()
	var newest *domain.OTPRecord
	for _, rec := range m.records {
		if rec.PhoneNumber != phone || rec.Code != code || rec.Purpose != purpose {
			continue
		}
		if rec.IsVerified || !rec.ExpiresAt.After(now) || rec.Attempts >= rec.MaxAttempts {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			newest = rec
		}
	}
	if newest == nil {
		return nil, nil
	}
	copied := *newest
	return &copied, nil
}

func (m *mockOTPRepo) MarkVerified(_ context.Context, id string) (time.Time, bool, error) {
	rec, ok := m.records[id]
	if !ok || rec.IsVerified {
		return time.Time{}, false, nil
	}
	now := time.Now()
	rec.IsVerified = true
	rec.VerifiedAt = &now
	return now, true, nil
}

func (m *mockOTPRepo) IncrementAttempts(_ context.Context, phone, code string, purpose domain.Purpose) (int64, error) {
	var n int64
	for _, rec := range m.records {
		if rec.PhoneNumber == phone && rec.Code == code && rec.Purpose == purpose {
			if rec.Attempts < rec.MaxAttempts {
				rec.Attempts++
			}
			n++
		}
	}
	return n, nil
}

func (m *mockOTPRepo) CountIssuedSince(_ context.Context, phone string, since time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	count := 0
	for _, rec := range m.records {
		if rec.PhoneNumber == phone && !rec.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockOTPRepo) Delete(_ context.Context, id string) error {
	delete(m.records, id)
	return nil
}

func (m *mockOTPRepo) DeleteStale(_ context.Context) (int64, error) {
	return 0, nil
}

func (m *mockOTPRepo) byPhone(phone string) []*domain.OTPRecord {
	var out []*domain.OTPRecord
	for _, rec := range m.records {
		if rec.PhoneNumber == phone {
			out = append(out, rec)
		}
	}
	return out
}

type mockUserRepo struct {
	users map[string]*domain.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*domain.User)}
}

func (m *mockUserRepo) FindByPhone(_ context.Context, phone string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepo) MarkPhoneVerified(_ context.Context, id string) error {
	if u, ok := m.users[id]; ok {
		u.PhoneVerified = true
	}
	return nil
}

func (m *mockUserRepo) StampOTPSent(_ context.Context, id string) error {
	if u, ok := m.users[id]; ok {
		now := time.Now()
		u.LastOTPSent = &now
	}
	return nil
}

type mockPublisher struct {
	subjects []string
}

func (m *mockPublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

type mockSMS struct {
	lastTo   string
	lastBody string
	sends    int
	sendErr  error
}

func (m *mockSMS) Send(_ context.Context, toPhone, body string) error {
	m.sends++
	m.lastTo = toPhone
	m.lastBody = body
	return m.sendErr
}

type mockEmail struct {
	lastTo   string
	lastCode string
	sends    int
	sendErr  error
}

func (m *mockEmail) SendOTPEmail(_ context.Context, toEmail, _ string, code string, _ domain.Purpose) error {
	m.sends++
	m.lastTo = toEmail
	m.lastCode = code
	return m.sendErr
}

// ---------- Helpers ----------

type fixture struct {
	svc      service.OTPService
	otpRepo  *mockOTPRepo
	userRepo *mockUserRepo
	sms      *mockSMS
	email    *mockEmail
	bus      *mockPublisher
}

func newFixture() *fixture {
	otpRepo := newMockOTPRepo()
	userRepo := newMockUserRepo()
	sms := &mockSMS{}
	email := &mockEmail{}
	bus := &mockPublisher{}

	svc := service.NewOTPService(otpRepo, userRepo, delivery.NewDispatcher(sms, email), bus)
	return &fixture{svc: svc, otpRepo: otpRepo, userRepo: userRepo, sms: sms, email: email, bus: bus}
}

var codePattern = regexp.MustCompile(`\d{6}`)

func (f *fixture) issue(t *testing.T, phone string, purpose domain.Purpose, userID string) (otpID, code string) {
	t.Helper()
	issued, err := f.svc.Issue(context.Background(), &domain.SendOTPRequest{
		PhoneNumber: phone,
		Purpose:     purpose,
		UserID:      userID,
	})
	if err != nil {
		t.Fatalf("Issue() = %v, want nil", err)
	}
	code = codePattern.FindString(f.sms.lastBody)
	if code == "" {
		code = f.email.lastCode
	}
	if code == "" {
		t.Fatal("no code was delivered")
	}
	return issued.OTPID, code
}

// ---------- Tests ----------

func TestIssueAndVerifyFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	otpID, code := f.issue(t, "+15551234567", domain.PurposeLogin, "")

	rec := f.otpRepo.records[otpID]
	if rec == nil {
		t.Fatal("no record persisted")
	}
	if rec.Attempts != 0 || rec.IsVerified {
		t.Fatalf("fresh record has attempts=%d verified=%v, want 0/false", rec.Attempts, rec.IsVerified)
	}
	if f.sms.lastTo != "+15551234567" {
		t.Fatalf("SMS went to %q", f.sms.lastTo)
	}

	verified, err := f.svc.Verify(ctx, &domain.VerifyOTPRequest{
		PhoneNumber: "+1 (555) 123-4567", // differently formatted on purpose
		Code:        code,
		Purpose:     domain.PurposeLogin,
	})
	if err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}
	if verified.UserID != "" {
		t.Errorf("Verify() user id = %q, want empty (none supplied at issuance)", verified.UserID)
	}
	if verified.PhoneNumber != "+15551234567" {
		t.Errorf("Verify() phone = %q, want normalized", verified.PhoneNumber)
	}
	if !rec.IsVerified || rec.VerifiedAt == nil {
		t.Error("record not marked verified")
	}

	// The same code must not verify twice.
	_, err = f.svc.Verify(ctx, &domain.VerifyOTPRequest{
		PhoneNumber: "+15551234567",
		Code:        code,
		Purpose:     domain.PurposeLogin,
	})
	if !errors.Is(err, service.ErrCodeInvalid) {
		t.Fatalf("second Verify() = %v, want ErrCodeInvalid", err)
	}
}

func TestIssueRejectsMalformedPhone(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Issue(context.Background(), &domain.SendOTPRequest{
		PhoneNumber: "not-a-phone",
		Purpose:     domain.PurposeLogin,
	})
	if !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("Issue() = %v, want ErrInvalidInput", err)
	}
	if len(f.otpRepo.records) != 0 {
		t.Error("record created despite invalid phone")
	}
	if f.sms.sends != 0 {
		t.Error("SMS sent despite invalid phone")
	}
}

func TestIssueRateLimit(t *testing.T) {
	f := newFixture()

	const phone = "+15559999999"
	for i := 0; i < domain.MaxOTPPerWindow; i++ {
		f.issue(t, phone, domain.PurposeLogin, "")
	}

	_, err := f.svc.Issue(context.Background(), &domain.SendOTPRequest{
		PhoneNumber: phone,
		Purpose:     domain.PurposeLogin,
	})
	if !errors.Is(err, service.ErrRateLimited) {
		t.Fatalf("4th Issue() = %v, want ErrRateLimited", err)
	}
	if got := len(f.otpRepo.byPhone(phone)); got != domain.MaxOTPPerWindow {
		t.Errorf("rate-limited issue created a record: have %d", got)
	}
}

func TestVerifyIsPurposeScoped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, code := f.issue(t, "+15551234567", domain.PurposeLogin, "")

	_, err := f.svc.Verify(ctx, &domain.VerifyOTPRequest{
		PhoneNumber: "+15551234567",
		Code:        code,
		Purpose:     domain.PurposeRegistration,
	})
	if !errors.Is(err, service.ErrCodeInvalid) {
		t.Fatalf("cross-purpose Verify() = %v, want ErrCodeInvalid", err)
	}

	// The login record is untouched and still verifiable.
	if _, err := f.svc.Verify(ctx, &domain.VerifyOTPRequest{
		PhoneNumber: "+15551234567",
		Code:        code,
		Purpose:     domain.PurposeLogin,
	}); err != nil {
		t.Fatalf("matching-purpose Verify() = %v, want nil", err)
	}
}

func TestVerifyExhaustsAttemptBudget(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	otpID, code := f.issue(t, "+15551234567", domain.PurposeLogin, "")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	for i := 0; i < domain.MaxOTPAttempts; i++ {
		_, err := f.svc.Verify(ctx, &domain.VerifyOTPRequest{
			PhoneNumber: "+15551234567",
			Code:        wrong,
			Purpose:     domain.PurposeLogin,
		})
		if !errors.Is(err, service.ErrCodeInvalid) {
			t.Fatalf("wrong-code Verify() #%d = %v, want ErrCodeInvalid", i+1, err)
		}
	}

	// Wrong guesses carry a different code, so their increments only land on
	// records holding that code. The budget is tracked per record; put the
	// record into the exhausted state and confirm the correct code is refused.
	f.otpRepo.records[otpID].Attempts = domain.MaxOTPAttempts

	_, err := f.svc.Verify(ctx, &domain.VerifyOTPRequest{
		PhoneNumber: "+15551234567",
		Code:        code,
		Purpose:     domain.PurposeLogin,
	})
	if !errors.Is(err, service.ErrCodeInvalid) {
		t.Fatalf("exhausted Verify() with correct code = %v, want ErrCodeInvalid", err)
	}
}

func TestVerifyIncrementsAttemptsOnMatchingRecords(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	otpID, code := f.issue(t, "+15551234567", domain.PurposeLogin, "")

	// Expire the record, then replay its own (now stale) code.
	f.otpRepo.records[otpID].ExpiresAt = time.Now().Add(-time.Minute)

	_, err := f.svc.Verify(ctx, &domain.VerifyOTPRequest{
		PhoneNumber: "+15551234567",
		Code:        code,
		Purpose:     domain.PurposeLogin,
	})
	if !errors.Is(err, service.ErrCodeInvalid) {
		t.Fatalf("expired Verify() = %v, want ErrCodeInvalid", err)
	}
	if got := f.otpRepo.records[otpID].Attempts; got != 1 {
		t.Errorf("stale record attempts = %d, want 1 (abuse signal still recorded)", got)
	}
}

func TestVerifyExpiredFailsWithZeroAttempts(t *testing.T) {
	f := newFixture()

	otpID, code := f.issue(t, "+15551234567", domain.PurposeLogin, "")
	rec := f.otpRepo.records[otpID]
	rec.ExpiresAt = time.Now().Add(-time.Second)
	if rec.Attempts != 0 {
		t.Fatalf("precondition: attempts = %d", rec.Attempts)
	}

	_, err := f.svc.Verify(context.Background(), &domain.VerifyOTPRequest{
		PhoneNumber: "+15551234567",
		Code:        code,
		Purpose:     domain.PurposeLogin,
	})
	if !errors.Is(err, service.ErrCodeInvalid) {
		t.Fatalf("Verify() after expiry = %v, want ErrCodeInvalid", err)
	}
}

func TestDeliveryFailureRollsBackRecord(t *testing.T) {
	f := newFixture()
	f.sms.sendErr = errors.New("provider down")

	_, err := f.svc.Issue(context.Background(), &domain.SendOTPRequest{
		PhoneNumber: "+15551234567",
		Purpose:     domain.PurposeLogin,
	})
	if !errors.Is(err, service.ErrDeliveryFailed) {
		t.Fatalf("Issue() = %v, want ErrDeliveryFailed", err)
	}
	if len(f.otpRepo.records) != 0 {
		t.Error("undeliverable record was not rolled back; it would eat rate-limit budget")
	}
}

func TestPhoneVerificationMarksUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.userRepo.users["u1"] = &domain.User{
		ID:    "u1",
		Phone: "+15551234567",
		Role:  domain.RoleCustomer,
	}

	_, code := f.issue(t, "+15551234567", domain.PurposePhoneVerification, "u1")

	if f.userRepo.users["u1"].LastOTPSent == nil {
		t.Error("last_otp_sent not stamped")
	}

	verified, err := f.svc.Verify(ctx, &domain.VerifyOTPRequest{
		PhoneNumber: "+15551234567",
		Code:        code,
		Purpose:     domain.PurposePhoneVerification,
	})
	if err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}
	if verified.UserID != "u1" {
		t.Errorf("Verify() user id = %q, want u1", verified.UserID)
	}
	if !f.userRepo.users["u1"].PhoneVerified {
		t.Error("user phone not marked verified")
	}
}

func TestPasswordResetGoesOverEmail(t *testing.T) {
	f := newFixture()

	f.userRepo.users["u1"] = &domain.User{
		ID:    "u1",
		Phone: "+15551234567",
		Email: "casey@example.com",
		Role:  domain.RoleCustomer,
	}

	f.issue(t, "+15551234567", domain.PurposePasswordReset, "u1")

	if f.email.sends != 1 || f.email.lastTo != "casey@example.com" {
		t.Errorf("email sends=%d to=%q, want 1 to casey@example.com", f.email.sends, f.email.lastTo)
	}
	if f.sms.sends != 0 {
		t.Errorf("SMS sends = %d, want 0", f.sms.sends)
	}
}

func TestCheckPhoneExists(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.userRepo.users["u1"] = &domain.User{
		ID:                  "u1",
		Phone:               "+15551234567",
		Role:                domain.RoleCustomer,
		PreferredAuthMethod: domain.AuthMethodPassword,
	}

	check, err := f.svc.CheckPhoneExists(ctx, "+1 555 123 4567")
	if err != nil {
		t.Fatalf("CheckPhoneExists() = %v, want nil", err)
	}
	if !check.Exists || check.User == nil || check.User.ID != "u1" {
		t.Fatalf("CheckPhoneExists() = %+v, want existing u1", check)
	}
	if check.User.PreferredAuthMethod != domain.AuthMethodPassword {
		t.Errorf("preferred auth method = %q", check.User.PreferredAuthMethod)
	}

	check, err = f.svc.CheckPhoneExists(ctx, "+15550000000")
	if err != nil {
		t.Fatalf("CheckPhoneExists() unknown = %v, want nil", err)
	}
	if check.Exists || check.User != nil {
		t.Fatalf("CheckPhoneExists() unknown = %+v, want not found", check)
	}
}

func TestIssueStoreErrorIsGeneric(t *testing.T) {
	f := newFixture()
	f.otpRepo.countErr = errors.New("connection refused: 10.0.3.7:5432")

	_, err := f.svc.Issue(context.Background(), &domain.SendOTPRequest{
		PhoneNumber: "+15551234567",
		Purpose:     domain.PurposeLogin,
	})
	if !errors.Is(err, service.ErrStoreUnavailable) {
		t.Fatalf("Issue() = %v, want ErrStoreUnavailable", err)
	}
	// The internal detail must not ride along on the returned error.
	if got := err.Error(); got != service.ErrStoreUnavailable.Error() {
		t.Errorf("error leaks detail: %q", got)
	}
}
