package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/PaulinaPacula189/course-reservation/internal/adapter/auth"
	"github.com/PaulinaPacula189/course-reservation/internal/adapter/storage"
	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
	"github.com/PaulinaPacula189/course-reservation/internal/core/service"
	"github.com/PaulinaPacula189/course-reservation/internal/port"
)

type testEnv struct {
	store   *storage.MemoryAdapter
	handler *HTTPHandler
	server  *httptest.Server
}

func newTestEnv(t *testing.T, courses ...domain.Course) *testEnv {
	t.Helper()
	store := storage.NewMemoryAdapter()
	for _, c := range courses {
		if err := store.CreateCourse(context.Background(), c); err != nil {
			t.Fatalf("seed course: %v", err)
		}
	}
	return newTestEnvWithStore(t, store, store)
}

func newTestEnvWithStore(t *testing.T, mem *storage.MemoryAdapter, store port.Store) *testEnv {
	t.Helper()
	issuer, err := auth.NewJWTIssuer("test-secret", "", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	h := NewHTTPHandler(
		service.NewReservationService(store, nil),
		service.NewCatalogService(store, store),
		service.NewAuthService(store, issuer, auth.NewBcryptHasher(bcrypt.MinCost)),
	)
	env := &testEnv{store: mem, handler: h}
	env.server = httptest.NewServer(h.Routes())
	t.Cleanup(env.server.Close)
	return env
}

func testCourse(id string, seats int, category domain.Category) domain.Course {
	return domain.Course{
		ID:        id,
		Title:     "Course " + id,
		Price:     10,
		Seats:     seats,
		Category:  category,
		CreatedAt: time.Now().UTC(),
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (e *testEnv) signUp(t *testing.T, email string, admin bool) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/auth/signup", "", credentialsRequest{Email: email, Password: "secret1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status %d", resp.StatusCode)
	}
	handle := decodeBody[service.UserHandle](t, resp)
	if admin {
		if err := e.store.SetAdmin(context.Background(), email, true); err != nil {
			t.Fatalf("set admin: %v", err)
		}
	}
	return handle.Token
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestReserve_CreatedThenReplayed(t *testing.T) {
	env := newTestEnv(t, testCourse("c1", 5, domain.CategoryDesign))

	resp := env.do(t, http.MethodPost, "/api/courses/c1/reservations", "", reserveRequest{Email: "A@Example.com"},
		IdempotencyKeyHeader, "retry-1")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(IdempotencyKeyHeader); got != "retry-1" {
		t.Errorf("expected key echoed, got %q", got)
	}
	first := decodeBody[service.Booking](t, resp)
	if first.SeatsLeft != 4 || first.Reservation.UserEmail != "a@example.com" || first.Reservation.CourseTitle != "Course c1" {
		t.Fatalf("unexpected booking %+v", first)
	}

	resp = env.do(t, http.MethodPost, "/api/courses/c1/reservations", "", reserveRequest{Email: "a@example.com"},
		IdempotencyKeyHeader, "retry-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", resp.StatusCode)
	}
	second := decodeBody[service.Booking](t, resp)
	if !second.Replayed || second.Reservation.ID != first.Reservation.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Reservation.ID, second)
	}

	c, _ := env.store.GetCourse(context.Background(), "c1")
	if c.Seats != 4 {
		t.Errorf("expected 4 seats, got %d", c.Seats)
	}
}

func TestReserve_KeyFromBody(t *testing.T) {
	env := newTestEnv(t, testCourse("c1", 5, domain.CategoryDesign))

	for i, want := range []int{http.StatusCreated, http.StatusOK} {
		resp := env.do(t, http.MethodPost, "/api/courses/c1/reservations", "",
			reserveRequest{Email: "a@example.com", IdempotencyKey: "body-key"})
		if resp.StatusCode != want {
			t.Fatalf("request %d: expected %d, got %d", i+1, want, resp.StatusCode)
		}
	}
}

func TestReserve_KeyReusedForOtherEmail(t *testing.T) {
	env := newTestEnv(t, testCourse("c1", 5, domain.CategoryDesign))

	env.do(t, http.MethodPost, "/api/courses/c1/reservations", "", reserveRequest{Email: "a@example.com"}, IdempotencyKeyHeader, "k")
	resp := env.do(t, http.MethodPost, "/api/courses/c1/reservations", "", reserveRequest{Email: "b@example.com"}, IdempotencyKeyHeader, "k")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestReserve_Errors(t *testing.T) {
	env := newTestEnv(t, testCourse("full", 0, domain.CategoryDesign), testCourse("c1", 3, domain.CategoryDesign))

	cases := []struct {
		name string
		path string
		body any
		want int
	}{
		{"sold out", "/api/courses/full/reservations", reserveRequest{Email: "a@example.com"}, http.StatusConflict},
		{"unknown course", "/api/courses/nope/reservations", reserveRequest{Email: "a@example.com"}, http.StatusNotFound},
		{"bad email", "/api/courses/c1/reservations", reserveRequest{Email: "not-an-email"}, http.StatusBadRequest},
		{"unknown field", "/api/courses/c1/reservations", `{"email":"a@example.com","seats":2}`, http.StatusBadRequest},
		{"malformed json", "/api/courses/c1/reservations", `{"email":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, tc.path, "", tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
			if body := decodeBody[errorResponse](t, resp); body.Error == "" {
				t.Error("expected an error message")
			}
		})
	}

	c, _ := env.store.GetCourse(context.Background(), "c1")
	if c.Seats != 3 {
		t.Errorf("rejected requests must not touch seats, got %d", c.Seats)
	}
}

func TestReserve_ScenarioLastSeat(t *testing.T) {
	env := newTestEnv(t, testCourse("c1", 1, domain.CategoryMarketing))

	first := env.do(t, http.MethodPost, "/api/courses/c1/reservations", "", reserveRequest{Email: "a@example.com"})
	second := env.do(t, http.MethodPost, "/api/courses/c1/reservations", "", reserveRequest{Email: "b@example.com"})
	if first.StatusCode != http.StatusCreated || second.StatusCode != http.StatusConflict {
		t.Fatalf("expected 201 then 409, got %d then %d", first.StatusCode, second.StatusCode)
	}
}

func TestReserve_ConcurrentOverHTTP(t *testing.T) {
	const seats, requests = 20, 50
	env := newTestEnv(t, testCourse("c1", seats, domain.CategoryWebDevelopment))

	var wg sync.WaitGroup
	var created, soldOut atomic.Int32
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(reserveRequest{Email: "load@example.com"})
			resp, err := http.Post(env.server.URL+"/api/courses/c1/reservations", "application/json", bytes.NewReader(body))
			if err != nil {
				t.Errorf("post: %v", err)
				return
			}
			defer resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusCreated:
				created.Add(1)
			case http.StatusConflict:
				soldOut.Add(1)
			default:
				t.Errorf("unexpected status %d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	if created.Load() != seats || soldOut.Load() != requests-seats {
		t.Fatalf("expected %d/%d, got %d/%d", seats, requests-seats, created.Load(), soldOut.Load())
	}
	list, _ := env.store.ListReservations(context.Background(), "c1")
	if len(list) != seats {
		t.Errorf("expected %d reservations, got %d", seats, len(list))
	}
}

type brokenStore struct {
	*storage.MemoryAdapter
}

func (b brokenStore) ReserveSeat(ctx context.Context, r domain.Reservation) (*domain.ReserveResult, error) {
	return nil, errors.New("connection refused")
}

func TestReserve_StoreUnavailable(t *testing.T) {
	mem := storage.NewMemoryAdapter()
	mem.CreateCourse(context.Background(), testCourse("c1", 3, domain.CategoryDesign))
	env := newTestEnvWithStore(t, mem, brokenStore{mem})

	resp := env.do(t, http.MethodPost, "/api/courses/c1/reservations", "", reserveRequest{Email: "a@example.com"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

type countingLimiter struct {
	allowed atomic.Int32
	limit   int32
}

func (l *countingLimiter) Allow(ctx context.Context, key string) bool {
	return l.allowed.Add(1) <= l.limit
}

func TestReserve_RateLimited(t *testing.T) {
	env := newTestEnv(t, testCourse("c1", 5, domain.CategoryDesign))
	env.server = httptest.NewServer(env.handler.WithRateLimiter(&countingLimiter{limit: 1}, time.Minute).Routes())
	t.Cleanup(env.server.Close)

	first := env.do(t, http.MethodPost, "/api/courses/c1/reservations", "", reserveRequest{Email: "a@example.com"})
	second := env.do(t, http.MethodPost, "/api/courses/c1/reservations", "", reserveRequest{Email: "a@example.com"})
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.StatusCode)
	}
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.StatusCode)
	}
	if got := second.Header.Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}

func TestListCourses(t *testing.T) {
	env := newTestEnv(t,
		testCourse("a", 1, domain.CategoryDesign),
		testCourse("b", 1, domain.CategoryMarketing),
		testCourse("c", 1, domain.CategoryDesign),
	)

	resp := env.do(t, http.MethodGet, "/api/courses?category=Design", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	courses := decodeBody[[]domain.Course](t, resp)
	if len(courses) != 2 || courses[0].ID != "a" || courses[1].ID != "c" {
		t.Fatalf("unexpected courses %+v", courses)
	}

	all := decodeBody[[]domain.Course](t, env.do(t, http.MethodGet, "/api/courses", "", nil))
	if len(all) != 3 {
		t.Fatalf("expected 3 courses, got %d", len(all))
	}

	if resp := env.do(t, http.MethodGet, "/api/courses?category=Cooking", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown category, got %d", resp.StatusCode)
	}
}

func TestListCourses_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/courses", "", nil)
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(bytes.TrimSpace(raw)) != "[]" {
		t.Fatalf("expected [], got %s", raw)
	}
}

func TestGetCourseAndCategories(t *testing.T) {
	env := newTestEnv(t, testCourse("c1", 2, domain.CategoryDesign))

	course := decodeBody[domain.Course](t, env.do(t, http.MethodGet, "/api/courses/c1", "", nil))
	if course.Seats != 2 {
		t.Fatalf("unexpected course %+v", course)
	}
	if resp := env.do(t, http.MethodGet, "/api/courses/nope", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	cats := decodeBody[[]string](t, env.do(t, http.MethodGet, "/api/categories", "", nil))
	if len(cats) != 3 || cats[0] != "Web Development" {
		t.Fatalf("unexpected categories %v", cats)
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "user@example.com", false)

	me := decodeBody[meResponse](t, env.do(t, http.MethodGet, "/api/me", token, nil))
	if me.Email != "user@example.com" || me.Admin {
		t.Fatalf("unexpected me %+v", me)
	}

	if resp := env.do(t, http.MethodPost, "/api/auth/signup", "", credentialsRequest{Email: "user@example.com", Password: "secret1"}); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/auth/signup", "", credentialsRequest{Email: "x@example.com", Password: "123"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/auth/signin", "", credentialsRequest{Email: "user@example.com", Password: "wrong!"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.StatusCode)
	}
	resp := env.do(t, http.MethodPost, "/api/auth/signin", "", credentialsRequest{Email: "USER@example.com", Password: "secret1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for sign-in, got %d", resp.StatusCode)
	}

	if resp := env.do(t, http.MethodGet, "/api/me", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/api/me", "garbage", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.signUp(t, "user@example.com", false)
	adminToken := env.signUp(t, "admin@example.com", true)

	draft := map[string]any{
		"title":     "  Brand Strategy ",
		"price":     "49.90",
		"seats":     12.7,
		"startDate": "2026-11-02",
		"category":  "Marketing",
	}
	if resp := env.do(t, http.MethodPost, "/api/admin/courses", "", draft); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/admin/courses", userToken, draft); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", resp.StatusCode)
	}

	resp := env.do(t, http.MethodPost, "/api/admin/courses", adminToken, draft)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	course := decodeBody[domain.Course](t, resp)
	if course.Title != "Brand Strategy" || course.Price != 49.9 || course.Seats != 12 || course.ID == "" {
		t.Fatalf("unexpected course %+v", course)
	}

	resp = env.do(t, http.MethodPatch, "/api/admin/courses/"+course.ID+"/seats", adminToken, map[string]int{"seats": -4})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := decodeBody[domain.Course](t, resp); got.Seats != 0 {
		t.Fatalf("expected seats clamped to 0, got %d", got.Seats)
	}
	if resp := env.do(t, http.MethodPatch, "/api/admin/courses/"+course.ID+"/seats", adminToken, map[string]any{}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without seats, got %d", resp.StatusCode)
	}

	env.do(t, http.MethodPatch, "/api/admin/courses/"+course.ID+"/seats", adminToken, map[string]int{"seats": 2})
	env.do(t, http.MethodPost, "/api/courses/"+course.ID+"/reservations", "", reserveRequest{Email: "a@example.com"})

	resp = env.do(t, http.MethodGet, "/api/admin/courses/"+course.ID+"/reservations", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	list := decodeBody[[]domain.Reservation](t, resp)
	if len(list) != 1 || list[0].CourseTitle != "Brand Strategy" {
		t.Fatalf("unexpected reservations %+v", list)
	}

	if resp := env.do(t, http.MethodGet, "/api/admin/courses/nope/reservations", adminToken, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAdminRoutes_InvalidDraft(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.signUp(t, "admin@example.com", true)

	cases := []map[string]any{
		{"title": "", "category": "Design"},
		{"title": "x", "category": "Cooking"},
		{"title": "x", "category": "Design", "price": "abc"},
		{"title": "x", "category": "Design", "price": -1},
		{"title": "x", "category": "Design", "seats": true},
	}
	for _, draft := range cases {
		if resp := env.do(t, http.MethodPost, "/api/admin/courses", adminToken, draft); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("draft %v: expected 400, got %d", draft, resp.StatusCode)
		}
	}
}

func TestFormValue(t *testing.T) {
	cases := map[string]string{
		`"12"`:  "12",
		`12.5`:  "12.5",
		`null`:  "",
		`" 3 "`: " 3 ",
	}
	for in, want := range cases {
		var f formValue
		if err := json.Unmarshal([]byte(in), &f); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if string(f) != want {
			t.Errorf("unmarshal %s = %q, want %q", in, f, want)
		}
	}
	var f formValue
	if err := json.Unmarshal([]byte(`[1]`), &f); err == nil {
		t.Error("expected error for array")
	}
}
