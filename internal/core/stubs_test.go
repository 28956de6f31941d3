package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"firebase.google.com/go/v4/auth"

	"trackflow-backend/internal/db"
	"trackflow-backend/internal/models"
	"trackflow-backend/internal/notify"
)

// memUserRepo is an in-memory db.UserRepository that hands out copies, like Firestore reads do.
type memUserRepo struct {
	mu        sync.Mutex
	users     map[string]*models.User
	updateErr error
	writes    int
}

func newMemUserRepo(users ...*models.User) *memUserRepo {
	r := &memUserRepo{users: map[string]*models.User{}}
	for _, u := range users {
		r.users[u.ID] = copyUser(u)
	}
	return r
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.ActiveTrackers = append([]string(nil), u.ActiveTrackers...)
	c.CustomTrackers = append([]models.CustomTracker(nil), u.CustomTrackers...)
	if u.TrackerGoals != nil {
		c.TrackerGoals = make(map[string]float64, len(u.TrackerGoals))
		for k, v := range u.TrackerGoals {
			c.TrackerGoals[k] = v
		}
	}
	return &c
}

func (r *memUserRepo) get(id string) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return copyUser(u)
	}
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, userID string) (*models.User, error) {
	if u := r.get(userID); u != nil {
		return u, nil
	}
	return nil, fmt.Errorf("user with ID '%s' not found: %w", userID, db.ErrNotFound)
}

func (r *memUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; ok {
		return db.ErrAlreadyExists
	}
	r.users[user.ID] = copyUser(user)
	return nil
}

func (r *memUserRepo) Update(ctx context.Context, user *models.User) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = copyUser(user)
	r.writes++
	return nil
}

// UpdateInTransaction holds the repo lock across read, mutate and write.
func (r *memUserRepo) UpdateInTransaction(ctx context.Context, userID string, mutate func(user *models.User) error) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("user with ID '%s' not found: %w", userID, db.ErrNotFound)
	}
	user := copyUser(stored)
	if err := mutate(user); err != nil {
		return nil, err
	}
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	r.users[userID] = copyUser(user)
	r.writes++
	return user, nil
}

func (r *memUserRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *memUserRepo) List(ctx context.Context, paginationParams map[string]string) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memUserRepo) ListLapsedPremium(ctx context.Context, now time.Time) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, u := range r.users {
		if u.IsPremium && u.PremiumEndDate != nil && !u.PremiumEndDate.After(now) {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memUserRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.StripeCustomerID == customerID {
			return copyUser(u), nil
		}
	}
	return nil, db.ErrNotFound
}

func (r *memUserRepo) Count(ctx context.Context, field string, value interface{}) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.users {
		switch field {
		case "":
			n++
		case "isPremium":
			if u.IsPremium == value {
				n++
			}
		case "hasUsedCoupon":
			if u.HasUsedCoupon == value {
				n++
			}
		default:
			return 0, fmt.Errorf("unsupported count field %q", field)
		}
	}
	return n, nil
}

// memTrackerRepo keeps entries per user and collection.
type memTrackerRepo struct {
	mu      sync.Mutex
	entries map[string][]*models.TrackerEntry
	nextID  int
	lists   []models.EntryQuery
}

func newMemTrackerRepo() *memTrackerRepo {
	return &memTrackerRepo{entries: map[string][]*models.TrackerEntry{}}
}

func (r *memTrackerRepo) key(userID, collection string) string { return userID + "/" + collection }

// seed stores entries as-is, bypassing the service.
func (r *memTrackerRepo) seed(userID, collection string, entries ...*models.TrackerEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		if e.ID == "" {
			r.nextID++
			e.ID = fmt.Sprintf("seed-%d", r.nextID)
		}
		c := *e
		r.entries[r.key(userID, collection)] = append(r.entries[r.key(userID, collection)], &c)
	}
}

func (r *memTrackerRepo) stored(userID, collection, id string) *models.TrackerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries[r.key(userID, collection)] {
		if e.ID == id {
			c := *e
			return &c
		}
	}
	return nil
}

func (r *memTrackerRepo) Create(ctx context.Context, userID, collection string, entry *models.TrackerEntry) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = fmt.Sprintf("entry-%d", r.nextID)
	c := *entry
	r.entries[r.key(userID, collection)] = append(r.entries[r.key(userID, collection)], &c)
	return entry.ID, nil
}

func (r *memTrackerRepo) GetByID(ctx context.Context, userID, collection, entryID string) (*models.TrackerEntry, error) {
	if e := r.stored(userID, collection, entryID); e != nil {
		return e, nil
	}
	return nil, db.ErrNotFound
}

func (r *memTrackerRepo) List(ctx context.Context, userID, collection, tracker string, query models.EntryQuery) ([]*models.TrackerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists = append(r.lists, query)
	var out []*models.TrackerEntry
	for _, e := range r.entries[r.key(userID, collection)] {
		if tracker != "" && e.Tracker != tracker {
			continue
		}
		if !query.From.IsZero() && e.LoggedAt.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && !e.LoggedAt.Before(query.To) {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoggedAt.After(out[j].LoggedAt) })
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (r *memTrackerRepo) Update(ctx context.Context, userID, collection string, entry *models.TrackerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.entries[r.key(userID, collection)]
	for i, e := range list {
		if e.ID == entry.ID {
			c := *entry
			list[i] = &c
			return nil
		}
	}
	return db.ErrNotFound
}

func (r *memTrackerRepo) Delete(ctx context.Context, userID, collection, entryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.entries[r.key(userID, collection)]
	for i, e := range list {
		if e.ID == entryID {
			r.entries[r.key(userID, collection)] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return db.ErrNotFound
}

// memInsightRepo stores AI responses per user.
type memInsightRepo struct {
	mu        sync.Mutex
	responses map[string][]*models.AIResponse
	nextID    int
	now       func() time.Time
}

func newMemInsightRepo(now func() time.Time) *memInsightRepo {
	return &memInsightRepo{responses: map[string][]*models.AIResponse{}, now: now}
}

func (r *memInsightRepo) Create(ctx context.Context, userID string, resp *models.AIResponse) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	resp.ID = fmt.Sprintf("insight-%d", r.nextID)
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = r.now()
	}
	c := *resp
	r.responses[userID] = append(r.responses[userID], &c)
	return resp.ID, nil
}

func (r *memInsightRepo) GetByID(ctx context.Context, userID, insightID string) (*models.AIResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, resp := range r.responses[userID] {
		if resp.ID == insightID {
			c := *resp
			return &c, nil
		}
	}
	return nil, db.ErrNotFound
}

func (r *memInsightRepo) List(ctx context.Context, userID, tracker string, paginationParams map[string]string) ([]*models.AIResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AIResponse
	for i := len(r.responses[userID]) - 1; i >= 0; i-- {
		resp := r.responses[userID][i]
		if tracker != "" && resp.Tracker != tracker {
			continue
		}
		c := *resp
		out = append(out, &c)
	}
	if paginationParams["limit"] == "1" && len(out) > 1 {
		out = out[:1]
	}
	return out, nil
}

func (r *memInsightRepo) Delete(ctx context.Context, userID, insightID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.responses[userID]
	for i, resp := range list {
		if resp.ID == insightID {
			r.responses[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return db.ErrNotFound
}

func (r *memInsightRepo) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, resp := range r.responses[userID] {
		if !resp.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type stubAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
	err  error
}

func (a *stubAudit) CreateAuditLog(ctx context.Context, logEntry models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, logEntry)
	return a.err
}

func (a *stubAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type stubNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (n *stubNotifier) Enqueue(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

type stubGenerator struct {
	text    string
	err     error
	calls   int
	prompts []string
}

func (g *stubGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	g.calls++
	g.prompts = append(g.prompts, prompt)
	return g.text, g.err
}

func (g *stubGenerator) Model() string { return "gemini-test" }

// memCache is a map-backed cache.Cache.
type memCache struct {
	values map[string]string
}

func newMemCache() *memCache { return &memCache{values: map[string]string{}} }

func (c *memCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memCache) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	c.values[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	delete(c.values, key)
	return nil
}

func (c *memCache) Close() error { return nil }

// prefixCipher marks sealed text with a prefix so tests can see what was stored.
type prefixCipher struct{}

const sealedPrefix = "sealed:"

func (prefixCipher) Seal(plainText string) (string, error) { return sealedPrefix + plainText, nil }

func (prefixCipher) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", errors.New("not sealed")
	}
	return strings.TrimPrefix(sealed, sealedPrefix), nil
}

type stubArchiver struct {
	paths []string
	err   error
}

func (a *stubArchiver) Put(ctx context.Context, path, contentType string, data []byte) error {
	a.paths = append(a.paths, path)
	return a.err
}

// stubIDP records Admin SDK calls.
type stubIDP struct {
	createErr    error
	created      *auth.UserToCreate
	records      map[string]*auth.UserRecord
	linkErr      error
	claims       map[string]map[string]interface{}
	settingsURLs []string
}

func (p *stubIDP) CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = user
	return &auth.UserRecord{UserInfo: &auth.UserInfo{UID: "new-uid", Email: "new@example.com", DisplayName: "New User"}}, nil
}

func (p *stubIDP) GetUser(ctx context.Context, uid string) (*auth.UserRecord, error) {
	if r, ok := p.records[uid]; ok {
		return r, nil
	}
	return nil, errors.New("user not found")
}

func (p *stubIDP) EmailVerificationLinkWithSettings(ctx context.Context, email string, settings *auth.ActionCodeSettings) (string, error) {
	if p.linkErr != nil {
		return "", p.linkErr
	}
	p.settingsURLs = append(p.settingsURLs, settings.URL)
	return "https://auth.example.com/verify?email=" + email, nil
}

func (p *stubIDP) PasswordResetLinkWithSettings(ctx context.Context, email string, settings *auth.ActionCodeSettings) (string, error) {
	if p.linkErr != nil {
		return "", p.linkErr
	}
	p.settingsURLs = append(p.settingsURLs, settings.URL)
	return "https://auth.example.com/reset?email=" + email, nil
}

func (p *stubIDP) SetCustomUserClaims(ctx context.Context, uid string, customClaims map[string]interface{}) error {
	if p.claims == nil {
		p.claims = map[string]map[string]interface{}{}
	}
	p.claims[uid] = customClaims
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func timePtr(t time.Time) *time.Time { return &t }
