package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/studiofoundry/backstage"
	"github.com/studiofoundry/backstage/internal/domain"
)

// Scriptable fakes for the usecase ports. A failure script maps an
// action (e.g. "delete assets/e1/gallery/a2") to a number of times it
// should fail before succeeding; negative counts fail forever.

type failureScript struct {
	mu    sync.Mutex
	fails map[string]int
	hard  map[string]bool
}

func (s *failureScript) failTransient(action string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails == nil {
		s.fails = map[string]int{}
	}
	s.fails[action] = times
}

func (s *failureScript) failHard(action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails == nil {
		s.fails = map[string]int{}
	}
	if s.hard == nil {
		s.hard = map[string]bool{}
	}
	s.fails[action] = -1
	s.hard[action] = true
}

func (s *failureScript) check(action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining, ok := s.fails[action]
	if !ok || remaining == 0 {
		return nil
	}
	if remaining > 0 {
		s.fails[action] = remaining - 1
	}
	if s.hard[action] {
		return fmt.Errorf("%s: scripted permanent failure", action)
	}
	return domain.TransientError{Op: action, Err: fmt.Errorf("scripted transient failure")}
}

type fakeAssetStore struct {
	failureScript
	mu      sync.Mutex
	objects map[string][]byte
	log     []string
}

func newFakeAssetStore() *fakeAssetStore {
	return &fakeAssetStore{objects: map[string][]byte{}}
}

func (f *fakeAssetStore) Put(ctx context.Context, key string, data []byte, contentType string) (backstage.AssetRef, error) {
	if err := f.check("put " + key); err != nil {
		return backstage.AssetRef{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.log = append(f.log, "put "+key)
	return backstage.AssetRef{Key: key, URL: "https://cdn.test/" + key}, nil
}

func (f *fakeAssetStore) Delete(ctx context.Context, key string) error {
	if err := f.check("delete " + key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.log = append(f.log, "delete "+key)
	return nil
}

type fakeEntityRepo struct {
	failureScript
	mu   sync.Mutex
	rows map[string]domain.Entity
	log  []string
}

func newFakeEntityRepo(entities ...domain.Entity) *fakeEntityRepo {
	rows := map[string]domain.Entity{}
	for _, e := range entities {
		rows[e.ID] = e
	}
	return &fakeEntityRepo{rows: rows}
}

func (f *fakeEntityRepo) Create(ctx context.Context, e domain.Entity) error {
	if err := f.check("create entity"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[e.ID]; ok {
		return fmt.Errorf("entity %s already exists", e.ID)
	}
	f.rows[e.ID] = e
	f.log = append(f.log, "create "+e.ID)
	return nil
}

func (f *fakeEntityRepo) Get(ctx context.Context, id string) (domain.Entity, error) {
	if err := f.check("get entity"); err != nil {
		return domain.Entity{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rows[id]
	if !ok {
		return domain.Entity{}, domain.NotFoundError{Resource: "entity"}
	}
	return e, nil
}

func (f *fakeEntityRepo) Update(ctx context.Context, e domain.Entity) error {
	if err := f.check("update entity"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[e.ID]; !ok {
		return domain.NotFoundError{Resource: "entity"}
	}
	f.rows[e.ID] = e
	f.log = append(f.log, "update "+e.ID)
	return nil
}

func (f *fakeEntityRepo) UpdateStatus(ctx context.Context, id string, status string) error {
	if err := f.check("update status"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rows[id]
	if !ok {
		return domain.NotFoundError{Resource: "entity"}
	}
	e.Status = status
	f.rows[id] = e
	f.log = append(f.log, "status "+id+" "+status)
	return nil
}

func (f *fakeEntityRepo) Delete(ctx context.Context, id string) error {
	if err := f.check("delete entity"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	f.log = append(f.log, "delete "+id)
	return nil
}

func (f *fakeEntityRepo) List(ctx context.Context, kind string, limit int) ([]domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Entity
	for _, e := range f.rows {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeProfileRepo struct {
	failureScript
	mu   sync.Mutex
	rows map[string]domain.Profile
}

func newFakeProfileRepo(profiles ...domain.Profile) *fakeProfileRepo {
	rows := map[string]domain.Profile{}
	for _, p := range profiles {
		rows[p.ID] = p
	}
	return &fakeProfileRepo{rows: rows}
}

func (f *fakeProfileRepo) Create(ctx context.Context, p domain.Profile) error {
	if err := f.check("create profile"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[p.ID]; ok {
		return fmt.Errorf("profile %s already exists", p.ID)
	}
	f.rows[p.ID] = p
	return nil
}

func (f *fakeProfileRepo) Get(ctx context.Context, id string) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return domain.Profile{}, domain.NotFoundError{Resource: "profile"}
	}
	return p, nil
}

func (f *fakeProfileRepo) Delete(ctx context.Context, id string) error {
	if err := f.check("delete profile"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeProfileRepo) List(ctx context.Context) ([]domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Profile
	for _, p := range f.rows {
		out = append(out, p)
	}
	return out, nil
}

type fakeIdentity struct {
	failureScript
	mu       sync.Mutex
	accounts map[string]domain.IdentityAccount
	nextID   int
}

func newFakeIdentity(accounts ...domain.IdentityAccount) *fakeIdentity {
	m := map[string]domain.IdentityAccount{}
	for _, a := range accounts {
		m[a.ID] = a
	}
	return &fakeIdentity{accounts: m}
}

func (f *fakeIdentity) Invite(ctx context.Context, email string, role string) (domain.IdentityAccount, error) {
	if err := f.check("invite account"); err != nil {
		return domain.IdentityAccount{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	account := domain.IdentityAccount{
		ID:    fmt.Sprintf("acct-%d", f.nextID),
		Email: email,
		Role:  role,
	}
	f.accounts[account.ID] = account
	return account, nil
}

func (f *fakeIdentity) Get(ctx context.Context, id string) (domain.IdentityAccount, error) {
	if err := f.check("get account"); err != nil {
		return domain.IdentityAccount{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return domain.IdentityAccount{}, domain.NotFoundError{Resource: "account"}
	}
	return a, nil
}

func (f *fakeIdentity) Delete(ctx context.Context, id string) error {
	if err := f.check("delete account"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, id)
	return nil
}

func (f *fakeIdentity) VerifySession(ctx context.Context, token string) (domain.Session, error) {
	return domain.Session{}, fmt.Errorf("not implemented")
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (f *fakeLocker) Acquire(ctx context.Context, id string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[id] {
		return nil, domain.ConflictError{Resource: id}
	}
	f.held[id] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, id)
	}, nil
}

type progressRecorder struct {
	mu     sync.Mutex
	events []backstage.ProgressEvent
}

func (p *progressRecorder) Publish(ctx context.Context, ev backstage.ProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *progressRecorder) byStatus(status string) []backstage.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []backstage.ProgressEvent
	for _, ev := range p.events {
		if ev.Status == status {
			out = append(out, ev)
		}
	}
	return out
}

func editorSession() domain.Session {
	return domain.Session{AccountID: "acct-ed", Email: "editor@studio.test", Role: backstage.RoleEditor}
}

func adminSession() domain.Session {
	return domain.Session{AccountID: "acct-ad", Email: "admin@studio.test", Role: backstage.RoleAdmin}
}
