package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/fantasy-cricket/internal/domain/model"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memPrincipals — in-memory PrincipalRepository.
type memPrincipals struct {
	mu   sync.Mutex
	byID map[string]*model.Principal
	err  error
}

func newMemPrincipals() *memPrincipals {
	return &memPrincipals{byID: map[string]*model.Principal{}}
}

func (m *memPrincipals) Create(_ context.Context, p *model.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.byID {
		if existing.Email == rbac.NormalizeEmail(p.Email) {
			return repository.ErrConflict
		}
	}
	cp := *p
	cp.Email = rbac.NormalizeEmail(p.Email)
	cp.CreatedAt = time.Now()
	m.byID[p.ID] = &cp
	return nil
}

func (m *memPrincipals) GetByID(_ context.Context, id string) (*model.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPrincipals) GetByEmail(_ context.Context, email string) (*model.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.byID {
		if p.Email == rbac.NormalizeEmail(email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memPrincipals) List(_ context.Context, _ repository.Page) ([]*model.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*model.Principal, 0, len(m.byID))
	for _, p := range m.byID {
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Email < result[j].Email })
	return result, m.err
}

func (m *memPrincipals) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID), m.err
}

func (m *memPrincipals) RoleByID(ctx context.Context, id string) (rbac.Role, error) {
	p, err := m.GetByID(ctx, id)
	if err != nil {
		return rbac.RoleUnknown, err
	}
	return p.Role, nil
}

func (m *memPrincipals) RoleByEmail(ctx context.Context, email string) (rbac.Role, error) {
	p, err := m.GetByEmail(ctx, email)
	if err != nil {
		return rbac.RoleUnknown, err
	}
	return p.Role, nil
}

func (m *memPrincipals) SetRole(_ context.Context, id string, role rbac.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Role = role
	return nil
}

func (m *memPrincipals) PromoteByEmails(_ context.Context, emails []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var promoted []string
	for _, e := range emails {
		for _, p := range m.byID {
			if p.Email == rbac.NormalizeEmail(e) && p.Role != rbac.RoleAdmin {
				p.Role = rbac.RoleAdmin
				promoted = append(promoted, p.Email)
			}
		}
	}
	return promoted, nil
}

// memWallet — in-memory WalletRepository.
type memWallet struct {
	balances map[string]int64
	txs      map[string][]*model.WalletTransaction
	err      error
}

func (m *memWallet) Create(_ context.Context, t *model.WalletTransaction) error {
	if m.txs == nil {
		m.txs = map[string][]*model.WalletTransaction{}
	}
	m.txs[t.UserID] = append(m.txs[t.UserID], t)
	return m.err
}

func (m *memWallet) ListByUser(_ context.Context, userID string, _ repository.Page) ([]*model.WalletTransaction, error) {
	return m.txs[userID], m.err
}

func (m *memWallet) Balance(_ context.Context, userID string) (int64, error) {
	return m.balances[userID], m.err
}

func (m *memWallet) CreditPrizes(_ context.Context, _ string) (int, int64, error) {
	return 0, 0, m.err
}

// fakeIssuer — TokenIssuer, возвращающий предсказуемый токен.
type fakeIssuer struct{}

func (fakeIssuer) Issue(p *model.Principal) (string, time.Time, error) {
	return "token-for-" + p.ID + "-" + p.Role.String(), time.Now().Add(time.Hour), nil
}

// countingPurger считает вызовы PurgeCache.
type countingPurger struct {
	mu    sync.Mutex
	calls int
}

func (c *countingPurger) PurgeCache() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}
