package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/xid"
)

// Store keeps every table in process memory. A unit of work runs against a
// private copy of the tables which replaces the live copy only on success.
type Store struct {
	mu    sync.Mutex
	state *tables
}

type tables struct {
	tenants      map[string]domain.Tenant
	users        map[string]domain.UserAccount
	customers    map[string]domain.Customer
	products     map[string]domain.Product
	options      map[string]domain.ProductOption
	orders       map[string]domain.Order
	orderItems   map[string][]domain.OrderItem
	payments     map[string]domain.Payment
	vouchers     map[string]domain.Voucher
	voucherCodes map[string]domain.VoucherCode
	voucherUsage []domain.VoucherUsage
	materials    map[string]domain.RawMaterial
	batches      map[string]domain.MaterialBatch
	recipes      map[string][]domain.ProductRecipe
	subRecipes   map[string][]domain.SubRecipeIngredient
}

func New() *Store {
	return &Store{state: &tables{
		tenants:      make(map[string]domain.Tenant),
		users:        make(map[string]domain.UserAccount),
		customers:    make(map[string]domain.Customer),
		products:     make(map[string]domain.Product),
		options:      make(map[string]domain.ProductOption),
		orders:       make(map[string]domain.Order),
		orderItems:   make(map[string][]domain.OrderItem),
		payments:     make(map[string]domain.Payment),
		vouchers:     make(map[string]domain.Voucher),
		voucherCodes: make(map[string]domain.VoucherCode),
		materials:    make(map[string]domain.RawMaterial),
		batches:      make(map[string]domain.MaterialBatch),
		recipes:      make(map[string][]domain.ProductRecipe),
		subRecipes:   make(map[string][]domain.SubRecipeIngredient),
	}}
}

func (t *tables) clone() *tables {
	return &tables{
		tenants:      maps.Clone(t.tenants),
		users:        maps.Clone(t.users),
		customers:    maps.Clone(t.customers),
		products:     maps.Clone(t.products),
		options:      maps.Clone(t.options),
		orders:       maps.Clone(t.orders),
		orderItems:   cloneSliceMap(t.orderItems),
		payments:     maps.Clone(t.payments),
		vouchers:     maps.Clone(t.vouchers),
		voucherCodes: maps.Clone(t.voucherCodes),
		voucherUsage: slices.Clone(t.voucherUsage),
		materials:    maps.Clone(t.materials),
		batches:      maps.Clone(t.batches),
		recipes:      cloneSliceMap(t.recipes),
		subRecipes:   cloneSliceMap(t.subRecipes),
	}
}

func cloneSliceMap[T any](src map[string][]T) map[string][]T {
	dup := make(map[string][]T, len(src))
	for key, rows := range src {
		dup[key] = slices.Clone(rows)
	}
	return dup
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := &memTx{st: s.state.clone()}
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.state = work.st
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrConflict
	}
	for _, existing := range s.state.users {
		if existing.Username == username {
			return store.ErrConflict
		}
	}
	user.Username = username
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.state.users[user.ID] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := slices.Collect(maps.Values(s.state.users))
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrConflict
	}
	for id, user := range s.state.users {
		if user.Username == username {
			user.Password = password
			s.state.users[id] = user
			return nil
		}
	}
	return store.ErrNotFound
}

// The Put helpers load reference data that other services own (tenants, menus,
// vouchers, recipes). They back NewSeeded and test fixtures.

func (s *Store) PutTenant(tenant domain.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.tenants[tenant.ID] = tenant
}

func (s *Store) PutUser(user domain.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[user.ID] = user
}

func (s *Store) PutCustomer(customer domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.customers[customer.ID] = customer
}

func (s *Store) DeleteCustomer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.customers, id)
}

func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[product.ID] = product
}

func (s *Store) PutOption(option domain.ProductOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.options[option.ID] = option
}

func (s *Store) PutVoucher(voucher domain.Voucher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	voucher.ApplicableProducts = slices.Clone(voucher.ApplicableProducts)
	s.state.vouchers[voucher.ID] = voucher
}

func (s *Store) PutVoucherCode(code domain.VoucherCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.voucherCodes[code.ID] = code
}

func (s *Store) PutMaterial(material domain.RawMaterial) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.materials[material.ID] = material
}

func (s *Store) PutBatch(batch domain.MaterialBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.batches[batch.ID] = batch
}

func (s *Store) PutRecipe(recipe domain.ProductRecipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.recipes[recipe.ProductID] = append(s.state.recipes[recipe.ProductID], recipe)
}

func (s *Store) PutSubRecipeIngredient(ingredient domain.SubRecipeIngredient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.subRecipes[ingredient.SubRecipeID] = append(s.state.subRecipes[ingredient.SubRecipeID], ingredient)
}

func compareBatchID(a, b domain.MaterialBatch) int {
	return strings.Compare(a.ID, b.ID)
}
