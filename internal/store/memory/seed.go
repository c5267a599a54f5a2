package memory

import (
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kedaipos/backend/internal/domain"
)

const SeedTenantID = "tenant-main"

// NewSeeded returns a store loaded with a small demo café for dev mode.
// Passwords come from SEED_OWNER_PASSWORD, SEED_CASHIER_PASSWORD and
// SEED_GUEST_PASSWORD; unset values fall back to dev defaults.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	now := time.Now().UTC()

	s.PutTenant(domain.Tenant{ID: SeedTenantID, Name: "Kedai Kopi Senja", TaxRatePercent: 10})

	defaults := false
	for _, u := range []struct {
		id, username, env, fallback, role string
	}{
		{"usr-owner", "owner", "SEED_OWNER_PASSWORD", "owner123", domain.RoleOwner},
		{"usr-cashier", "cashier", "SEED_CASHIER_PASSWORD", "cashier123", domain.RoleCashier},
		{"usr-guest", "guest", "SEED_GUEST_PASSWORD", "guest123", domain.RoleCustomer},
	} {
		password := os.Getenv(u.env)
		if password == "" {
			password = u.fallback
			defaults = true
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		s.PutUser(domain.UserAccount{
			ID:        u.id,
			TenantID:  SeedTenantID,
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		})
	}
	if defaults {
		logger.Warn("memory store is using default dev credentials")
	}

	for _, p := range []domain.Product{
		{ID: "prd-kopi-susu", Name: "Es Kopi Susu Gula Aren", Price: 18000, Stock: 60},
		{ID: "prd-americano", Name: "Americano", Price: 15000, Stock: 60},
		{ID: "prd-teh-tarik", Name: "Teh Tarik", Price: 14000, Stock: 40},
		{ID: "prd-croissant", Name: "Butter Croissant", Price: 12000, Stock: 20},
	} {
		p.TenantID = SeedTenantID
		p.Available = p.Stock > 0
		s.PutProduct(p)
	}
	for _, o := range []domain.ProductOption{
		{ID: "var-kopi-large", ProductID: "prd-kopi-susu", Kind: domain.OptionVariation, Name: "Large", Price: 5000},
		{ID: "var-americano-hot", ProductID: "prd-americano", Kind: domain.OptionVariation, Name: "Hot", Price: 0},
		{ID: "add-kopi-shot", ProductID: "prd-kopi-susu", Kind: domain.OptionAddon, Name: "Extra Shot", Price: 4000},
		{ID: "add-americano-shot", ProductID: "prd-americano", Kind: domain.OptionAddon, Name: "Extra Shot", Price: 4000},
	} {
		s.PutOption(o)
	}

	for _, m := range []domain.RawMaterial{
		{ID: "mat-espresso", Name: "Espresso Beans", UnitType: "gram", CurrentCost: decimal.NewFromInt(250), MinStockLevel: decimal.NewFromInt(500)},
		{ID: "mat-milk", Name: "Fresh Milk", UnitType: "ml", CurrentCost: decimal.NewFromInt(22), MinStockLevel: decimal.NewFromInt(2000)},
		{ID: "mat-palm-sugar", Name: "Palm Sugar", UnitType: "gram", CurrentCost: decimal.NewFromInt(40), MinStockLevel: decimal.NewFromInt(300)},
		{ID: "mat-water", Name: "Filtered Water", UnitType: "ml", CurrentCost: decimal.NewFromInt(1), MinStockLevel: decimal.Zero},
	} {
		m.TenantID = SeedTenantID
		s.PutMaterial(m)
	}
	day := 24 * time.Hour
	for _, b := range []domain.MaterialBatch{
		{ID: "bat-espresso-1", MaterialID: "mat-espresso", QuantityReceived: decimal.NewFromInt(1000), CostPerUnit: decimal.NewFromInt(240), ReceivedAt: now.Add(-10 * day), ExpiresAt: ptrTime(now.Add(20 * day))},
		{ID: "bat-espresso-2", MaterialID: "mat-espresso", QuantityReceived: decimal.NewFromInt(1000), CostPerUnit: decimal.NewFromInt(250), ReceivedAt: now.Add(-2 * day), ExpiresAt: ptrTime(now.Add(45 * day))},
		{ID: "bat-milk-1", MaterialID: "mat-milk", QuantityReceived: decimal.NewFromInt(6000), CostPerUnit: decimal.NewFromInt(22), ReceivedAt: now.Add(-1 * day), ExpiresAt: ptrTime(now.Add(5 * day))},
		{ID: "bat-palm-sugar-1", MaterialID: "mat-palm-sugar", QuantityReceived: decimal.NewFromInt(2000), CostPerUnit: decimal.NewFromInt(40), ReceivedAt: now.Add(-7 * day)},
		{ID: "bat-water-1", MaterialID: "mat-water", QuantityReceived: decimal.NewFromInt(20000), CostPerUnit: decimal.NewFromInt(1), ReceivedAt: now.Add(-1 * day)},
	} {
		b.QuantityRemaining = b.QuantityReceived
		s.PutBatch(b)
	}

	// Gula aren syrup is shared by several drinks: 20g palm sugar + 15ml water per portion.
	s.PutSubRecipeIngredient(domain.SubRecipeIngredient{SubRecipeID: "sub-gula-aren", MaterialID: "mat-palm-sugar", QuantityPerUnit: decimal.NewFromInt(20)})
	s.PutSubRecipeIngredient(domain.SubRecipeIngredient{SubRecipeID: "sub-gula-aren", MaterialID: "mat-water", QuantityPerUnit: decimal.NewFromInt(15)})
	s.PutRecipe(domain.ProductRecipe{ID: "rcp-kopi-espresso", ProductID: "prd-kopi-susu", MaterialID: "mat-espresso", QuantityPerUnit: decimal.NewFromInt(18)})
	s.PutRecipe(domain.ProductRecipe{ID: "rcp-kopi-milk", ProductID: "prd-kopi-susu", MaterialID: "mat-milk", QuantityPerUnit: decimal.NewFromInt(150)})
	s.PutRecipe(domain.ProductRecipe{ID: "rcp-kopi-syrup", ProductID: "prd-kopi-susu", SubRecipeID: "sub-gula-aren", QuantityPerUnit: decimal.NewFromInt(1)})
	s.PutRecipe(domain.ProductRecipe{ID: "rcp-americano-espresso", ProductID: "prd-americano", MaterialID: "mat-espresso", QuantityPerUnit: decimal.NewFromInt(18)})

	maxOrder := int64(500000)
	limit := 100
	welcomeLimit := 2
	s.PutVoucher(domain.Voucher{
		ID: "vch-senja5k", TenantID: SeedTenantID, Code: "SENJA5K", DiscountAmount: 5000,
		MinOrderAmount: 30000, MaxOrderAmount: &maxOrder, UsageLimit: &limit, Active: true,
	})
	s.PutVoucher(domain.Voucher{
		ID: "vch-welcome", TenantID: SeedTenantID, Code: "WELCOME", DiscountAmount: 3000,
		MinOrderAmount: 15000, UsageLimit: &welcomeLimit, Active: true,
	})
	s.PutVoucherCode(domain.VoucherCode{ID: "vcc-welcome-1", VoucherID: "vch-welcome", Code: "WELCOME-7F3K"})
	s.PutVoucherCode(domain.VoucherCode{ID: "vcc-welcome-2", VoucherID: "vch-welcome", Code: "WELCOME-Q2M9"})

	return s
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
