// Package main provides a CLI tool for seeding the database with demo data:
// a couple of suppliers, a small medicine catalog and opening stock batches.
// INVOICE_SEQ_START and ORDER_SEQ_START reseed the document counters for
// installs that import history from an older register.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"pharmapos/internal/core/types"
	"pharmapos/internal/domain/catalogs/medicine"
	"pharmapos/internal/domain/catalogs/supplier"
	"pharmapos/internal/domain/inventory"
	"pharmapos/internal/infrastructure/storage/postgres"
	"pharmapos/internal/infrastructure/storage/postgres/catalog_repo"
	"pharmapos/internal/infrastructure/storage/postgres/inventory_repo"
	"pharmapos/pkg/logger"
	"pharmapos/pkg/numerator"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	txManager := postgres.NewTxManager(pool)
	num := numerator.New(txManager)

	suppliers := supplier.NewService(catalog_repo.NewSupplierRepo(txManager), txManager, num)
	medicines := medicine.NewService(catalog_repo.NewMedicineRepo(txManager), txManager, num)
	stock := inventory.NewService(inventory_repo.NewBatchRepo(txManager), txManager)

	if err := seed(ctx, suppliers, medicines, stock); err != nil {
		log.Fatalw("seeding failed", "error", err)
	}

	if err := seedCounters(ctx, num); err != nil {
		log.Fatalw("seeding counters failed", "error", err)
	}

	log.Info("seeding complete")
}

// seedCounters reseeds document counters when migrating from an older
// register, so fresh numbers continue after the imported history.
func seedCounters(ctx context.Context, num *numerator.Service) error {
	starts := map[string]string{
		"INV": "INVOICE_SEQ_START",
		"PO":  "ORDER_SEQ_START",
	}

	now := time.Now().UTC()
	for prefix, env := range starts {
		raw := os.Getenv(env)
		if raw == "" {
			continue
		}
		start, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("bad %s %q: %w", env, raw, err)
		}
		if err := num.SetNextNumber(ctx, numerator.DefaultConfig(prefix), now, start); err != nil {
			return fmt.Errorf("set %s counter: %w", prefix, err)
		}
		logger.Info(ctx, "reseeded counter", "prefix", prefix, "start", start)
	}

	return nil
}

type medicineSeed struct {
	name         string
	genericName  string
	manufacturer string
	category     medicine.Category
	dosageForm   string
	strength     string
	sellingPrice string
	qty          int64
	shelfLife    time.Duration
}

func seed(
	ctx context.Context,
	suppliers *supplier.Service,
	medicines *medicine.Service,
	stock *inventory.Service,
) error {
	sup := supplier.NewSupplier("", "Himalaya Distributors", "Ramesh Shrestha", "+9779841000001")
	if err := suppliers.Create(ctx, sup); err != nil {
		return fmt.Errorf("create supplier: %w", err)
	}
	logger.Info(ctx, "created supplier", "code", sup.Code, "name", sup.Name)

	seeds := []medicineSeed{
		{
			name: "Paracetamol 500mg", genericName: "Paracetamol", manufacturer: "Deurali-Janta",
			category: medicine.CategoryTablet, dosageForm: "tablet", strength: "500mg",
			sellingPrice: "2.50", qty: 500, shelfLife: 540 * 24 * time.Hour,
		},
		{
			name: "Amoxicillin 250mg", genericName: "Amoxicillin", manufacturer: "National Healthcare",
			category: medicine.CategoryCapsule, dosageForm: "capsule", strength: "250mg",
			sellingPrice: "8.00", qty: 200, shelfLife: 365 * 24 * time.Hour,
		},
		{
			name: "Cetirizine Syrup", genericName: "Cetirizine", manufacturer: "Lomus Pharma",
			category: medicine.CategorySyrup, dosageForm: "syrup", strength: "5mg/5ml",
			sellingPrice: "95.00", qty: 60, shelfLife: 720 * 24 * time.Hour,
		},
		{
			name: "Ibuprofen 400mg", genericName: "Ibuprofen", manufacturer: "Deurali-Janta",
			category: medicine.CategoryTablet, dosageForm: "tablet", strength: "400mg",
			sellingPrice: "3.75", qty: 300, shelfLife: 540 * 24 * time.Hour,
		},
	}

	now := time.Now().UTC()

	for i, s := range seeds {
		med := medicine.NewMedicine("", s.name, s.genericName, s.manufacturer, s.category)
		med.DosageForm = s.dosageForm
		med.Strength = s.strength

		if err := medicines.Create(ctx, med); err != nil {
			return fmt.Errorf("create medicine %q: %w", s.name, err)
		}

		batch := inventory.NewBatch(
			med.ID,
			fmt.Sprintf("LOT-%s-%03d", now.Format("2006"), i+1),
			now.AddDate(0, -1, 0),
			now.Add(s.shelfLife),
			s.qty,
		)
		batch.SellingPrice = types.MustMoney(s.sellingPrice)
		batch.PurchasePrice = types.PercentOf(batch.SellingPrice, types.MustMoney("70"))
		batch.SupplierID = &sup.ID

		if _, err := stock.AddStock(ctx, batch); err != nil {
			return fmt.Errorf("add stock for %q: %w", s.name, err)
		}

		logger.Info(ctx, "seeded medicine", "code", med.Code, "name", med.Name, "qty", s.qty)
	}

	return nil
}
