// Package main is a terminal front for the pharmacy POS core. It is the
// thin glue a register UI would otherwise provide: sell a basket of
// medicines, refund an invoice, or print stock reports.
//
// Usage:
//
//	pos sell -items MED-000001:2,MED-000002:1 -mobile +9779841000001 -cashier sita
//	pos refund -number INV-2026-000042 -amount 85.88 -reason "customer return"
//	pos stock -report low
//	pos order -supplier SUP-000001 -items MED-000001:100:2.50:LOT-X-001:2028-01-31 -by ramesh
//	pos receive -number PO-2026-000001 -lines 1:100:5 -by sita
//	pos cancel -number PO-2026-000001
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pharmapos/internal/core/types"
	"pharmapos/internal/domain/billing"
	"pharmapos/internal/domain/catalogs/medicine"
	"pharmapos/internal/domain/catalogs/supplier"
	"pharmapos/internal/domain/inventory"
	"pharmapos/internal/domain/purchasing"
	"pharmapos/internal/infrastructure/storage/postgres"
	"pharmapos/internal/infrastructure/storage/postgres/catalog_repo"
	"pharmapos/internal/infrastructure/storage/postgres/inventory_repo"
	"pharmapos/internal/infrastructure/storage/postgres/invoice_repo"
	"pharmapos/internal/infrastructure/storage/postgres/purchase_repo"
	"pharmapos/pkg/logger"
	"pharmapos/pkg/numerator"
)

type app struct {
	medicines  *medicine.Service
	suppliers  *supplier.Service
	stock      *inventory.Service
	billing    *billing.Service
	purchasing *purchasing.Service
}

func main() {
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "warn"),
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
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

	txManager := postgres.NewTxManager(pool)
	num := numerator.New(txManager)

	medicineRepo := catalog_repo.NewMedicineRepo(txManager)
	supplierRepo := catalog_repo.NewSupplierRepo(txManager)
	batchRepo := inventory_repo.NewBatchRepo(txManager)
	invoiceRepo := invoice_repo.NewInvoiceRepo(txManager)
	orderRepo := purchase_repo.NewPurchaseOrderRepo(txManager)

	medicines := medicine.NewService(medicineRepo, txManager, num)
	allocator := inventory.NewAllocator(batchRepo, medicines, txManager)
	stock := inventory.NewService(batchRepo, txManager)

	a := &app{
		medicines: medicines,
		suppliers: supplier.NewService(supplierRepo, txManager, num),
		stock:     stock,
		billing: billing.NewService(
			invoiceRepo,
			allocator,
			num,
			txManager,
			postgres.NewOutboxPublisher(txManager),
			envTaxRate(),
		),
		purchasing: purchasing.NewService(orderRepo, stock, num, txManager),
	}

	switch os.Args[1] {
	case "sell":
		err = a.sell(ctx, os.Args[2:])
	case "refund":
		err = a.refund(ctx, os.Args[2:])
	case "stock":
		err = a.stockReport(ctx, os.Args[2:])
	case "order":
		err = a.placeOrder(ctx, os.Args[2:])
	case "receive":
		err = a.receiveOrder(ctx, os.Args[2:])
	case "cancel":
		err = a.cancelOrder(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pos <sell|refund|stock|order|receive|cancel> [flags]")
}

func (a *app) sell(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sell", flag.ExitOnError)
	items := fs.String("items", "", "comma-separated medicine-code:quantity pairs")
	name := fs.String("name", "", "customer name")
	mobile := fs.String("mobile", "", "customer mobile")
	cashier := fs.String("cashier", "", "cashier name")
	method := fs.String("method", string(billing.PayCash), "payment method")
	discount := fs.String("discount", "", "discount amount")
	discountPct := fs.String("discount-pct", "", "discount percentage")
	paid := fs.String("paid", "", "amount paid (defaults to total)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *items == "" {
		return fmt.Errorf("-items is required")
	}

	req := billing.BuildRequest{
		CustomerName:   *name,
		CustomerMobile: *mobile,
		Cashier:        *cashier,
		PaymentMethod:  billing.PaymentMethod(*method),
	}

	for _, pair := range strings.Split(*items, ",") {
		code, qtyStr, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return fmt.Errorf("bad item %q, want code:quantity", pair)
		}
		qty, err := strconv.ParseInt(qtyStr, 10, 64)
		if err != nil {
			return fmt.Errorf("bad quantity in %q: %w", pair, err)
		}
		med, err := a.medicines.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		req.Lines = append(req.Lines, billing.LineRequest{MedicineID: med.ID, Quantity: qty})
	}

	if m, err := parseMoney(*discount); err != nil {
		return err
	} else if m != nil {
		req.DiscountAmount = m
	}
	if m, err := parseMoney(*discountPct); err != nil {
		return err
	} else if m != nil {
		req.DiscountPercentage = m
	}
	if m, err := parseMoney(*paid); err != nil {
		return err
	} else if m != nil {
		req.AmountPaid = m
	}

	inv, err := a.billing.Build(ctx, req)
	if err != nil {
		return err
	}

	return printJSON(inv)
}

func (a *app) refund(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("refund", flag.ExitOnError)
	number := fs.String("number", "", "invoice number")
	amount := fs.String("amount", "", "refund amount")
	reason := fs.String("reason", "", "refund reason")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *number == "" || *amount == "" {
		return fmt.Errorf("-number and -amount are required")
	}

	inv, err := a.billing.GetByNumber(ctx, *number)
	if err != nil {
		return err
	}

	m, err := types.NewMoneyFromString(*amount)
	if err != nil {
		return fmt.Errorf("bad amount: %w", err)
	}

	inv, err = a.billing.Refund(ctx, inv.ID, m, *reason)
	if err != nil {
		return err
	}

	return printJSON(inv)
}

func (a *app) stockReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stock", flag.ExitOnError)
	report := fs.String("report", "low", "report: low, expired or near-expiry")
	window := fs.Duration("window", 0, "near-expiry window (default 90 days)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch *report {
	case "low":
		items, err := a.stock.LowStock(ctx)
		if err != nil {
			return err
		}
		return printJSON(items)
	case "expired":
		batches, err := a.stock.ExpiredBatches(ctx)
		if err != nil {
			return err
		}
		return printJSON(batches)
	case "near-expiry":
		batches, err := a.stock.NearExpiry(ctx, *window)
		if err != nil {
			return err
		}
		return printJSON(batches)
	default:
		return fmt.Errorf("unknown report %q", *report)
	}
}

func (a *app) placeOrder(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("order", flag.ExitOnError)
	supplierCode := fs.String("supplier", "", "supplier code")
	items := fs.String("items", "", "comma-separated code:qty:price[:batch:expiry] items")
	by := fs.String("by", "", "who placed the order")
	tax := fs.String("tax", "", "tax amount")
	notes := fs.String("notes", "", "order notes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *supplierCode == "" || *items == "" {
		return fmt.Errorf("-supplier and -items are required")
	}

	sup, err := a.suppliers.GetByCode(ctx, *supplierCode)
	if err != nil {
		return err
	}

	req := purchasing.CreateRequest{
		SupplierID: sup.ID,
		OrderedBy:  *by,
		Notes:      *notes,
	}
	if m, err := parseMoney(*tax); err != nil {
		return err
	} else if m != nil {
		req.Tax = m
	}

	for _, item := range strings.Split(*items, ",") {
		line, err := a.parseOrderItem(ctx, strings.TrimSpace(item))
		if err != nil {
			return err
		}
		req.Lines = append(req.Lines, line)
	}

	po, err := a.purchasing.Create(ctx, req)
	if err != nil {
		return err
	}

	return printJSON(po)
}

// parseOrderItem parses code:qty:price with an optional :batch:expiry
// tail. Manufacturing dates are not known at order time and default to
// the order date.
func (a *app) parseOrderItem(ctx context.Context, item string) (purchasing.OrderLineRequest, error) {
	var line purchasing.OrderLineRequest

	parts := strings.Split(item, ":")
	if len(parts) != 3 && len(parts) != 5 {
		return line, fmt.Errorf("bad item %q, want code:qty:price[:batch:expiry]", item)
	}

	med, err := a.medicines.GetByCode(ctx, parts[0])
	if err != nil {
		return line, err
	}
	line.MedicineID = med.ID

	line.Quantity, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return line, fmt.Errorf("bad quantity in %q: %w", item, err)
	}
	line.UnitPrice, err = types.NewMoneyFromString(parts[2])
	if err != nil {
		return line, fmt.Errorf("bad price in %q: %w", item, err)
	}

	if len(parts) == 5 {
		line.BatchNumber = parts[3]
		line.ExpiryDate, err = time.Parse("2006-01-02", parts[4])
		if err != nil {
			return line, fmt.Errorf("bad expiry in %q: %w", item, err)
		}
		line.ManufacturingDate = time.Now()
	}

	return line, nil
}

func (a *app) receiveOrder(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	number := fs.String("number", "", "purchase order number")
	lines := fs.String("lines", "", "comma-separated lineNo:received:damaged triples")
	by := fs.String("by", "", "who received the delivery")
	invoiceNo := fs.String("invoice", "", "supplier invoice number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *number == "" || *lines == "" {
		return fmt.Errorf("-number and -lines are required")
	}

	po, err := a.purchasing.GetByNumber(ctx, *number)
	if err != nil {
		return err
	}

	req := purchasing.ReceiveRequest{ReceivedBy: *by}
	if *invoiceNo != "" {
		req.SupplierInvoiceNumber = invoiceNo
		now := time.Now()
		req.SupplierInvoiceDate = &now
	}

	for _, triple := range strings.Split(*lines, ",") {
		parts := strings.Split(strings.TrimSpace(triple), ":")
		if len(parts) != 3 {
			return fmt.Errorf("bad line %q, want lineNo:received:damaged", triple)
		}
		var rl purchasing.ReceiptLine
		if rl.LineNo, err = strconv.Atoi(parts[0]); err != nil {
			return fmt.Errorf("bad line number in %q: %w", triple, err)
		}
		if rl.ReceivedQuantity, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
			return fmt.Errorf("bad received quantity in %q: %w", triple, err)
		}
		if rl.DamagedQuantity, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
			return fmt.Errorf("bad damaged quantity in %q: %w", triple, err)
		}
		req.Lines = append(req.Lines, rl)
	}

	po, err = a.purchasing.Receive(ctx, po.ID, req)
	if err != nil {
		return err
	}

	return printJSON(po)
}

func (a *app) cancelOrder(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	number := fs.String("number", "", "purchase order number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *number == "" {
		return fmt.Errorf("-number is required")
	}

	po, err := a.purchasing.GetByNumber(ctx, *number)
	if err != nil {
		return err
	}

	po, err = a.purchasing.Cancel(ctx, po.ID)
	if err != nil {
		return err
	}

	return printJSON(po)
}

func parseMoney(s string) (*types.Money, error) {
	if s == "" {
		return nil, nil
	}
	m, err := types.NewMoneyFromString(s)
	if err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", s, err)
	}
	return &m, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envTaxRate() types.Money {
	if v := os.Getenv("TAX_RATE"); v != "" {
		if m, err := types.NewMoneyFromString(v); err == nil {
			return m
		}
	}
	return billing.DefaultTaxRate
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
