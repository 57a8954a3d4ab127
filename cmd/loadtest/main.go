package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/ims/internal/service/grpc"
)

type loadMode string

const (
	// modeDrain — покупатели конкурентно выкупают один товар до нуля.
	modeDrain loadMode = "drain"
	// modeLookup — анонимный поиск товара по QR-коду.
	modeLookup loadMode = "lookup"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	stock       int64
	qty         int64
	price       decimal.Decimal
	productID   string
	ownerID     string
	buyerTag    string
	outputPath  string
}

// inventoryClient — часть клиента InventoryService, которой пользуется нагрузка.
type inventoryClient interface {
	CreateProduct(ctx context.Context, in *grpcsvc.CreateProductRequest, opts ...grpc.CallOption) (*grpcsvc.ProductResponse, error)
	GetProduct(ctx context.Context, in *grpcsvc.GetProductRequest, opts ...grpc.CallOption) (*grpcsvc.ProductResponse, error)
	PlaceOrder(ctx context.Context, in *grpcsvc.PlaceOrderRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
	LookupProduct(ctx context.Context, in *grpcsvc.LookupProductRequest, opts ...grpc.CallOption) (*grpcsvc.LookupProductResponse, error)
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

// stockReport — сверка остатка после прогона drain.
type stockReport struct {
	ProductID    string `json:"product_id"`
	InitialStock int64  `json:"initial_stock"`
	FinalStock   int64  `json:"final_stock"`
	Committed    int64  `json:"committed_orders"`
	Rejected     int64  `json:"rejected_orders"`
	Consistent   bool   `json:"consistent"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Stock             *stockReport            `json:"stock,omitempty"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

// record учитывает вызов; ok отделяет ожидаемый исход от сбоя независимо от кода.
func (c *collector) record(method string, latency time.Duration, code codes.Code, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, exists := c.methods[method]
	if !exists {
		stats = &methodStats{
			codes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code.String()]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) codeCount(method string, code codes.Code) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		return 0
	}
	return stats.codes[code.String()]
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenarioStats := c.methods["scenario"]; scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue, timeoutValue, durationValue, priceValue string

	flag.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 1m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 8, "number of gRPC client connections")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-RPC timeout")
	flag.StringVar(&modeValue, "mode", string(modeDrain), "load mode: drain | lookup")
	flag.Int64Var(&cfg.stock, "stock", 100, "initial stock of the product created for the run")
	flag.Int64Var(&cfg.qty, "qty", 1, "units per order in drain mode")
	flag.StringVar(&priceValue, "price", "9.99", "unit price of the product created for the run")
	flag.StringVar(&cfg.productID, "product-id", "", "existing product to load instead of creating one")
	flag.StringVar(&cfg.ownerID, "owner-id", "loadtest-owner", "owner actor id used to create and inspect the product")
	flag.StringVar(&cfg.buyerTag, "buyer-tag", "load", "buyer id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	price, err := decimal.NewFromString(strings.TrimSpace(priceValue))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = price

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	return cfg, cfg.validate()
}

func (cfg config) validate() error {
	switch {
	case cfg.duration < 0:
		return errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return errors.New("timeout must be > 0")
	case cfg.stock < 0:
		return errors.New("stock must be >= 0")
	case cfg.qty <= 0:
		return errors.New("qty must be > 0")
	case cfg.price.IsNegative():
		return errors.New("price must be >= 0")
	case strings.TrimSpace(cfg.ownerID) == "":
		return errors.New("owner-id is required")
	case strings.TrimSpace(cfg.buyerTag) == "":
		return errors.New("buyer-tag is required")
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeDrain:
		return modeDrain, nil
	case modeLookup:
		return modeLookup, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]inventoryClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewInventoryClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	result, err := run(cfg, clients)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || (result.Stock != nil && !result.Stock.Consistent) {
		os.Exit(1)
	}
}

// run готовит товар, гоняет сценарии и сверяет остаток.
func run(cfg config, clients []inventoryClient) (report, error) {
	if len(clients) == 0 {
		return report{}, errors.New("at least one client is required")
	}
	setup := clients[0]

	product, err := prepareProduct(setup, cfg)
	if err != nil {
		return report{}, err
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(cli inventoryClient) {
			defer wg.Done()
			for id := range jobs {
				runScenario(cli, cfg, product, id, runID, col)
			}
		}(clients[workerID%len(clients)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if cfg.mode == modeDrain {
		stock, err := reconcileStock(setup, cfg, product, col)
		if err != nil {
			return result, err
		}
		result.Stock = stock
	}
	return result, nil
}

// prepareProduct создаёт товар под прогон или читает заданный -product-id.
func prepareProduct(client inventoryClient, cfg config) (*grpcsvc.Product, error) {
	ctx, cancel := ownerContext(cfg)
	defer cancel()

	if cfg.productID != "" {
		resp, err := client.GetProduct(ctx, &grpcsvc.GetProductRequest{ID: cfg.productID})
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", cfg.productID, err)
		}
		return resp.Product, nil
	}

	resp, err := client.CreateProduct(ctx, &grpcsvc.CreateProductRequest{
		Name:     fmt.Sprintf("loadtest-%d", time.Now().UnixNano()),
		Category: "loadtest",
		Quantity: cfg.stock,
		Price:    cfg.price,
	})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return resp.Product, nil
}

// reconcileStock проверяет, что каждый принятый заказ списал ровно qty и остаток не ушёл в минус.
func reconcileStock(client inventoryClient, cfg config, product *grpcsvc.Product, col *collector) (*stockReport, error) {
	ctx, cancel := ownerContext(cfg)
	defer cancel()

	resp, err := client.GetProduct(ctx, &grpcsvc.GetProductRequest{ID: product.ID})
	if err != nil {
		return nil, fmt.Errorf("reload product: %w", err)
	}

	committed := col.codeCount("PlaceOrder", codes.OK)
	rejected := col.codeCount("PlaceOrder", codes.FailedPrecondition) + col.codeCount("PlaceOrder", codes.Aborted)
	final := resp.Product.Quantity

	return &stockReport{
		ProductID:    product.ID,
		InitialStock: product.Quantity,
		FinalStock:   final,
		Committed:    committed,
		Rejected:     rejected,
		Consistent:   final >= 0 && product.Quantity-final == committed*cfg.qty,
	}, nil
}

func ownerContext(cfg config) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	return grpcsvc.WithPrincipal(ctx, cfg.ownerID, string(domain.RoleOwner)), cancel
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(client inventoryClient, cfg config, product *grpcsvc.Product, index int, runID string, col *collector) {
	start := time.Now()
	var code codes.Code
	switch cfg.mode {
	case modeLookup:
		code = callLookup(client, cfg.timeout, product.QRCode, col)
	default:
		buyerID := fmt.Sprintf("%s-%s-%d", cfg.buyerTag, runID, index)
		code = callPlaceOrder(client, cfg.timeout, buyerID, product.ID, cfg.qty, col)
	}
	col.record("scenario", time.Since(start), code, expectedCode(cfg.mode, code))
}

func callPlaceOrder(client inventoryClient, timeout time.Duration, buyerID, productID string, qty int64, col *collector) codes.Code {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = grpcsvc.WithPrincipal(ctx, buyerID, string(domain.RoleBuyer))

	_, err := client.PlaceOrder(ctx, &grpcsvc.PlaceOrderRequest{
		Lines: []grpcsvc.OrderLine{{ProductID: productID, Quantity: qty}},
	})
	code := grpcCode(err)
	col.record("PlaceOrder", time.Since(start), code, expectedCode(modeDrain, code))
	return code
}

func callLookup(client inventoryClient, timeout time.Duration, qrCode string, col *collector) codes.Code {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := client.LookupProduct(ctx, &grpcsvc.LookupProductRequest{QRCode: qrCode})
	code := grpcCode(err)
	col.record("LookupProduct", time.Since(start), code, code == codes.OK)
	return code
}

// expectedCode: при выкупе отказ по остатку и конфликт списания считаются штатными исходами.
func expectedCode(mode loadMode, code codes.Code) bool {
	if code == codes.OK {
		return true
	}
	return mode == modeDrain && (code == codes.FailedPrecondition || code == codes.Aborted)
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms codes=%v\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
			stats.Codes,
		)
	}

	if s := result.Stock; s != nil {
		fmt.Printf("stock product=%s initial=%d final=%d committed=%d rejected=%d consistent=%t\n",
			s.ProductID, s.InitialStock, s.FinalStock, s.Committed, s.Rejected, s.Consistent)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
