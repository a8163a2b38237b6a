package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rovshanmuradov/fundly/internal/curve"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format     ExportFormat
	StartTime  time.Time
	EndTime    time.Time
	MintFilter string
	SideFilter string // buy or sell
	OutputDir  string
}

// TradeExporter writes trade history to disk.
type TradeExporter struct {
	logger *zap.Logger
}

func NewTradeExporter(logger *zap.Logger) *TradeExporter {
	return &TradeExporter{
		logger: logger.Named("export"),
	}
}

// ExportTrades writes the trades matching options and returns the file path.
func (te *TradeExporter) ExportTrades(trades []Trade, options ExportOptions) (string, error) {
	filtered := FilterTrades(trades, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no trades match the export criteria")
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	outputPath := filepath.Join(options.OutputDir, te.generateFilename(options))
	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = te.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = te.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	te.logger.Info("Trades exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

// FilterTrades applies the time, mint and side filters of options.
func FilterTrades(trades []Trade, options ExportOptions) []Trade {
	var filtered []Trade
	for _, trade := range trades {
		if !options.StartTime.IsZero() && trade.Timestamp.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && trade.Timestamp.After(options.EndTime) {
			continue
		}
		if options.MintFilter != "" && trade.Mint != options.MintFilter {
			continue
		}
		if options.SideFilter != "" && trade.Side != options.SideFilter {
			continue
		}
		filtered = append(filtered, trade)
	}
	return filtered
}

func (te *TradeExporter) generateFilename(options ExportOptions) string {
	timestamp := time.Now().Format("20060102_150405")

	prefix := "trades_all"
	if options.SideFilter != "" {
		prefix = "trades_" + options.SideFilter
	}
	if len(options.MintFilter) >= 8 {
		prefix += "_" + options.MintFilter[:8]
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

func (te *TradeExporter) exportToCSV(trades []Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, trade := range trades {
		if err := writer.Write(trade.ToCSV()); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (te *TradeExporter) exportToJSON(trades []Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time     `json:"export_time"`
		TradeCount int           `json:"trade_count"`
		Trades     []Trade       `json:"trades"`
		Summary    ExportSummary `json:"summary"`
	}{
		ExportTime: time.Now().UTC(),
		TradeCount: len(trades),
		Trades:     trades,
		Summary:    Summarize(trades),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportSummary contains summary statistics for exported trades. Volumes and
// fees are in lamports.
type ExportSummary struct {
	TotalTrades     int             `json:"total_trades"`
	BuyCount        int             `json:"buy_count"`
	SellCount       int             `json:"sell_count"`
	UniqueMints     int             `json:"unique_mints"`
	UniqueActors    int             `json:"unique_actors"`
	TotalBuyVolume  uint64          `json:"total_buy_volume"`
	TotalSellVolume uint64          `json:"total_sell_volume"`
	TotalFees       uint64          `json:"total_fees"`
	AvgBuyPrice     decimal.Decimal `json:"avg_buy_price"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
}

// Summarize aggregates trades. Trades are assumed ordered by time.
func Summarize(trades []Trade) ExportSummary {
	summary := ExportSummary{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return summary
	}

	summary.StartDate = trades[0].Timestamp
	summary.EndDate = trades[len(trades)-1].Timestamp

	mints := make(map[string]struct{})
	actors := make(map[string]struct{})
	var boughtTokens uint64

	for _, trade := range trades {
		mints[trade.Mint] = struct{}{}
		actors[trade.Actor] = struct{}{}
		summary.TotalFees += trade.Fee

		switch trade.Side {
		case "buy":
			summary.BuyCount++
			summary.TotalBuyVolume += trade.SolAmount
			boughtTokens += trade.TokenAmount
		case "sell":
			summary.SellCount++
			summary.TotalSellVolume += trade.SolAmount
		}
	}

	summary.UniqueMints = len(mints)
	summary.UniqueActors = len(actors)
	if boughtTokens > 0 {
		summary.AvgBuyPrice = curve.Price(summary.TotalBuyVolume, boughtTokens)
	}
	return summary
}
