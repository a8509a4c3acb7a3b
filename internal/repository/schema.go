package repository

import "fmt"

// Schema returns the idempotent DDL for the ClickHouse tables this package uses.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.bars (
            symbol      LowCardinality(String),
            timeframe   LowCardinality(String),
            time        DateTime64(3, 'UTC'),
            open        Float64,
            high        Float64,
            low         Float64,
            close       Float64,
            tick_volume Float64,
            spread      Float64,
            ingested_at DateTime64(3, 'UTC') DEFAULT now64(3)
        ) ENGINE = ReplacingMergeTree(ingested_at)
        PARTITION BY (timeframe, toYYYYMM(time))
        ORDER BY (symbol, timeframe, time)`, database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.symbols (
            symbol        String,
            digits        UInt8,
            point         Float64,
            pip_size      Float64,
            tick_size     Float64,
            tick_value    Float64,
            contract_size Float64,
            volume_min    Float64,
            volume_max    Float64,
            volume_step   Float64,
            updated_at    DateTime DEFAULT now()
        ) ENGINE = ReplacingMergeTree(updated_at)
        ORDER BY symbol`, database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.backtest_reports (
            run_id        String,
            symbol        LowCardinality(String),
            timeframe     LowCardinality(String),
            bars          UInt32,
            period_days   Float64,
            period_months Float64,
            period_start  DateTime64(3, 'UTC'),
            period_end    DateTime64(3, 'UTC'),
            created_at    DateTime64(3, 'UTC'),
            trades        UInt32,
            wins          UInt32,
            losses        UInt32,
            winrate       Float64,
            pnl           Float64,
            max_dd        Float64,
            equity_final  Float64,
            open_at_end   UInt32,
            statistics    String,
            config        String
        ) ENGINE = MergeTree
        ORDER BY (symbol, created_at, run_id)`, database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.backtest_ledger (
            run_id   String,
            seq      UInt32,
            kind     LowCardinality(String),
            time     DateTime64(3, 'UTC'),
            bar      UInt32,
            side     LowCardinality(String),
            entry    Float64,
            exit     Float64,
            sl       Float64,
            tp       Float64,
            rr       Float64,
            volume   Float64,
            prob     Float64,
            pnl      Float64,
            equity   Float64,
            realized UInt8
        ) ENGINE = MergeTree
        ORDER BY (run_id, seq)`, database),
	}
}
