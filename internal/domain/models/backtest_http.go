package models

// Requests for the backtest HTTP endpoints.

type BacktestRequest struct {
	Symbol     string `json:"symbol" validate:"required"`
	Timeframe  string `json:"timeframe" default:"M15" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
	Bars       int    `json:"bars" validate:"gte=0,lte=500000"`
	ConfigName string `json:"config_name" default:"default" validate:"max=64"`
	NoML       bool   `json:"no_ml"`
}

type BacktestListRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Limit  int    `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=200"`
}

type BacktestGetRequest struct {
	ID string `param:"id" json:"id" validate:"required,uuid"`
}

type GridSearchRequest struct {
	Symbol     string `json:"symbol" validate:"required"`
	Timeframe  string `json:"timeframe" default:"M15" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
	Bars       int    `json:"bars" default:"20000" validate:"gte=500,lte=200000"`
	ConfigName string `json:"config_name" default:"default" validate:"max=64"`
	Workers    int    `json:"workers" default:"4" validate:"gte=1,lte=32"`
	Top        int    `json:"top" default:"10" validate:"gte=1,lte=100"`
}

type GridSearchGetRequest struct {
	ID string `param:"id" json:"id" validate:"required,uuid"`
}

type LatestSignalRequest struct {
	Symbol     string `query:"symbol" json:"symbol" validate:"required"`
	Timeframe  string `query:"timeframe" json:"timeframe" default:"M15" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
	Bars       int    `query:"bars" json:"bars" default:"5000" validate:"gte=100,lte=100000"`
	ConfigName string `query:"config_name" json:"config_name" default:"default"`
}
