package di

import (
	"ictbot/internal/service/feed"
	"ictbot/pkg/config"
	"ictbot/pkg/logger"
)

// NewMarketData builds the service's cached, chunked feed for command line
// tools. The returned func releases every client it opened.
func NewMarketData(cfg *config.Config, lgr *logger.Logger) (*feed.Cached, func(), error) {
	ch, err := ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if ch != nil {
			_ = ch.Close()
		}
	}

	br, err := ProvideBridgeClient(cfg, lgr)
	if err != nil {
		release()
		return nil, nil, err
	}
	rdb, err := ProvideRedisClient(cfg)
	if err != nil {
		release()
		return nil, nil, err
	}
	c, err := ProvideCache(cfg, rdb)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		release()
		return nil, nil, err
	}
	release = func() {
		_ = c.Close()
		if rdb != nil && cfg.Cache.Type == "memory" {
			_ = rdb.Close()
		}
		if ch != nil {
			_ = ch.Close()
		}
	}

	md, err := ProvideMarketData(cfg, ProvideBarStore(ch, lgr), br, ProvideBarCache(cfg, c, lgr), lgr)
	if err != nil {
		release()
		return nil, nil, err
	}
	return md, release, nil
}
