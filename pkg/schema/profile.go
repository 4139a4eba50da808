package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/helioslabs/ledgerscope/pkg/querier"
)

const (
	defaultProfileTTL = 5 * time.Minute

	profileCacheKey = "table_info"
)

// Querier is the subset of the query executor the profiler needs.
type Querier interface {
	Query(ctx context.Context, sql string) (*querier.ResultSet, error)
}

// TableInfo is a point-in-time profile of the events table.
type TableInfo struct {
	RowCount int64  `json:"row_count"`
	MinDate  string `json:"min_date"`
	MaxDate  string `json:"max_date"`
}

type LiveProfileConfig struct {
	Logger  *slog.Logger
	Querier Querier

	// Table to profile. Defaults to the embedded schema's table.
	Table string

	// TTL bounds how stale a served profile may be.
	TTL time.Duration
}

func (cfg *LiveProfileConfig) Validate() error {
	if cfg.Querier == nil {
		return errors.New("querier is required")
	}
	if cfg.Table == "" {
		cfg.Table = "events"
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaultProfileTTL
	}
	return nil
}

// LiveProfile serves table statistics through a short-lived cache so
// repeated runs do not re-profile the table.
type LiveProfile struct {
	cfg LiveProfileConfig

	cache   *ttlcache.Cache[string, *TableInfo]
	cacheMu sync.RWMutex
}

func NewLiveProfile(cfg LiveProfileConfig) (*LiveProfile, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate live profile config: %w", err)
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, *TableInfo](cfg.TTL),
	)

	return &LiveProfile{cfg: cfg, cache: cache}, nil
}

// Info returns the current table profile, served from cache when fresh.
func (p *LiveProfile) Info(ctx context.Context) (*TableInfo, error) {
	if cached := p.cachedInfo(); cached != nil {
		return cached, nil
	}

	sql := fmt.Sprintf(
		`SELECT COUNT(*) AS row_count, MIN(event_date) AS min_date, MAX(event_date) AS max_date FROM %s`,
		p.cfg.Table,
	)
	result, err := p.cfg.Querier.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to profile table: %w", err)
	}
	if result.Empty() {
		return nil, fmt.Errorf("table profile query returned no rows")
	}

	row := result.Rows[0]
	info := &TableInfo{
		RowCount: asInt64(row["row_count"]),
		MinDate:  asDateString(row["min_date"]),
		MaxDate:  asDateString(row["max_date"]),
	}
	p.setCachedInfo(info)

	if p.cfg.Logger != nil {
		p.cfg.Logger.Debug("schema: profiled table",
			"table", p.cfg.Table,
			"rows", info.RowCount,
			"min_date", info.MinDate,
			"max_date", info.MaxDate)
	}
	return info, nil
}

func (p *LiveProfile) cachedInfo() *TableInfo {
	p.cacheMu.RLock()
	defer p.cacheMu.RUnlock()
	cached := p.cache.Get(profileCacheKey)
	if cached == nil {
		return nil
	}
	return cached.Value()
}

func (p *LiveProfile) setCachedInfo(info *TableInfo) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	p.cache.Set(profileCacheKey, info, p.cfg.TTL)
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asDateString(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case time.Time:
		return d.Format("2006-01-02")
	case string:
		return d
	default:
		return fmt.Sprint(v)
	}
}
