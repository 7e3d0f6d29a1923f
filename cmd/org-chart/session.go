package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/iota-uz/orgchart/modules/org"
	"github.com/iota-uz/orgchart/pkg/composables"
	"github.com/iota-uz/orgchart/pkg/configuration"
)

type session struct {
	conf   *configuration.Configuration
	pool   *pgxpool.Pool
	module *org.Module
}

func loadConfig(opts *rootOptions) (*configuration.Configuration, error) {
	conf, err := configuration.Load(opts.envFiles...)
	if err != nil {
		return nil, withCode(exitUsage, errors.Wrap(err, "load configuration"))
	}
	return conf, nil
}

// openSession builds the org module. With ORG_STORAGE=memory, or when
// offline is set, nothing touches the database.
func openSession(ctx context.Context, opts *rootOptions, offline bool) (context.Context, *session, error) {
	conf, err := loadConfig(opts)
	if err != nil {
		return ctx, nil, err
	}
	s := &session{conf: conf}
	if !offline && conf.Org.Storage != "memory" {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		pool, err := pgxpool.New(connectCtx, conf.Database.Opts)
		if err != nil {
			return ctx, nil, withCode(exitDB, errors.Wrap(err, "connect database"))
		}
		if err := pool.Ping(connectCtx); err != nil {
			pool.Close()
			return ctx, nil, withCode(exitDB, errors.Wrap(err, "ping database"))
		}
		s.pool = pool
		ctx = composables.WithPool(ctx, pool)
	}

	module, err := org.NewModule(conf, s.pool)
	if err != nil {
		s.Close()
		return ctx, nil, withCode(exitUsage, errors.Wrap(err, "init org module"))
	}
	s.module = module
	return ctx, s, nil
}

func (s *session) Close() {
	if s.module != nil {
		_ = s.module.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
