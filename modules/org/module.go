package org

import (
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/orgchart/modules/org/domain/changerequest"
	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
	"github.com/iota-uz/orgchart/modules/org/domain/staffing"
	"github.com/iota-uz/orgchart/modules/org/handlers"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/cache"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/persistence"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/spreadsheet"
	"github.com/iota-uz/orgchart/modules/org/presentation/controllers"
	"github.com/iota-uz/orgchart/modules/org/services"
	"github.com/iota-uz/orgchart/pkg/configuration"
	"github.com/iota-uz/orgchart/pkg/eventbus"
)

const (
	CacheBackendNone   = "none"
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Module wires the org services onto either Postgres or the in-memory store.
type Module struct {
	Staffing  *services.StaffingService
	Charts    *services.ChartService
	Approvals *services.ApprovalService
	Imports   *services.ImportService
	Exports   *services.ExportService

	Cache services.ActiveChartCache
	Bus   eventbus.EventBus

	controller *controllers.OrgAPIController
	redis      *redis.Client
}

type repositories struct {
	positions   staffing.PositionRepository
	employees   staffing.EmployeeRepository
	assignments staffing.AssignmentRepository
	charts      chart.Repository
	snapshots   chart.SnapshotRepository
	tickets     changerequest.Repository
	importLogs  interchange.ImportLogRepository
	tx          services.Transactor
}

func pgRepositories(retries int) repositories {
	return repositories{
		positions:   persistence.NewPgPositionRepository(),
		employees:   persistence.NewPgEmployeeRepository(),
		assignments: persistence.NewPgAssignmentRepository(),
		charts:      persistence.NewPgChartRepository(),
		snapshots:   persistence.NewPgSnapshotRepository(),
		tickets:     persistence.NewPgChangeRequestRepository(),
		importLogs:  persistence.NewPgImportLogRepository(),
		tx:          persistence.NewPgTransactor(retries),
	}
}

func memoryRepositories() repositories {
	store := persistence.NewMemoryStore()
	return repositories{
		positions:   persistence.NewMemoryPositionRepository(store),
		employees:   persistence.NewMemoryEmployeeRepository(store),
		assignments: persistence.NewMemoryAssignmentRepository(store),
		charts:      persistence.NewMemoryChartRepository(store),
		snapshots:   persistence.NewMemorySnapshotRepository(store),
		tickets:     persistence.NewMemoryChangeRequestRepository(store),
		importLogs:  persistence.NewMemoryImportLogRepository(store),
		tx:          store,
	}
}

// NewModule builds the org services. A nil pool selects the in-memory store;
// Postgres repositories expect the pool bound to each request context.
func NewModule(conf *configuration.Configuration, pool *pgxpool.Pool) (*Module, error) {
	m := &Module{Bus: eventbus.NewEventPublisher(conf.Logger())}

	repos := memoryRepositories()
	if pool != nil {
		repos = pgRepositories(conf.Org.TxRetries)
	}

	activeCache, err := m.newCache(conf)
	if err != nil {
		return nil, err
	}
	m.Cache = activeCache

	policy := services.DefaultImportPolicy(conf.Org.ImportMaxBytes, conf.Org.Extensions())
	if conf.Org.ImportPolicyPath != "" {
		policy, err = services.LoadImportPolicy(conf.Org.ImportPolicyPath, policy)
		if err != nil {
			return nil, gerrors.Wrap(err, "load import policy")
		}
	}

	notifier := services.NewBusNotifier(m.Bus)
	handlers.RegisterEventHandlers(m.Bus, activeCache)

	m.Staffing = services.NewStaffingService(repos.positions, repos.employees, repos.assignments, repos.tx, notifier)
	m.Charts = services.NewChartService(repos.charts, repos.snapshots, repos.tx, activeCache, chart.BumpPolicy(conf.Org.VersionBump))
	m.Approvals = services.NewApprovalService(repos.tickets, m.Charts, repos.tx, notifier)
	m.Imports = services.NewImportService(m.Charts, repos.importLogs, spreadsheet.NewReader(), policy)
	m.Exports = services.NewExportService(m.Charts, m.Staffing)

	m.controller = controllers.NewOrgAPIController(m.Staffing, m.Charts, m.Approvals, m.Imports, m.Exports)
	m.controller.MaxUploadBytes = conf.MaxUploadSize
	probes := controllers.OpsProbes{}
	if pool != nil {
		probes.Database = pool
	}
	if rc, ok := activeCache.(*cache.RedisChartCache); ok {
		probes.Cache = rc
	}
	m.controller.WithOpsProbes(probes)
	return m, nil
}

func (m *Module) newCache(conf *configuration.Configuration) (services.ActiveChartCache, error) {
	switch strings.ToLower(conf.Org.CacheBackend) {
	case "", CacheBackendNone:
		return nil, nil
	case CacheBackendMemory:
		return cache.NewMemoryChartCache(conf.Org.CacheTTL), nil
	case CacheBackendRedis:
		client, err := newRedisClient(conf.RedisURL)
		if err != nil {
			return nil, err
		}
		m.redis = client
		return cache.NewRedisChartCache(client, conf.Org.CacheTTL), nil
	default:
		return nil, gerrors.Errorf("unknown cache backend %q", conf.Org.CacheBackend)
	}
}

// newRedisClient accepts either a redis:// URL or a bare host:port.
func newRedisClient(raw string) (*redis.Client, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, gerrors.Wrap(err, "parse redis url")
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: raw}), nil
}

func (m *Module) Register(r *mux.Router) {
	m.controller.Register(r)
}

func (m *Module) Close() error {
	if m.redis != nil {
		return m.redis.Close()
	}
	return nil
}

func (m *Module) Name() string {
	return "org"
}

func (m *Module) Key() string {
	return m.Name()
}
