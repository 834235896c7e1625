package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/imthegoodboy/AI-Oracle/pkg/config"
	"github.com/imthegoodboy/AI-Oracle/pkg/datastore"
	"github.com/imthegoodboy/AI-Oracle/pkg/handler"
	"github.com/imthegoodboy/AI-Oracle/pkg/log"
	"github.com/imthegoodboy/AI-Oracle/pkg/module"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var tableNames = []string{
	datastore.KModelTableName,
	datastore.KProviderTableName,
	datastore.KKeyTableName,
	datastore.KKeyIndexTableName,
	datastore.KRequestTableName,
}

type OracleServer struct {
	srv      *http.Server
	tables   map[string]datastore.Datastore
	recorder *log.Recorder
	ledger   *module.Ledger
	stop     chan struct{}
	done     chan struct{}
}

func NewOracleServer(port string, dbType datastore.DatastoreType, mode string) (*OracleServer, error) {
	tableFactory := datastore.DatastoreFactory{}
	tables := make(map[string]datastore.Datastore, len(tableNames))
	for _, name := range tableNames {
		table, err := tableFactory.NewTable(dbType, name)
		if err != nil {
			closeTables(tables)
			logrus.Errorf("table %s init error %v", name, err)
			return nil, err
		}
		tables[name] = table
	}
	curated, err := module.LoadCurated()
	if err != nil {
		closeTables(tables)
		return nil, err
	}

	remote := ""
	if config.ConfigGlobal.SendLogToRemote() {
		remote = config.ConfigGlobal.LogRemoteService
	}
	recorder := log.NewRecorder(remote, config.ConfigGlobal.ServerName)

	providers := module.NewProviderManager(tables[datastore.KProviderTableName])
	catalog := module.NewCatalogManager(curated, tables[datastore.KModelTableName], providers)
	keys := module.NewKeyManager(tables[datastore.KKeyTableName], tables[datastore.KKeyIndexTableName], recorder)
	ledger := module.NewLedger(tables[datastore.KRequestTableName], providers, recorder)
	oracleHandler := handler.NewOracleHandler(catalog, keys, ledger, providers)

	router, err := NewRouter(oracleHandler, keys, mode)
	if err != nil {
		recorder.Close()
		closeTables(tables)
		return nil, err
	}
	oracle := &OracleServer{
		srv: &http.Server{
			Addr:              net.JoinHostPort("0.0.0.0", port),
			Handler:           router,
			ReadHeaderTimeout: config.HTTPTIMEOUT,
		},
		tables:   tables,
		recorder: recorder,
		ledger:   ledger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go oracle.reconcile(time.Duration(config.ConfigGlobal.ReconcileIntervalSec) * time.Second)
	return oracle, nil
}

// NewRouter mounts the api behind identity resolution and OpenAPI validation
func NewRouter(oracleHandler *handler.OracleHandler, auth handler.Authenticator, mode string) (*gin.Engine, error) {
	if mode == gin.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else if mode == gin.TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	swagger, err := handler.GetSwagger()
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(module.Collectors()...)
	registry.MustRegister(handler.Collectors()...)

	router := gin.New()
	router.Use(cors.New(corsConfig()))
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(handler.Stat())

	router.GET("/healthz", oracleHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	api := router.Group("", handler.RequestValidator(swagger), handler.Identity(auth))
	handler.RegisterHandlers(api, oracleHandler)
	router.NoRoute(oracleHandler.NoRouterHandler)
	return router, nil
}

func corsConfig() cors.Config {
	return cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", config.ConfigGlobal.UserIdHeader,
			config.ConfigGlobal.UserNameHeader, "X-Serving-Token", "X-Gateway-Token"},
		MaxAge: 12 * time.Hour,
	}
}

// Start oracle server
func (o *OracleServer) Start() error {
	if err := o.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.Errorf("listen: %s", err)
		return err
	}
	return nil
}

// Close shutdown oracle server, timeout=shutdownTimeout
func (o *OracleServer) Close(shutdownTimeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := o.srv.Shutdown(ctx)
	o.stopReconcile()
	<-o.done
	o.recorder.Close()
	closeTables(o.tables)
	if shutdownErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
	}
	return nil
}

// reconcile periodically counts provider outcomes that failed to land during
// Advance, interval <= 0 disables it
func (o *OracleServer) reconcile(interval time.Duration) {
	defer close(o.done)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := o.ledger.Reconcile(context.Background())
			if err != nil {
				logrus.Warnf("reconcile provider outcomes: %v", err)
			}
			if n > 0 {
				logrus.Infof("reconciled %d provider outcomes", n)
			}
		case <-o.stop:
			return
		}
	}
}

func (o *OracleServer) stopReconcile() {
	select {
	case <-o.stop:
		return
	default:
		close(o.stop)
	}
}

func closeTables(tables map[string]datastore.Datastore) {
	for name, table := range tables {
		if err := table.Close(); err != nil {
			logrus.Warnf("close table %s: %v", name, err)
		}
	}
}
