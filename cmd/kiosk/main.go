package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	api "github.com/processdojo/kiosk/internal/api/http"
	"github.com/processdojo/kiosk/internal/attempt"
	"github.com/processdojo/kiosk/internal/auth"
	authmw "github.com/processdojo/kiosk/internal/auth/middleware"
	"github.com/processdojo/kiosk/internal/biometric"
	"github.com/processdojo/kiosk/internal/config"
	"github.com/processdojo/kiosk/internal/content"
	"github.com/processdojo/kiosk/internal/db"
	"github.com/processdojo/kiosk/internal/reports"
	"github.com/processdojo/kiosk/internal/storage"
	syncx "github.com/processdojo/kiosk/internal/sync"
	"github.com/processdojo/kiosk/internal/videogate"
)

var importPath = flag.String("import", "", "catalog JSON file to import before serving")

func main() {
	flag.Parse()
	defer glog.Flush()

	if err := run(); err != nil {
		glog.Errorf("kiosk: %v", err)
		glog.Flush()
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		return errors.Wrap(err, "db open")
	}
	defer dbh.Close()

	blobs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		return errors.Wrap(err, "blob store")
	}

	events := syncx.NewEventRepo(dbh, cfg.SiteID)
	users := auth.NewUsers(dbh)
	if err := users.EnsureAdmin(ctx, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		return err
	}
	catalog := content.NewSQLStore(dbh, events)
	if *importPath != "" {
		if err := importCatalog(ctx, catalog, *importPath); err != nil {
			return err
		}
	}

	deps := api.Deps{
		DB:        dbh,
		Auth:      authmw.NewAuthService(cfg.AuthSecret, cfg.TokenTTL),
		Users:     users,
		Content:   catalog,
		Gate:      videogate.New(dbh),
		Attempts:  attempt.NewService(dbh, events),
		Biometric: biometric.NewService(dbh, blobs, biometric.NewBridge(cfg.BridgeURL, cfg.BridgeTimeout), events),
		Reports:   reports.New(dbh),
		Events:    events,
		Blobs:     blobs,
	}
	if cfg.SyncURL != "" {
		deps.Sync = syncx.NewPusher(events, cfg.SyncURL, 0)
		go deps.Sync.Run(ctx, cfg.SyncInterval)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(deps, api.Options{CORSOrigins: cfg.CORSOrigins, EnableLocalAuth: cfg.EnableLocalAuth}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		glog.Infof("listening on %s (mode=%s, db=%s, site=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.SiteID)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	glog.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func importCatalog(ctx context.Context, cs *content.SQLStore, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open catalog")
	}
	defer f.Close()
	var c content.Catalog
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	out, err := cs.Import(ctx, c)
	if err != nil {
		return err
	}
	glog.Infof("imported %d units from %s", len(out.Units), path)
	return nil
}
