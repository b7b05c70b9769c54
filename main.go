package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"towy-backend/api"
	"towy-backend/cache"
	"towy-backend/config"
	"towy-backend/database"
	"towy-backend/events"
	"towy-backend/geo"
	"towy-backend/matching"
	"towy-backend/migration"
	"towy-backend/models"
	"towy-backend/notify"
)

// rtreeIndex adapts the in-memory locator to the handler-facing geo
// index interface.
type rtreeIndex struct {
	locator *matching.RTreeLocator
}

func (i rtreeIndex) Add(_ context.Context, p models.Provider) error {
	i.locator.Upsert(p)
	return nil
}

func (i rtreeIndex) Remove(_ context.Context, id string) error {
	i.locator.Remove(id)
	return nil
}

func main() {
	migrateOnly := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	config.InitConfig()
	cfg := config.Cfg

	if *migrateOnly {
		if err := migration.RunMigrations(cfg.DB); err != nil {
			log.WithError(err).Fatal("migrations failed")
		}
		log.Info("migrations applied")
		return
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	users := database.NewUserStore(db)
	providers := database.NewProviderStore(db)
	requests := database.NewRequestStore(db)

	bus := events.NewBus(log)
	bus.SubscribeToAll(func(e events.Event) {
		log.WithFields(logrus.Fields{"event_id": e.ID, "event_type": e.Type}).Debug("event emitted")
	})

	policy := matching.PolicyByName(cfg.Notify.Policy)

	var (
		locator  matching.Locator
		geoIndex api.GeoIndex
	)
	switch cfg.Notify.Locator {
	case "cache":
		rdb, err := cache.InitRedis(cfg.Redis)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to redis")
		}
		defer rdb.Close()
		geoCache := cache.NewProviderGeoCache(rdb, log)
		locator = cache.NewGeoLocator(geoCache, policy, log)
		geoIndex = geoCache
	case "rtree":
		rtree := matching.NewRTreeLocator(policy)
		locator = rtree
		geoIndex = rtreeIndex{locator: rtree}
	default:
		locator = matching.NewStoreLocator(providers, policy, log)
	}

	var geocoder geo.Geocoder
	if cfg.Geocoder.Enabled {
		geocoder = geo.NewNominatimClient(cfg.Geocoder.BaseURL)
	}

	gateway := notify.NewHTTPGateway(cfg.Notify.GatewayURL, log)
	dispatcher := notify.NewDispatcher(
		locator,
		gateway,
		requests,
		bus,
		log,
		policy,
		cfg.Notify.RadiusKm,
		cfg.Notify.MaxProviders,
		time.Duration(cfg.Notify.StaggerMs)*time.Millisecond,
	)
	dispatcher.Start()

	handler := api.NewHandler(api.Deps{
		Log:       log,
		Users:     users,
		Providers: providers,
		Requests:  requests,
		GeoIndex:  geoIndex,
		Locator:   locator,
		Bus:       bus,
		Geocoder:  geocoder,
		JWTSecret: cfg.Auth.JWTSecret,
		TokenTTL:  time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler.Routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
